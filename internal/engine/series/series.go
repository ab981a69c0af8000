// Package series keeps the coarse per-second packet/alert summary.
package series

import (
	"math"
	"sync"
	"time"

	"CyberGuard/internal/model"
)

const (
	DefaultLimit = 30
	LabelLayout  = "15:04:05"
	// MaxClosed bounds the closed buckets kept when no sink takes them.
	MaxClosed = 3600
)

// Aggregator keeps the most recent buckets in chronological order. It is
// purely observational: nothing it holds feeds back into detection.
type Aggregator struct {
	limit int

	mu      sync.Mutex
	buckets []model.TrafficBucket
	// closed collects buckets that stopped receiving counts, until a sink
	// takes them.
	closed []model.TrafficBucket
	// sealed is the newest second already handed to closed.
	sealed int64
}

func New(limit int) *Aggregator {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Aggregator{limit: limit, sealed: math.MinInt64}
}

// Record adds one tick's counts to the bucket of now's wall-clock second and
// returns the resulting series.
func (a *Aggregator) Record(batchSize, admitted int, now time.Time) []model.TrafficBucket {
	sec := now.Unix()

	a.mu.Lock()
	defer a.mu.Unlock()

	if n := len(a.buckets); n > 0 && a.buckets[n-1].Second == sec {
		a.buckets[n-1].Packets += batchSize
		a.buckets[n-1].Alerts += admitted
	} else {
		if n > 0 {
			a.closeLocked(a.buckets[n-1])
		}
		a.buckets = append(a.buckets, model.TrafficBucket{
			Label:   now.Format(LabelLayout),
			Second:  sec,
			Packets: batchSize,
			Alerts:  admitted,
		})
		if len(a.buckets) > a.limit {
			a.buckets = append(a.buckets[:0:0], a.buckets[len(a.buckets)-a.limit:]...)
		}
	}
	return a.snapshotLocked()
}

// Buckets returns a copy of the current series, oldest first.
func (a *Aggregator) Buckets() []model.TrafficBucket {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// CloseAll marks the open bucket as final so the next TakeClosed returns it.
// Counts recorded later in the same second are not handed over again.
func (a *Aggregator) CloseAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n := len(a.buckets); n > 0 {
		a.closeLocked(a.buckets[n-1])
	}
}

func (a *Aggregator) closeLocked(b model.TrafficBucket) {
	if b.Second <= a.sealed {
		return
	}
	a.sealed = b.Second
	a.closed = append(a.closed, b)
	if len(a.closed) > MaxClosed {
		a.closed = append(a.closed[:0:0], a.closed[len(a.closed)-MaxClosed:]...)
	}
}

// TakeClosed returns and clears the buckets that have been superseded by a
// later second since the previous call.
func (a *Aggregator) TakeClosed() []model.TrafficBucket {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.closed
	a.closed = nil
	return out
}

// Rate returns packets per second averaged over the retained buckets.
func (a *Aggregator) Rate() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.buckets) == 0 {
		return 0
	}
	total := 0
	for _, b := range a.buckets {
		total += b.Packets
	}
	span := a.buckets[len(a.buckets)-1].Second - a.buckets[0].Second + 1
	return float64(total) / float64(span)
}

func (a *Aggregator) snapshotLocked() []model.TrafficBucket {
	out := make([]model.TrafficBucket, len(a.buckets))
	copy(out, a.buckets)
	return out
}
