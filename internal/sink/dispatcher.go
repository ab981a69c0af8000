// Package sink persists admitted alerts and closed traffic buckets. Each
// writer gets its own queue and flush loop, so a slow writer only delays
// itself.
package sink

import (
	"context"
	"io"
	"sync"
	"time"

	"CyberGuard/internal/engine/pipeline"
	"CyberGuard/internal/logging"
	"CyberGuard/internal/metrics"
	"CyberGuard/internal/model"

	"github.com/rs/zerolog"
)

const (
	// DefaultQueueLimit bounds the alerts and buckets queued per writer.
	DefaultQueueLimit = 10000
	writeTimeout      = 30 * time.Second
)

// BucketSource hands over series buckets that are final.
type BucketSource interface {
	TakeClosedBuckets() []model.TrafficBucket
}

type queue struct {
	writer model.Writer

	mu      sync.Mutex
	alerts  []model.Alert
	buckets []model.TrafficBucket
}

// Dispatcher fans pipeline output out to writers.
type Dispatcher struct {
	queues     []*queue
	buckets    BucketSource
	queueLimit int
	now        func() time.Time

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	log      zerolog.Logger
}

// NewDispatcher creates a dispatcher. buckets may be nil when only alerts
// are persisted.
func NewDispatcher(buckets BucketSource, writers ...model.Writer) *Dispatcher {
	d := &Dispatcher{
		buckets:    buckets,
		queueLimit: DefaultQueueLimit,
		now:        time.Now,
		stopChan:   make(chan struct{}),
		log:        logging.Component("sink"),
	}
	for _, w := range writers {
		d.queues = append(d.queues, &queue{writer: w})
	}
	return d
}

// Observe is a pipeline.Observer that queues admitted alerts and any
// buckets closed by the tick.
func (d *Dispatcher) Observe(res pipeline.TickResult) {
	d.enqueue(res.Admitted, d.takeBuckets())
}

func (d *Dispatcher) takeBuckets() []model.TrafficBucket {
	if d.buckets == nil {
		return nil
	}
	return d.buckets.TakeClosedBuckets()
}

func (d *Dispatcher) enqueue(alerts []model.Alert, closed []model.TrafficBucket) {
	if len(alerts) == 0 && len(closed) == 0 {
		return
	}
	for _, q := range d.queues {
		q.mu.Lock()
		q.alerts = append(q.alerts, alerts...)
		q.buckets = append(q.buckets, closed...)
		if over := len(q.alerts) - d.queueLimit; over > 0 {
			q.alerts = append(q.alerts[:0:0], q.alerts[over:]...)
			metrics.RecordDropped("sink:"+q.writer.Name(), "queue_full")
		}
		if over := len(q.buckets) - d.queueLimit; over > 0 {
			q.buckets = append(q.buckets[:0:0], q.buckets[over:]...)
		}
		q.mu.Unlock()
	}
}

// Start launches one flush loop per writer.
func (d *Dispatcher) Start() {
	for _, q := range d.queues {
		interval := q.writer.GetInterval()
		if interval <= 0 {
			d.log.Warn().Str("writer", q.writer.Name()).Dur("interval", interval).Msg("Invalid interval for writer, flushing only on stop")
		}
		d.wg.Add(1)
		go d.run(q, interval)
		d.log.Info().Str("writer", q.writer.Name()).Dur("interval", interval).Msg("Started sink writer")
	}
}

func (d *Dispatcher) run(q *queue, interval time.Duration) {
	defer d.wg.Done()
	if interval <= 0 {
		<-d.stopChan
		d.flush(q)
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.flush(q)
		case <-d.stopChan:
			d.flush(q)
			return
		}
	}
}

// Flush writes everything queued to every writer now.
func (d *Dispatcher) Flush() {
	for _, q := range d.queues {
		d.flush(q)
	}
}

func (d *Dispatcher) flush(q *queue) {
	q.mu.Lock()
	batch := model.SinkBatch{
		Timestamp: d.now(),
		Alerts:    q.alerts,
		Buckets:   q.buckets,
	}
	q.alerts = nil
	q.buckets = nil
	q.mu.Unlock()

	if batch.Empty() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	err := q.writer.Write(ctx, batch)
	metrics.RecordSinkWrite(q.writer.Name(), err)
	if err != nil {
		d.log.Error().Err(err).Str("writer", q.writer.Name()).Int("alerts", len(batch.Alerts)).Int("buckets", len(batch.Buckets)).Msg("Sink write failed, batch dropped")
		return
	}
	d.log.Debug().Str("writer", q.writer.Name()).Int("alerts", len(batch.Alerts)).Int("buckets", len(batch.Buckets)).Msg("Sink write completed")
}

// Stop picks up buckets closed since the last tick, ends every loop after a
// final flush and closes writers that hold connections. Stop the pipeline
// first so its open bucket is included.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.log.Info().Msg("Waiting for sink writers to finish...")
		d.enqueue(nil, d.takeBuckets())
		close(d.stopChan)
		d.wg.Wait()
		// Covers a dispatcher that was never started.
		d.Flush()

		for _, q := range d.queues {
			if c, ok := q.writer.(io.Closer); ok {
				if err := c.Close(); err != nil {
					d.log.Warn().Err(err).Str("writer", q.writer.Name()).Msg("Failed to close sink writer")
				}
			}
		}
	})
}
