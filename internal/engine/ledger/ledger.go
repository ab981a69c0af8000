// Package ledger admits alert candidates, suppresses repeats and keeps the
// bounded alert history consumers read from.
//
// The suppression key is (AttackType, SrcAddr). TargetAddr is deliberately
// not part of it: one source hitting two victims with the same attack inside
// the suppression window produces a single alert. Suppression only consults
// retained history, so a repeat of an alert already evicted for capacity is
// admitted again.
package ledger

import (
	"errors"
	"sync"
	"time"

	"CyberGuard/internal/model"

	"github.com/google/uuid"
)

const (
	DefaultCapacity       = 50
	DefaultSuppressWindow = 5 * time.Second
)

// ErrAlertNotFound is returned when an alert ID is not in retained history.
var ErrAlertNotFound = errors.New("alert not found")

// Config bounds the ledger.
type Config struct {
	Capacity       int
	SuppressWindow time.Duration
}

// Ledger is the canonical alert history, most recent first. Admit is called
// by the pipeline worker only; reads and Annotate may come from any goroutine.
type Ledger struct {
	capacity   int
	suppressMs int64
	newID      func() string

	mu      sync.RWMutex
	history []*model.Alert
	byID    map[string]*model.Alert
}

// New creates an empty ledger, filling unset bounds with defaults.
func New(cfg Config) *Ledger {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.SuppressWindow <= 0 {
		cfg.SuppressWindow = DefaultSuppressWindow
	}
	return &Ledger{
		capacity:   cfg.Capacity,
		suppressMs: cfg.SuppressWindow.Milliseconds(),
		newID:      uuid.NewString,
		byID:       make(map[string]*model.Alert),
	}
}

// Admit checks each candidate in order against retained history plus the
// alerts already admitted earlier in the same call, and returns the ones that
// were admitted as new alerts.
func (l *Ledger) Admit(candidates []model.AlertCandidate, now int64) []model.Alert {
	if len(candidates) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var fresh []*model.Alert
	for _, c := range candidates {
		if l.suppressed(c, now, fresh) {
			continue
		}
		fresh = append(fresh, &model.Alert{ID: l.newID(), AlertCandidate: c})
	}
	if len(fresh) == 0 {
		return nil
	}

	history := make([]*model.Alert, 0, min(len(fresh)+len(l.history), l.capacity))
	history = append(history, fresh...)
	history = append(history, l.history...)
	if len(history) > l.capacity {
		for _, evicted := range history[l.capacity:] {
			delete(l.byID, evicted.ID)
		}
		history = history[:l.capacity]
	}
	l.history = history
	for _, a := range history[:min(len(fresh), len(history))] {
		l.byID[a.ID] = a
	}

	admitted := make([]model.Alert, len(fresh))
	for i, a := range fresh {
		admitted[i] = *a
	}
	return admitted
}

func (l *Ledger) suppressed(c model.AlertCandidate, now int64, fresh []*model.Alert) bool {
	match := func(a *model.Alert) bool {
		return a.AttackType == c.AttackType && a.SrcAddr == c.SrcAddr && now-a.DetectedAt < l.suppressMs
	}
	for _, a := range fresh {
		if match(a) {
			return true
		}
	}
	for _, a := range l.history {
		if match(a) {
			return true
		}
	}
	return false
}

// History returns a copy of the retained alerts, most recent first.
func (l *Ledger) History() []model.Alert {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.Alert, len(l.history))
	for i, a := range l.history {
		out[i] = *a
	}
	return out
}

// Get returns a copy of a retained alert.
func (l *Ledger) Get(id string) (model.Alert, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.byID[id]
	if !ok {
		return model.Alert{}, false
	}
	return *a, true
}

// Annotate attaches enrichment text to a retained alert. It is the only
// mutation an admitted alert ever undergoes.
func (l *Ledger) Annotate(id, analysis string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.byID[id]
	if !ok {
		return ErrAlertNotFound
	}
	a.AIAnalysis = analysis
	return nil
}

// Len returns the number of retained alerts.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.history)
}
