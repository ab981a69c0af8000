// Package enrichment attaches AI analysis text to admitted alerts. It runs
// outside the pipeline tick and writes back through the alert ledger, so a
// slow or failing analyzer never affects detection.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"CyberGuard/internal/ai"
	"CyberGuard/internal/config"
	"CyberGuard/internal/engine/ledger"
	"CyberGuard/internal/engine/pipeline"
	"CyberGuard/internal/logging"
	"CyberGuard/internal/metrics"
	"CyberGuard/internal/model"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
)

// ErrDisabled is returned when enrichment was not configured.
var ErrDisabled = errors.New("alert enrichment is disabled")

// Texts stored on an alert when no real analysis could be produced.
const (
	NoKeyPlaceholder   = "API Key not configured. Please set ai.api_key to use AI features."
	FailurePlaceholder = "Failed to connect to AI analysis service. Please check your API key and network connection."
	EmptyPlaceholder   = "No analysis could be generated."
)

const (
	DefaultTimeout                = 60 * time.Second
	DefaultMaxConsecutiveFailures = 3
	DefaultOpenTimeout            = 30 * time.Second
)

// AlertStore is the part of the pipeline the enricher reads and annotates.
type AlertStore interface {
	Alert(id string) (model.Alert, bool)
	Annotate(id, analysis string) error
}

type Options struct {
	// Timeout bounds a single analyzer call.
	Timeout time.Duration
	// MaxConsecutiveFailures opens the breaker after this many failed calls.
	MaxConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
	// AutoMinSeverity enables automatic enrichment of admitted alerts at or
	// above this severity. Empty disables it.
	AutoMinSeverity string
}

// OptionsFromConfig converts the YAML section into Options.
func OptionsFromConfig(cfg config.EnrichmentConfig) Options {
	return Options{
		Timeout:                config.Duration(cfg.Timeout),
		MaxConsecutiveFailures: cfg.MaxConsecutive,
		OpenTimeout:            config.Duration(cfg.OpenStateTimeout),
		AutoMinSeverity:        cfg.AutoMinSeverity,
	}
}

// Enricher requests analyses and caches them on the alert.
type Enricher struct {
	store    AlertStore
	analyzer model.Analyzer
	timeout  time.Duration
	cb       *gobreaker.CircuitBreaker[string]

	auto    bool
	autoMin model.Severity

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]struct{}
	closed   bool

	log zerolog.Logger
}

// New creates an enricher. A nil analyzer is accepted and answers every
// request with NoKeyPlaceholder.
func New(store AlertStore, analyzer model.Analyzer, opts Options) (*Enricher, error) {
	if store == nil {
		return nil, errors.New("enrichment: alert store is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxConsecutiveFailures == 0 {
		opts.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = DefaultOpenTimeout
	}

	e := &Enricher{
		store:    store,
		analyzer: analyzer,
		timeout:  opts.Timeout,
		inflight: make(map[string]struct{}),
		log:      logging.Component("enrichment"),
	}
	if opts.AutoMinSeverity != "" {
		sev, err := model.ParseSeverity(opts.AutoMinSeverity)
		if err != nil {
			return nil, fmt.Errorf("enrichment: invalid auto_min_severity: %w", err)
		}
		e.auto = true
		e.autoMin = sev
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())

	maxFailures := opts.MaxConsecutiveFailures
	e.cb = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "ai-analysis",
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// A missing key or an empty answer is not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ai.ErrNoAPIKey) || errors.Is(err, ai.ErrEmptyResponse)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Enrichment breaker state changed")
			metrics.EnrichmentBreakerState.Set(float64(to))
		},
	})
	return e, nil
}

// Enrich returns the analysis of alert id, computing and storing it when the
// alert has none yet or refresh is set. Analyzer failures are reported as
// placeholder text, never as an error. The only errors are ErrDisabled and
// ledger.ErrAlertNotFound.
func (e *Enricher) Enrich(ctx context.Context, id string, refresh bool) (string, error) {
	if e == nil {
		return "", ErrDisabled
	}
	alert, ok := e.store.Alert(id)
	if !ok {
		return "", fmt.Errorf("enrich %s: %w", id, ledger.ErrAlertNotFound)
	}
	if alert.AIAnalysis != "" && !refresh {
		metrics.RecordEnrichment("cached", 0)
		return alert.AIAnalysis, nil
	}

	text := e.analyze(ctx, alert)
	if err := e.store.Annotate(id, text); err != nil {
		// The alert left the bounded history while we were waiting.
		e.log.Debug().Err(err).Str("alert", id).Msg("Alert evicted before analysis was stored")
	}
	return text, nil
}

func (e *Enricher) analyze(ctx context.Context, alert model.Alert) string {
	if e.analyzer == nil {
		metrics.RecordEnrichment("no_key", 0)
		return NoKeyPlaceholder
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	out, err := e.cb.Execute(func() (string, error) {
		return e.analyzer.AnalyzeAlert(ctx, alert)
	})
	dur := time.Since(start)

	switch {
	case errors.Is(err, ai.ErrNoAPIKey):
		metrics.RecordEnrichment("no_key", dur)
		return NoKeyPlaceholder
	case errors.Is(err, ai.ErrEmptyResponse), err == nil && strings.TrimSpace(out) == "":
		metrics.RecordEnrichment("empty", dur)
		return EmptyPlaceholder
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordEnrichment("rejected", 0)
		return FailurePlaceholder
	case err != nil:
		e.log.Warn().Err(err).Str("alert", alert.ID).Dur("took", dur).Msg("AI analysis failed")
		metrics.RecordEnrichment("failure", dur)
		return FailurePlaceholder
	}
	metrics.RecordEnrichment("success", dur)
	return out
}

// EnrichAsync starts a background enrichment of id. It reports false when
// one is already running for that alert or the enricher is closed.
func (e *Enricher) EnrichAsync(id string) bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	if _, busy := e.inflight[id]; busy {
		e.mu.Unlock()
		return false
	}
	e.inflight[id] = struct{}{}
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		defer func() {
			e.mu.Lock()
			delete(e.inflight, id)
			e.mu.Unlock()
		}()
		if _, err := e.Enrich(e.ctx, id, false); err != nil {
			e.log.Debug().Err(err).Str("alert", id).Msg("Background enrichment skipped")
		}
	}()
	return true
}

// Observe is a pipeline.Observer that schedules enrichment of newly admitted
// alerts at or above the configured severity.
func (e *Enricher) Observe(res pipeline.TickResult) {
	if e == nil || !e.auto {
		return
	}
	for _, a := range res.Admitted {
		if a.Severity >= e.autoMin {
			e.EnrichAsync(a.ID)
		}
	}
}

// Close cancels background requests and waits for them to return.
func (e *Enricher) Close() {
	if e == nil {
		return
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
}
