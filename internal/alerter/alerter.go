// Package alerter mails a periodic digest of severe alerts.
package alerter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"CyberGuard/internal/ai/aiservice"
	"CyberGuard/internal/config"
	"CyberGuard/internal/engine/pipeline"
	"CyberGuard/internal/logging"
	"CyberGuard/internal/model"

	"github.com/gomarkdown/markdown"
	"github.com/rs/zerolog"
)

// maxPending bounds the alerts queued between two checks; the oldest are
// dropped first.
const maxPending = 500

const aiTimeout = 60 * time.Second

// TextAnalyzer produces a free-text analysis of a digest.
type TextAnalyzer interface {
	AnalyzeText(ctx context.Context, input string) (string, error)
}

type Option func(*Alerter)

// WithTextAnalyzer replaces the AI service client built from the config.
func WithTextAnalyzer(t TextAnalyzer) Option {
	return func(a *Alerter) { a.aiClient = t }
}

// Alerter queues admitted alerts at or above a minimum severity and sends
// them as one notification every check interval.
type Alerter struct {
	minSeverity   model.Severity
	notifier      model.Notifier
	checkInterval time.Duration
	stopChan      chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup

	mu      sync.Mutex
	pending []model.Alert
	dropped int

	aiClient TextAnalyzer
	aiClose  func() error

	log zerolog.Logger
}

// NewAlerter creates a new Alerter instance.
func NewAlerter(cfg *config.AlerterConfig, notifier model.Notifier, opts ...Option) (*Alerter, error) {
	interval, err := time.ParseDuration(cfg.CheckInterval)
	if err != nil {
		return nil, fmt.Errorf("invalid check_interval for alerter: %w", err)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("check_interval must be positive, got %s", interval)
	}
	minSev, err := model.ParseSeverity(cfg.MinSeverity)
	if err != nil {
		return nil, fmt.Errorf("invalid min_severity for alerter: %w", err)
	}

	a := &Alerter{
		minSeverity:   minSev,
		notifier:      notifier,
		checkInterval: interval,
		stopChan:      make(chan struct{}),
		aiClose:       func() error { return nil },
		log:           logging.Component("alerter"),
	}
	for _, opt := range opts {
		opt(a)
	}

	if cfg.AIAnalysis.Enabled && a.aiClient == nil {
		a.log.Info().Str("addr", cfg.AIAnalysis.ServiceAddr).Msg("AI analysis is enabled, connecting to AI service")
		client, err := aiservice.Dial(cfg.AIAnalysis.ServiceAddr)
		if err != nil {
			return nil, err
		}
		a.aiClient = client
		a.aiClose = client.Close
	}
	return a, nil
}

// Observe is a pipeline.Observer that queues qualifying admitted alerts.
func (a *Alerter) Observe(res pipeline.TickResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, alert := range res.Admitted {
		if alert.Severity < a.minSeverity {
			continue
		}
		a.pending = append(a.pending, alert)
	}
	if over := len(a.pending) - maxPending; over > 0 {
		a.pending = append(a.pending[:0:0], a.pending[over:]...)
		a.dropped += over
	}
}

// Start begins the periodic digest loop.
func (a *Alerter) Start() {
	a.log.Info().Dur("interval", a.checkInterval).Str("min_severity", a.minSeverity.String()).Msg("Alerter started")
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(a.checkInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.Flush()
			case <-a.stopChan:
				return
			}
		}
	}()
}

// Stop ends the loop and sends whatever is still queued.
func (a *Alerter) Stop() {
	a.stopOnce.Do(func() {
		a.log.Info().Msg("Stopping Alerter...")
		close(a.stopChan)
		a.wg.Wait()
		a.Flush()
		if err := a.aiClose(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to close AI client")
		}
	})
}

// Flush sends one digest of the queued alerts, if any. It reports whether a
// notification was attempted.
func (a *Alerter) Flush() bool {
	a.mu.Lock()
	alerts := a.pending
	dropped := a.dropped
	a.pending = nil
	a.dropped = 0
	a.mu.Unlock()

	if len(alerts) == 0 {
		return false
	}
	a.log.Info().Int("alerts", len(alerts)).Int("dropped", dropped).Msg("Alerter evaluation completed")

	digest := BuildDigest(alerts, a.minSeverity, dropped)
	body := string(markdown.ToHTML([]byte(digest), nil, nil))

	if analysis, err := a.getAIAnalysis(digest); err != nil {
		a.log.Warn().Err(err).Msg("Failed to get AI analysis")
	} else if analysis != "" {
		html := markdown.ToHTML([]byte(analysis), nil, nil)
		body += "<hr><h2>AI-Powered Analysis</h2>" + string(html)
	}

	if a.notifier == nil {
		return true
	}
	subject := fmt.Sprintf("CyberGuard Alert Summary (%d Triggered)", len(alerts))
	if err := a.notifier.Send(subject, body); err != nil {
		a.log.Error().Err(err).Msg("Failed to send consolidated alert notification")
	} else {
		a.log.Info().Msg("Consolidated alert notification sent")
	}
	return true
}

func (a *Alerter) getAIAnalysis(digest string) (string, error) {
	if a.aiClient == nil {
		return "", nil
	}
	a.log.Debug().Msg("Requesting AI analysis for alert summary")
	ctx, cancel := context.WithTimeout(context.Background(), aiTimeout)
	defer cancel()

	out, err := a.aiClient.AnalyzeText(ctx, digest)
	if err != nil {
		return "", fmt.Errorf("AI service call failed: %w", err)
	}
	return out, nil
}

// BuildDigest renders alerts, oldest first, as a Markdown report.
func BuildDigest(alerts []model.Alert, minSeverity model.Severity, dropped int) string {
	var b strings.Builder
	b.WriteString("# CyberGuard Alert Summary\n\n")
	fmt.Fprintf(&b, "%d alert(s) at or above **%s** severity were raised since the last check.\n\n", len(alerts), minSeverity)
	if dropped > 0 {
		fmt.Fprintf(&b, "%d older alert(s) were dropped from this digest.\n\n", dropped)
	}
	b.WriteString("| Time (UTC) | Type | Severity | Source | Target | Evidence | Description |\n")
	b.WriteString("|---|---|---|---|---|---|---|\n")
	for _, al := range alerts {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %d | %s |\n",
			time.UnixMilli(al.DetectedAt).UTC().Format(time.DateTime),
			al.AttackType,
			strings.ToUpper(al.Severity.String()),
			cell(al.SrcAddr),
			cell(al.TargetAddr),
			al.EvidenceCount,
			cell(al.Description),
		)
	}
	return b.String()
}

func cell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
