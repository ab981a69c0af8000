package enrichment

import (
	"errors"
	"fmt"

	"CyberGuard/internal/ai"
	"CyberGuard/internal/ai/aiservice"
	"CyberGuard/internal/config"
	"CyberGuard/internal/logging"
	"CyberGuard/internal/model"
)

// NewAnalyzer builds the analyzer selected by cfg.Enrichment.Mode. The
// returned close function is never nil. A direct analyzer without an API key
// yields a nil analyzer so the enricher answers with NoKeyPlaceholder.
func NewAnalyzer(cfg *config.Config) (model.Analyzer, func() error, error) {
	noop := func() error { return nil }
	if !cfg.Enrichment.Enabled {
		return nil, noop, ErrDisabled
	}

	switch cfg.Enrichment.Mode {
	case "grpc":
		client, err := aiservice.Dial(cfg.Enrichment.ServiceAddr)
		if err != nil {
			return nil, noop, err
		}
		logging.Info().Str("addr", cfg.Enrichment.ServiceAddr).Msg("Using remote AI service for enrichment")
		return client, client.Close, nil
	case "direct":
		analyzer, err := ai.NewAlertAnalyzer(cfg.AI)
		if errors.Is(err, ai.ErrNoAPIKey) {
			logging.Warn().Msg("AI API key is not configured; enrichment will return a placeholder")
			return nil, noop, nil
		}
		if err != nil {
			return nil, noop, err
		}
		return analyzer, noop, nil
	}
	return nil, noop, fmt.Errorf("unknown enrichment mode %q", cfg.Enrichment.Mode)
}
