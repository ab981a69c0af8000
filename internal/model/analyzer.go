package model

import (
	"context"
)

// Analyzer defines the standard interface for an AI alert analyzer.
type Analyzer interface {
	// AnalyzeAlert returns free-text analysis of a single admitted alert.
	AnalyzeAlert(ctx context.Context, alert Alert) (string, error)
}
