package model

import (
	"context"
	"time"
)

// SinkBatch is the unit handed to a Writer: alerts admitted and series
// buckets closed since the previous flush.
type SinkBatch struct {
	Timestamp time.Time
	Alerts    []Alert
	Buckets   []TrafficBucket
}

// Empty reports whether the batch carries nothing worth persisting.
func (b SinkBatch) Empty() bool {
	return len(b.Alerts) == 0 && len(b.Buckets) == 0
}

// Writer defines a generic interface for persisting detection output.
type Writer interface {
	// Write persists one batch. Implementations must not retain the slices.
	Write(ctx context.Context, batch SinkBatch) error

	// GetInterval returns the configured flush interval for this writer.
	GetInterval() time.Duration

	Name() string
}
