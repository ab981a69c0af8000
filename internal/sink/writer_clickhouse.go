package sink

import (
	"context"
	"fmt"
	"time"

	"CyberGuard/internal/config"
	"CyberGuard/internal/factory"
	"CyberGuard/internal/logging"
	"CyberGuard/internal/model"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const createAlertsTable = `
CREATE TABLE IF NOT EXISTS nids_alerts (
    Timestamp     DateTime,
    ID            String,
    AttackType    LowCardinality(String),
    Severity      LowCardinality(String),
    SrcAddr       String,
    TargetAddr    String,
    Description   String,
    EvidenceCount UInt32,
    DetectedAt    DateTime64(3)
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(DetectedAt)
ORDER BY (AttackType, DetectedAt);
`

const createTrafficTable = `
CREATE TABLE IF NOT EXISTS nids_traffic (
    Timestamp DateTime,
    Second    DateTime,
    Packets   UInt32,
    Alerts    UInt32
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Second)
ORDER BY Second;
`

func init() {
	factory.RegisterWriter("clickhouse", func(def config.WriterDef) (model.Writer, error) {
		return NewClickHouseWriter(def.ClickHouse, config.Duration(def.SnapshotInterval))
	})
}

// ClickHouseWriter inserts alerts into nids_alerts and buckets into
// nids_traffic.
type ClickHouseWriter struct {
	conn     driver.Conn
	interval time.Duration
}

// NewClickHouseWriter connects and ensures both tables exist.
func NewClickHouseWriter(cfg config.ClickHouseConfig, interval time.Duration) (*ClickHouseWriter, error) {
	conn, err := Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	for _, stmt := range []string{createAlertsTable, createTrafficTable} {
		if err := conn.Exec(context.Background(), stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create table: %w", err)
		}
	}
	logging.Info().Str("host", cfg.Host).Msg("Connected to ClickHouse and ensured tables exist")

	return &ClickHouseWriter{conn: conn, interval: interval}, nil
}

// Connect opens and pings a ClickHouse connection.
func Connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

func (w *ClickHouseWriter) Name() string { return "clickhouse" }

func (w *ClickHouseWriter) GetInterval() time.Duration {
	return w.interval
}

func (w *ClickHouseWriter) Write(ctx context.Context, batch model.SinkBatch) error {
	ts := batch.Timestamp.UTC().Truncate(time.Second)

	if len(batch.Alerts) > 0 {
		b, err := w.conn.PrepareBatch(ctx, "INSERT INTO nids_alerts")
		if err != nil {
			return fmt.Errorf("failed to prepare alert batch: %w", err)
		}
		for _, a := range batch.Alerts {
			if err := b.Append(alertRow(ts, a)...); err != nil {
				b.Abort()
				return fmt.Errorf("failed to append alert to batch: %w", err)
			}
		}
		if err := b.Send(); err != nil {
			return fmt.Errorf("failed to send alert batch: %w", err)
		}
	}

	if len(batch.Buckets) > 0 {
		b, err := w.conn.PrepareBatch(ctx, "INSERT INTO nids_traffic")
		if err != nil {
			return fmt.Errorf("failed to prepare traffic batch: %w", err)
		}
		for _, bk := range batch.Buckets {
			if err := b.Append(trafficRow(ts, bk)...); err != nil {
				b.Abort()
				return fmt.Errorf("failed to append bucket to batch: %w", err)
			}
		}
		if err := b.Send(); err != nil {
			return fmt.Errorf("failed to send traffic batch: %w", err)
		}
	}

	logging.Debug().Int("alerts", len(batch.Alerts)).Int("buckets", len(batch.Buckets)).Msg("Wrote batch to ClickHouse")
	return nil
}

func (w *ClickHouseWriter) Close() error {
	return w.conn.Close()
}

func alertRow(ts time.Time, a model.Alert) []any {
	return []any{
		ts,
		a.ID,
		a.AttackType.Slug(),
		a.Severity.String(),
		a.SrcAddr,
		a.TargetAddr,
		a.Description,
		uint32(a.EvidenceCount),
		time.UnixMilli(a.DetectedAt).UTC(),
	}
}

func trafficRow(ts time.Time, b model.TrafficBucket) []any {
	return []any{
		ts,
		time.Unix(b.Second, 0).UTC(),
		uint32(b.Packets),
		uint32(b.Alerts),
	}
}
