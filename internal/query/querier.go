// Package query reads alert history back from ClickHouse.
package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"CyberGuard/internal/config"
	"CyberGuard/internal/engine/series"
	"CyberGuard/internal/model"
	"CyberGuard/internal/sink"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// AlertFilter narrows a history query. Zero values mean "no constraint".
type AlertFilter struct {
	Attack      model.AttackType
	HasAttack   bool
	MinSeverity model.Severity
	SrcAddr     string
	Since       time.Time
	Until       time.Time
	Limit       int
}

// AttackCount is one row of an aggregation by attack type.
type AttackCount struct {
	AttackType string    `json:"type"`
	Alerts     uint64    `json:"alerts"`
	Sources    uint64    `json:"sources"`
	FirstSeen  time.Time `json:"firstSeen"`
	LastSeen   time.Time `json:"lastSeen"`
}

// Querier defines the interface for querying persisted detections.
type Querier interface {
	QueryAlerts(ctx context.Context, f AlertFilter) ([]model.Alert, error)
	CountByAttack(ctx context.Context, since, until time.Time) ([]AttackCount, error)
	TrafficSeries(ctx context.Context, since, until time.Time) ([]model.TrafficBucket, error)
	Close() error
}

// clickhouseQuerier implements the Querier interface for ClickHouse.
type clickhouseQuerier struct {
	conn driver.Conn
}

// NewClickHouseQuerier creates a new querier for ClickHouse.
func NewClickHouseQuerier(cfg config.ClickHouseConfig) (Querier, error) {
	conn, err := sink.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	return &clickhouseQuerier{conn: conn}, nil
}

func (q *clickhouseQuerier) Close() error {
	return q.conn.Close()
}

// buildAlertQuery returns the SQL and arguments for f. Values are always
// bound as parameters.
func buildAlertQuery(f AlertFilter) (string, []any) {
	var b strings.Builder
	b.WriteString(`
		SELECT ID, AttackType, Severity, SrcAddr, TargetAddr, Description, EvidenceCount, DetectedAt
		FROM nids_alerts`)

	var where []string
	var args []any
	if f.HasAttack {
		where = append(where, "AttackType = ?")
		args = append(args, f.Attack.Slug())
	}
	if f.MinSeverity > model.SeverityInfo {
		var allowed []string
		for _, s := range model.Severities() {
			if s >= f.MinSeverity {
				allowed = append(allowed, s.String())
			}
		}
		where = append(where, "Severity IN ?")
		args = append(args, allowed)
	}
	if f.SrcAddr != "" {
		where = append(where, "SrcAddr = ?")
		args = append(args, f.SrcAddr)
	}
	if !f.Since.IsZero() {
		where = append(where, "DetectedAt >= ?")
		args = append(args, f.Since.UTC())
	}
	if !f.Until.IsZero() {
		where = append(where, "DetectedAt <= ?")
		args = append(args, f.Until.UTC())
	}
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	fmt.Fprintf(&b, " ORDER BY DetectedAt DESC LIMIT %d", limit)
	return b.String(), args
}

// QueryAlerts returns persisted alerts, most recent first.
func (q *clickhouseQuerier) QueryAlerts(ctx context.Context, f AlertFilter) ([]model.Alert, error) {
	sql, args := buildAlertQuery(f)
	rows, err := q.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		var (
			a                model.Alert
			attack, severity string
			evidence         uint32
			detectedAt       time.Time
		)
		if err := rows.Scan(&a.ID, &attack, &severity, &a.SrcAddr, &a.TargetAddr, &a.Description, &evidence, &detectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}
		if a.AttackType, err = model.ParseAttackType(attack); err != nil {
			return nil, err
		}
		if a.Severity, err = model.ParseSeverity(severity); err != nil {
			return nil, err
		}
		a.EvidenceCount = int(evidence)
		a.DetectedAt = detectedAt.UnixMilli()
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// CountByAttack aggregates persisted alerts per attack type.
func (q *clickhouseQuerier) CountByAttack(ctx context.Context, since, until time.Time) ([]AttackCount, error) {
	sql, args := timeRange(`
		SELECT AttackType, count() AS Alerts, uniqExact(SrcAddr) AS Sources, min(DetectedAt), max(DetectedAt)
		FROM nids_alerts`, "DetectedAt", since, until)
	sql += " GROUP BY AttackType ORDER BY Alerts DESC"

	rows, err := q.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var out []AttackCount
	for rows.Next() {
		var c AttackCount
		if err := rows.Scan(&c.AttackType, &c.Alerts, &c.Sources, &c.FirstSeen, &c.LastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan aggregation result: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// TrafficSeries returns persisted buckets, oldest first.
func (q *clickhouseQuerier) TrafficSeries(ctx context.Context, since, until time.Time) ([]model.TrafficBucket, error) {
	sql, args := timeRange(`
		SELECT Second, sum(Packets), sum(Alerts)
		FROM nids_traffic`, "Second", since, until)
	sql += fmt.Sprintf(" GROUP BY Second ORDER BY Second LIMIT %d", MaxLimit)

	rows, err := q.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var out []model.TrafficBucket
	for rows.Next() {
		var (
			second          time.Time
			packets, alerts uint64
		)
		if err := rows.Scan(&second, &packets, &alerts); err != nil {
			return nil, fmt.Errorf("failed to scan traffic row: %w", err)
		}
		out = append(out, model.TrafficBucket{
			Label:   second.Local().Format(series.LabelLayout),
			Second:  second.Unix(),
			Packets: int(packets),
			Alerts:  int(alerts),
		})
	}
	return out, rows.Err()
}

func timeRange(base, column string, since, until time.Time) (string, []any) {
	var where []string
	var args []any
	if !since.IsZero() {
		where = append(where, column+" >= ?")
		args = append(args, since.UTC())
	}
	if !until.IsZero() {
		where = append(where, column+" <= ?")
		args = append(args, until.UTC())
	}
	if len(where) > 0 {
		base += " WHERE " + strings.Join(where, " AND ")
	}
	return base, args
}
