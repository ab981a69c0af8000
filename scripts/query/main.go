package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"CyberGuard/internal/config"
	"CyberGuard/internal/logging"
	"CyberGuard/internal/model"
	"CyberGuard/internal/query"

	"github.com/goccy/go-json"
)

func main() {
	mode := flag.String("mode", "api", "Query mode: 'api' to query via HTTP API, 'direct' to query ClickHouse directly.")
	apiAddr := flag.String("api", "http://localhost:8080", "Base URL of the engine API (api mode)")
	configFile := flag.String("config", "configs/config.yaml", "Path to the configuration file (direct mode)")
	attack := flag.String("type", "", "Only alerts of this attack type (optional).")
	since := flag.Duration("since", time.Hour, "How far back to look")
	limit := flag.Int("limit", 20, "Maximum number of alerts")
	flag.Parse()

	until := time.Now().UTC()
	from := until.Add(-*since)
	logging.Info().Str("mode", *mode).Time("since", from).Msg("Querying alert history")

	var (
		alerts []model.Alert
		err    error
	)
	switch *mode {
	case "api":
		alerts, err = queryViaAPI(*apiAddr, *attack, from, until, *limit)
	case "direct":
		alerts, err = queryDirect(*configFile, *attack, from, until, *limit)
	default:
		logging.Fatal().Str("mode", *mode).Msg("Invalid mode. Use 'api' or 'direct'.")
	}
	if err != nil {
		logging.Fatal().Err(err).Msg("Query failed")
	}

	fmt.Printf("--- %d alerts ---\n", len(alerts))
	for _, a := range alerts {
		fmt.Printf("%s  %-13s  %-8s  %s -> %s  (%d)\n",
			time.UnixMilli(a.DetectedAt).UTC().Format(time.RFC3339), a.AttackType, a.Severity,
			a.SrcAddr, a.TargetAddr, a.EvidenceCount)
	}
}

// queryViaAPI calls the engine's history endpoint.
func queryViaAPI(base, attack string, since, until time.Time, limit int) ([]model.Alert, error) {
	params := url.Values{}
	params.Set("since", since.Format(time.RFC3339))
	params.Set("until", until.Format(time.RFC3339))
	params.Set("limit", fmt.Sprint(limit))
	if attack != "" {
		params.Set("type", attack)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(base + "/api/v1/history/alerts?" + params.Encode())
	if err != nil {
		return nil, fmt.Errorf("error sending request to API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned %s: %s", resp.Status, body)
	}
	var alerts []model.Alert
	if err := json.Unmarshal(body, &alerts); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}
	return alerts, nil
}

// queryDirect reads ClickHouse using the first enabled clickhouse writer.
func queryDirect(configFile, attack string, since, until time.Time, limit int) ([]model.Alert, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, err
	}
	var ch *config.ClickHouseConfig
	for i := range cfg.Sinks.Writers {
		if w := &cfg.Sinks.Writers[i]; w.Enabled && w.Type == "clickhouse" {
			ch = &w.ClickHouse
			break
		}
	}
	if ch == nil {
		return nil, fmt.Errorf("no enabled clickhouse writer in %s", configFile)
	}

	q, err := query.NewClickHouseQuerier(*ch)
	if err != nil {
		return nil, err
	}
	defer q.Close()

	f := query.AlertFilter{Since: since, Until: until, Limit: limit}
	if attack != "" {
		if f.Attack, err = model.ParseAttackType(attack); err != nil {
			return nil, err
		}
		f.HasAttack = true
	}
	return q.QueryAlerts(context.Background(), f)
}
