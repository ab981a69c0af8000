package query

import (
	"strings"
	"testing"
	"time"

	"CyberGuard/internal/model"
)

func TestBuildAlertQuery(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		filter    AlertFilter
		wantWhere []string
		wantArgs  int
		wantLimit string
	}{
		{
			name:      "no filter",
			filter:    AlertFilter{},
			wantArgs:  0,
			wantLimit: "LIMIT 100",
		},
		{
			name:      "attack and source",
			filter:    AlertFilter{Attack: model.AttackSynFlood, HasAttack: true, SrcAddr: "185.199.11.22", Limit: 5},
			wantWhere: []string{"AttackType = ?", "SrcAddr = ?"},
			wantArgs:  2,
			wantLimit: "LIMIT 5",
		},
		{
			name:      "severity and time",
			filter:    AlertFilter{MinSeverity: model.SeverityHigh, Since: since, Limit: 5000},
			wantWhere: []string{"Severity IN ?", "DetectedAt >= ?"},
			wantArgs:  2,
			wantLimit: "LIMIT 1000",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := buildAlertQuery(tt.filter)
			for _, w := range tt.wantWhere {
				if !strings.Contains(sql, w) {
					t.Errorf("query missing %q:\n%s", w, sql)
				}
			}
			if len(tt.wantWhere) == 0 && strings.Contains(sql, "WHERE") {
				t.Errorf("unexpected WHERE clause:\n%s", sql)
			}
			if len(args) != tt.wantArgs {
				t.Errorf("args = %v, want %d", args, tt.wantArgs)
			}
			if !strings.HasSuffix(sql, tt.wantLimit) {
				t.Errorf("query should end with %q:\n%s", tt.wantLimit, sql)
			}
		})
	}
}

func TestBuildAlertQuerySeverityList(t *testing.T) {
	_, args := buildAlertQuery(AlertFilter{MinSeverity: model.SeverityHigh})
	got, ok := args[0].([]string)
	if !ok || len(got) != 2 || got[0] != "high" || got[1] != "critical" {
		t.Errorf("severity args = %v", args[0])
	}
}

func TestTimeRange(t *testing.T) {
	sql, args := timeRange("SELECT 1 FROM t", "Second", time.Time{}, time.Unix(10, 0))
	if sql != "SELECT 1 FROM t WHERE Second <= ?" || len(args) != 1 {
		t.Errorf("got %q %v", sql, args)
	}
}
