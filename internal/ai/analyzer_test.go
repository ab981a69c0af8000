package ai

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"CyberGuard/internal/config"
	"CyberGuard/internal/model"
)

func testAlert() model.Alert {
	return model.Alert{
		ID: "a-1",
		AlertCandidate: model.AlertCandidate{
			AttackType:    model.AttackBruteForce,
			Severity:      model.SeverityCritical,
			SrcAddr:       "203.0.113.5",
			TargetAddr:    "192.168.1.20",
			Description:   "Multiple SSH connection attempts (9) detected in short duration.",
			EvidenceCount: 9,
			DetectedAt:    time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC).UnixMilli(),
		},
	}
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(testAlert())
	for _, want := range []string{
		"Attack Type: Brute Force",
		"Severity: CRITICAL",
		"Source IP: 203.0.113.5",
		"Target IP: 192.168.1.20",
		"Timestamp: 2024-05-01T10:00:00Z",
		"**Analysis**",
		"**Risk Assessment**",
		"**Immediate Action**",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q:\n%s", want, p)
		}
	}
}

func TestNewAlertAnalyzerRequiresKey(t *testing.T) {
	if _, err := NewAlertAnalyzer(config.AIConfig{}); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("got %v, want ErrNoAPIKey", err)
	}
}

func fakeCompletions(t *testing.T, content string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization header = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), "203.0.113.5") {
			t.Errorf("request body does not carry the alert: %s", body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			io.WriteString(w, `{"error":{"message":"boom","type":"server_error"}}`)
			return
		}
		if content == "" {
			io.WriteString(w, `{"id":"x","object":"chat.completion","choices":[]}`)
			return
		}
		io.WriteString(w, `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"`+content+`"},"finish_reason":"stop"}]}`)
	}))
}

func TestAnalyzeAlert(t *testing.T) {
	srv := fakeCompletions(t, "**Analysis**: SSH brute force.", http.StatusOK)
	defer srv.Close()

	a, err := NewAlertAnalyzer(config.AIConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1", Model: "test-model"})
	if err != nil {
		t.Fatal(err)
	}
	got, err := a.AnalyzeAlert(context.Background(), testAlert())
	if err != nil {
		t.Fatalf("AnalyzeAlert failed: %v", err)
	}
	if got != "**Analysis**: SSH brute force." {
		t.Errorf("analysis = %q", got)
	}
}

func TestAnalyzeAlertEmptyResponse(t *testing.T) {
	srv := fakeCompletions(t, "", http.StatusOK)
	defer srv.Close()

	a, _ := NewAlertAnalyzer(config.AIConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
	if _, err := a.AnalyzeAlert(context.Background(), testAlert()); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("got %v, want ErrEmptyResponse", err)
	}
}

func TestAnalyzeAlertServerError(t *testing.T) {
	srv := fakeCompletions(t, "", http.StatusInternalServerError)
	defer srv.Close()

	a, _ := NewAlertAnalyzer(config.AIConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
	_, err := a.AnalyzeAlert(context.Background(), testAlert())
	if err == nil || !strings.Contains(err.Error(), "OpenAI API error") {
		t.Errorf("got %v, want wrapped API error", err)
	}
}
