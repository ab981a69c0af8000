package aiservice

import (
	"context"
	"errors"
	"net"
	"testing"

	"CyberGuard/internal/ai"
	"CyberGuard/internal/model"

	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

type fakeAnalyzer struct {
	alertOut string
	textOut  string
	err      error
	got      model.Alert
	gotText  string
}

func (f *fakeAnalyzer) AnalyzeAlert(_ context.Context, a model.Alert) (string, error) {
	f.got = a
	return f.alertOut, f.err
}

func (f *fakeAnalyzer) AnalyzeText(_ context.Context, s string) (string, error) {
	f.gotText = s
	return f.textOut, f.err
}

func startServer(t *testing.T, svc Server) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	Register(s, svc)
	go s.Serve(lis)
	t.Cleanup(s.Stop)

	client, err := Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func testAlert() model.Alert {
	return model.Alert{
		ID: "a-1",
		AlertCandidate: model.AlertCandidate{
			AttackType:    model.AttackSynFlood,
			Severity:      model.SeverityHigh,
			SrcAddr:       "185.199.11.22",
			TargetAddr:    "192.168.1.4",
			Description:   "Abnormal volume of SYN packets (16) detected. Possible DoS attempt.",
			EvidenceCount: 16,
			DetectedAt:    1_700_000_000_000,
		},
	}
}

func TestAnalyzeAlertRoundTrip(t *testing.T) {
	fake := &fakeAnalyzer{alertOut: "**Analysis**: SYN flood"}
	client := startServer(t, NewService(fake))

	got, err := client.AnalyzeAlert(context.Background(), testAlert())
	if err != nil {
		t.Fatalf("AnalyzeAlert failed: %v", err)
	}
	if got != "**Analysis**: SYN flood" {
		t.Errorf("analysis = %q", got)
	}
	if fake.got != testAlert() {
		t.Errorf("server saw %+v, want %+v", fake.got, testAlert())
	}
}

func TestAnalyzeText(t *testing.T) {
	fake := &fakeAnalyzer{textOut: "digest analysis"}
	client := startServer(t, NewService(fake))

	got, err := client.AnalyzeText(context.Background(), "3 alerts")
	if err != nil || got != "digest analysis" {
		t.Errorf("AnalyzeText = %q, %v", got, err)
	}
	if fake.gotText != "3 alerts" {
		t.Errorf("server saw %q", fake.gotText)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		svc  *Service
		want error
	}{
		{"no backend", NewService(nil), ai.ErrNoAPIKey},
		{"empty answer", NewService(&fakeAnalyzer{err: ai.ErrEmptyResponse}), ai.ErrEmptyResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := startServer(t, tt.svc)
			if _, err := client.AnalyzeAlert(context.Background(), testAlert()); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}

	client := startServer(t, NewService(&fakeAnalyzer{err: errors.New("upstream down")}))
	if _, err := client.AnalyzeAlert(context.Background(), testAlert()); err == nil {
		t.Error("expected an error from a failing backend")
	}
}

func TestAlertFromStructRejectsBadFields(t *testing.T) {
	s, err := AlertToStruct(testAlert())
	if err != nil {
		t.Fatal(err)
	}
	delete(s.Fields, "severity")
	if _, err := AlertFromStruct(s); err == nil {
		t.Error("expected error for missing severity")
	}
}
