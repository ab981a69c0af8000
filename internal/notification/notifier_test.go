package notification

import (
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"CyberGuard/internal/config"
)

func TestNewEmailNotifierRequiresRecipients(t *testing.T) {
	_, err := NewEmailNotifier(config.SMTPConfig{Host: "mail.local", Port: 25, To: " , "})
	if !errors.Is(err, ErrNoRecipients) {
		t.Errorf("got %v, want ErrNoRecipients", err)
	}
}

func TestSendBuildsMessage(t *testing.T) {
	n, err := NewEmailNotifier(config.SMTPConfig{
		Host: "mail.local",
		Port: 2525,
		From: "nids@example.com",
		To:   "soc@example.com, oncall@example.com",
	})
	if err != nil {
		t.Fatal(err)
	}

	var gotAddr string
	var gotTo []string
	var gotMsg string
	n.send = func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	if err := n.Send("2 alerts", "<h1>hi</h1>"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if gotAddr != "mail.local:2525" {
		t.Errorf("addr = %q", gotAddr)
	}
	if len(gotTo) != 2 || gotTo[1] != "oncall@example.com" {
		t.Errorf("recipients = %v", gotTo)
	}
	for _, want := range []string{"Subject: 2 alerts\r\n", "Content-Type: text/html", "\r\n\r\n<h1>hi</h1>"} {
		if !strings.Contains(gotMsg, want) {
			t.Errorf("message missing %q:\n%s", want, gotMsg)
		}
	}

	n.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("refused") }
	if err := n.Send("x", "y"); err == nil {
		t.Error("expected send error")
	}
}
