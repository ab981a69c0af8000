// Package ai talks to an OpenAI-compatible chat completion API to explain
// alerts in plain language.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"CyberGuard/internal/config"
	"CyberGuard/internal/model"

	"github.com/sashabaranov/go-openai"
)

var (
	ErrNoAPIKey      = errors.New("AI API key is not configured")
	ErrEmptyResponse = errors.New("AI API returned no content")
)

// AlertAnalyzer implements model.Analyzer using the chat completion API.
type AlertAnalyzer struct {
	cfg    config.AIConfig
	client *openai.Client
}

// NewAlertAnalyzer creates a new analyzer. It fails with ErrNoAPIKey when no
// key is configured.
func NewAlertAnalyzer(cfg config.AIConfig) (*AlertAnalyzer, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &AlertAnalyzer{
		cfg:    cfg,
		client: openai.NewClientWithConfig(clientConfig),
	}, nil
}

// BuildPrompt renders the analyst prompt for one alert.
func BuildPrompt(a model.Alert) string {
	var b strings.Builder
	b.WriteString("Act as a Senior Cybersecurity Analyst. Analyze the following Intrusion Detection System (IDS) alert:\n\n")
	fmt.Fprintf(&b, "Attack Type: %s\n", a.AttackType)
	fmt.Fprintf(&b, "Severity: %s\n", strings.ToUpper(a.Severity.String()))
	fmt.Fprintf(&b, "Source IP: %s\n", a.SrcAddr)
	fmt.Fprintf(&b, "Target IP: %s\n", a.TargetAddr)
	fmt.Fprintf(&b, "Description: %s\n", a.Description)
	fmt.Fprintf(&b, "Evidence Count: %d\n", a.EvidenceCount)
	fmt.Fprintf(&b, "Timestamp: %s\n\n", time.UnixMilli(a.DetectedAt).UTC().Format(time.RFC3339Nano))
	b.WriteString("Provide a concise response in Markdown format with:\n")
	b.WriteString("1. **Analysis**: What is happening?\n")
	b.WriteString("2. **Risk Assessment**: Why is this dangerous?\n")
	b.WriteString("3. **Immediate Action**: 2-3 specific commands or steps to mitigate this now (e.g., firewall rules for Linux/iptables).\n\n")
	b.WriteString("Keep it brief and professional.")
	return b.String()
}

// BuildDigestPrompt renders the prompt used for a batch of alerts.
func BuildDigestPrompt(summary string) string {
	return "You are a senior network security analyst. " +
		"Please analyze the following alert digest from the CyberGuard intrusion detection system. " +
		"Provide a concise analysis of the potential threats, their severity, and recommended next steps for investigation. " +
		"The output should be clear and actionable.\n\n" +
		"--- Alert Data ---\n" + summary + "\n--- End of Alert Data ---"
}

// AnalyzeAlert returns a Markdown analysis of a single alert.
func (a *AlertAnalyzer) AnalyzeAlert(ctx context.Context, alert model.Alert) (string, error) {
	return a.complete(ctx, BuildPrompt(alert))
}

// AnalyzeText analyzes free-form alert text, such as an alerter digest.
func (a *AlertAnalyzer) AnalyzeText(ctx context.Context, input string) (string, error) {
	return a.complete(ctx, BuildDigestPrompt(input))
}

func (a *AlertAnalyzer) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := a.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: a.cfg.Model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
		},
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("AI request timeout: %w", err)
		}
		if errors.Is(err, context.Canceled) {
			return "", fmt.Errorf("AI request canceled by client: %w", err)
		}
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}
