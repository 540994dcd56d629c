package notification

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"maintenance-monitor-backend/config"
	"maintenance-monitor-backend/internal/model"
)

// ChatMessage is a message posted to the maintenance chat channel.
type ChatMessage struct {
	Text     string
	Body     string
	Severity model.Severity
	Fields   []Field
	URL      string
}

// ChatSender posts messages to a chat service.
type ChatSender interface {
	Post(ctx context.Context, msg ChatMessage) error
}

// WebhookNotifier posts to a Slack-compatible incoming webhook.
type WebhookNotifier struct {
	url     string
	channel string
	client  *http.Client
	limiter *rate.Limiter
}

// NewWebhookNotifier creates a notifier for the configured webhook. Posts are rate limited.
func NewWebhookNotifier(cfg config.SlackConfig) *WebhookNotifier {
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	return &WebhookNotifier{
		url:     cfg.WebhookURL,
		channel: cfg.Channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(limit, 1),
	}
}

type webhookAttachment struct {
	Color     string  `json:"color"`
	Title     string  `json:"title,omitempty"`
	TitleLink string  `json:"title_link,omitempty"`
	Text      string  `json:"text,omitempty"`
	Fields    []field `json:"fields,omitempty"`
	Footer    string  `json:"footer"`
	Ts        int64   `json:"ts"`
}

type field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type webhookPayload struct {
	Channel     string              `json:"channel,omitempty"`
	Text        string              `json:"text"`
	Attachments []webhookAttachment `json:"attachments"`
}

// Post sends the message. It waits for the rate limiter, honouring ctx.
func (n *WebhookNotifier) Post(ctx context.Context, msg ChatMessage) error {
	if n.url == "" {
		return ErrNotConfigured
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("chat rate limiter: %w", err)
	}

	fields := make([]field, 0, len(msg.Fields))
	for _, f := range msg.Fields {
		fields = append(fields, field{Title: f.Title, Value: f.Value, Short: true})
	}
	payload := webhookPayload{
		Channel: n.channel,
		Text:    msg.Text,
		Attachments: []webhookAttachment{{
			Color:     severityColor(msg.Severity),
			Title:     msg.Text,
			TitleLink: msg.URL,
			Text:      msg.Body,
			Fields:    fields,
			Footer:    "Sistema de Mantenimiento Predictivo",
			Ts:        time.Now().Unix(),
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func severityColor(s model.Severity) string {
	switch s {
	case model.SeverityCritical:
		return "danger"
	case model.SeverityHigh, model.SeverityMedium:
		return "warning"
	}
	return "good"
}
