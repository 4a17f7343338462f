package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Webhook posts Slack-compatible incoming-webhook payloads.
type Webhook struct {
	URL  string
	HTTP *http.Client
}

type webhookPayload struct {
	Text        string       `json:"text"`
	Attachments []attachment `json:"attachments"`
}

type attachment struct {
	Color    string  `json:"color"`
	Title    string  `json:"title"`
	Text     string  `json:"text"`
	Fields   []Field `json:"fields,omitempty"`
	Footer   string  `json:"footer"`
	Fallback string  `json:"fallback"`
	TS       int64   `json:"ts"`
}

func NewWebhook(url string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{
		URL:  url,
		HTTP: &http.Client{Timeout: timeout},
	}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Enabled() bool {
	return w.URL != ""
}

func (w *Webhook) Send(ctx context.Context, msg Message) error {
	if !w.Enabled() {
		return fmt.Errorf("webhook not configured")
	}
	payload := webhookPayload{
		Text: msg.Fallback(),
		Attachments: []attachment{{
			Color:    msg.Color,
			Title:    msg.Title,
			Text:     msg.Text,
			Fields:   msg.Fields,
			Footer:   msg.Footer,
			Fallback: msg.Fallback(),
			TS:       msg.Timestamp.Unix(),
		}},
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := w.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	resp, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d: %s", res.StatusCode, string(resp))
	}
	return nil
}
