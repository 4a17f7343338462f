package notifier

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"rabbitwatch/internal/models"
)

// Email mails critical alerts and their recoveries through SendGrid.
type Email struct {
	APIKey string
	To     string
	// From must be a sender verified in SendGrid. Empty means To.
	From    string
	Timeout time.Duration
	// BaseURL overrides the SendGrid endpoint.
	BaseURL string
}

func NewEmail(apiKey, from, to string, timeout time.Duration) *Email {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Email{APIKey: apiKey, From: from, To: to, Timeout: timeout}
}

func (e *Email) Name() string { return "email" }

func (e *Email) Enabled() bool {
	return e.APIKey != "" && e.To != ""
}

func (e *Email) Accepts(intent models.Intent) bool {
	return intent.Type != models.IntentStartup && intent.Finding.Severity == models.SeverityCritical
}

func (e *Email) Send(ctx context.Context, msg Message) error {
	if !e.Enabled() {
		return fmt.Errorf("sendgrid not configured")
	}
	sender := e.From
	if sender == "" {
		sender = e.To
	}
	from := mail.NewEmail("RabbitMQ Monitor", sender)
	to := mail.NewEmail("Operator", e.To)
	plain := renderPlain(msg)
	m := mail.NewSingleEmail(from, msg.Title, to, plain, "<pre>"+html.EscapeString(plain)+"</pre>")

	client := sendgrid.NewSendClient(e.APIKey)
	if e.BaseURL != "" {
		client.BaseURL = e.BaseURL
	}
	// The SendGrid client has no timeout of its own.
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	res, err := client.SendWithContext(ctx, m)
	if err != nil {
		return err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("sendgrid status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}

func renderPlain(msg Message) string {
	var b strings.Builder
	b.WriteString(msg.Title)
	b.WriteString("\n\n")
	b.WriteString(msg.Text)
	b.WriteString("\n")
	if len(msg.Fields) > 0 {
		b.WriteString("\n")
		for _, f := range msg.Fields {
			fmt.Fprintf(&b, "%s: %s\n", f.Title, f.Value)
		}
	}
	fmt.Fprintf(&b, "\n---\n%s, %s\n", msg.Footer, msg.Timestamp.UTC().Format("2006-01-02 15:04:05 MST"))
	return b.String()
}
