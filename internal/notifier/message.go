package notifier

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"rabbitwatch/internal/models"
)

var severityColors = map[models.Severity]string{
	models.SeverityCritical: "#FF0000",
	models.SeverityWarning:  "#FFA500",
	models.SeverityInfo:     "#36A64F",
}

type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// Message is a channel-neutral rendering of an intent.
type Message struct {
	Title     string
	Text      string
	Severity  models.Severity
	Color     string
	Fields    []Field
	Footer    string
	Timestamp time.Time
}

// Fallback is the one-line form used where rich formatting is unavailable.
func (m Message) Fallback() string {
	return fmt.Sprintf("%s\n%s", m.Title, m.Text)
}

type Channel interface {
	Name() string
	Enabled() bool
	Send(ctx context.Context, msg Message) error
}

// Filter is implemented by channels that only want some intents.
type Filter interface {
	Accepts(intent models.Intent) bool
}

func Render(intent models.Intent, host string) Message {
	f := intent.Finding
	msg := Message{
		Severity:  f.Severity,
		Color:     colorFor(f.Severity),
		Footer:    "RabbitMQ Monitor - " + host,
		Timestamp: intent.At,
		Text:      f.Summary,
	}
	switch intent.Type {
	case models.IntentStartup:
		msg.Title = "RabbitMQ Monitoring Started"
		msg.Severity = models.SeverityInfo
		msg.Color = colorFor(models.SeverityInfo)
	case models.IntentRecovery:
		msg.Title = fmt.Sprintf("RabbitMQ Recovery - %s resolved", f.Kind.Title())
		msg.Severity = models.SeverityInfo
		msg.Color = colorFor(models.SeverityInfo)
		msg.Text = "Resolved: " + f.Summary
	case models.IntentRepeat:
		msg.Title = fmt.Sprintf("RabbitMQ Alert - %s (still firing): %s", strings.ToUpper(string(f.Severity)), f.Kind.Title())
	default:
		msg.Title = fmt.Sprintf("RabbitMQ Alert - %s: %s", strings.ToUpper(string(f.Severity)), f.Kind.Title())
	}

	if intent.Type != models.IntentStartup {
		msg.Fields = append(msg.Fields,
			Field{Title: "Condition", Value: string(f.Kind), Short: true},
			Field{Title: "Subject", Value: f.Subject, Short: true},
			Field{Title: "Severity", Value: string(f.Severity), Short: true},
		)
	}
	keys := make([]string, 0, len(f.Details))
	for k := range f.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		msg.Fields = append(msg.Fields, Field{Title: k, Value: formatValue(f.Details[k]), Short: true})
	}
	return msg
}

func colorFor(s models.Severity) string {
	if c, ok := severityColors[s]; ok {
		return c
	}
	return severityColors[models.SeverityWarning]
}

func formatValue(v any) string {
	switch t := v.(type) {
	case float64:
		return fmt.Sprintf("%.2f", t)
	case time.Duration:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
