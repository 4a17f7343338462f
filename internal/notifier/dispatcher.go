package notifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"rabbitwatch/internal/journal"
	"rabbitwatch/internal/metrics"
	"rabbitwatch/internal/models"
)

// Recorder receives one journal entry per delivery attempt.
type Recorder interface {
	RecordNotification(ctx context.Context, e journal.Entry) error
}

type Result struct {
	Sent    int
	Failed  int
	Skipped int
}

// Dispatcher fans an intent out to every enabled channel. It makes one
// attempt per channel and never returns delivery errors to the caller.
type Dispatcher struct {
	channels []Channel
	journal  Recorder
	host     string
	log      zerolog.Logger
	now      func() time.Time

	unconfigured sync.Once
}

func NewDispatcher(host string, rec Recorder, logger zerolog.Logger, channels ...Channel) *Dispatcher {
	return &Dispatcher{channels: channels, journal: rec, host: host, log: logger, now: time.Now}
}

// Configured reports whether at least one channel can deliver.
func (d *Dispatcher) Configured() bool {
	for _, ch := range d.channels {
		if ch.Enabled() {
			return true
		}
	}
	return false
}

func (d *Dispatcher) Deliver(ctx context.Context, intent models.Intent) Result {
	var res Result
	if !d.Configured() {
		d.unconfigured.Do(func() {
			d.log.Warn().Msg("no webhook URL configured, conditions are detected but not notified")
		})
		metrics.NotificationsTotal.WithLabelValues("none", string(intent.Type), journal.StatusSkipped).Inc()
		d.record(ctx, intent, "none", journal.StatusSkipped, "no channel configured")
		res.Skipped++
		return res
	}

	msg := Render(intent, d.host)
	for _, ch := range d.channels {
		if !ch.Enabled() {
			continue
		}
		if f, ok := ch.(Filter); ok && !f.Accepts(intent) {
			continue
		}
		if err := d.send(ctx, ch, msg); err != nil {
			res.Failed++
			metrics.NotificationsTotal.WithLabelValues(ch.Name(), string(intent.Type), journal.StatusFailed).Inc()
			d.log.Error().Err(err).
				Str("channel", ch.Name()).
				Str("intent_id", intent.ID).
				Str("alert", intent.Finding.Key().String()).
				Msg("notification failed")
			d.record(ctx, intent, ch.Name(), journal.StatusFailed, err.Error())
			continue
		}
		res.Sent++
		metrics.NotificationsTotal.WithLabelValues(ch.Name(), string(intent.Type), journal.StatusSent).Inc()
		d.log.Info().
			Str("channel", ch.Name()).
			Str("intent_id", intent.ID).
			Str("type", string(intent.Type)).
			Str("alert", intent.Finding.Key().String()).
			Msg("notification sent")
		d.record(ctx, intent, ch.Name(), journal.StatusSent, "")
	}
	return res
}

func (d *Dispatcher) send(ctx context.Context, ch Channel, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.PanicsRecovered.WithLabelValues("notifier").Inc()
			err = fmt.Errorf("panic in %s channel: %v", ch.Name(), r)
		}
	}()
	return ch.Send(ctx, msg)
}

func (d *Dispatcher) record(ctx context.Context, intent models.Intent, channel, status, errMsg string) {
	if d.journal == nil {
		return
	}
	f := intent.Finding
	err := d.journal.RecordNotification(ctx, journal.Entry{
		IntentID:   intent.ID,
		IntentType: string(intent.Type),
		Kind:       string(f.Kind),
		Subject:    f.Subject,
		Severity:   string(f.Severity),
		Summary:    f.Summary,
		Channel:    channel,
		Status:     status,
		Error:      errMsg,
		CreatedAt:  d.now().UTC(),
	})
	if err != nil {
		d.log.Warn().Err(err).Str("intent_id", intent.ID).Msg("journal write failed")
	}
}
