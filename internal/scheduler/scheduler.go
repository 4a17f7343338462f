package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"rabbitwatch/internal/collector"
	"rabbitwatch/internal/metrics"
	"rabbitwatch/internal/models"
	"rabbitwatch/internal/notifier"
	"rabbitwatch/internal/rules"
)

type State string

const (
	StateIdle       State = "idle"
	StatePolling    State = "polling"
	StateEvaluating State = "evaluating"
	StateNotifying  State = "notifying"
	StateSleeping   State = "sleeping"
	StateStopped    State = "stopped"
)

type Fetcher interface {
	FetchSnapshot(ctx context.Context) (models.Snapshot, error)
	Address() string
}

type Evaluator interface {
	Evaluate(snap models.Snapshot, store *collector.SampleStore) []models.Finding
	Thresholds() rules.Thresholds
}

type Tracker interface {
	Process(findings []models.Finding, now time.Time) []models.Intent
	ProcessScoped(findings []models.Finding, now time.Time, kinds ...models.ConditionKind) []models.Intent
}

type Deliverer interface {
	Deliver(ctx context.Context, intent models.Intent) notifier.Result
}

// CycleResult summarizes one poll-evaluate-notify pass.
type CycleResult struct {
	Available bool
	Findings  []models.Finding
	Intents   []models.Intent
	Delivery  notifier.Result
	Duration  time.Duration
}

type Scheduler struct {
	fetch    Fetcher
	eval     Evaluator
	alerts   Tracker
	notify   Deliverer
	store    *collector.SampleStore
	interval time.Duration
	log      zerolog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu          sync.RWMutex
	state       State
	lastSuccess time.Time
	polled      atomic.Bool
}

func New(f Fetcher, e Evaluator, t Tracker, d Deliverer, interval time.Duration, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		fetch:    f,
		eval:     e,
		alerts:   t,
		notify:   d,
		store:    collector.NewSampleStore(),
		interval: interval,
		log:      logger,
		now:      time.Now,
		sleep:    sleepCtx,
		state:    StateIdle,
	}
}

func (s *Scheduler) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Scheduler) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Ready reports whether at least one snapshot has been taken successfully.
func (s *Scheduler) Ready() bool { return s.polled.Load() }

// LastSuccess returns the capture time of the latest successful snapshot.
func (s *Scheduler) LastSuccess() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSuccess
}

// Run announces startup and then polls every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.setState(StateStopped)

	startup := s.Startup()
	s.log.Info().
		Str("addr", s.fetch.Address()).
		Dur("interval", s.interval).
		Msg("monitoring started")
	s.notify.Deliver(ctx, startup)

	for {
		if ctx.Err() != nil {
			return nil
		}
		res := s.RunCycle(ctx)
		wait := s.interval - res.Duration
		if wait < 0 {
			s.log.Warn().Dur("duration", res.Duration).Dur("interval", s.interval).Msg("cycle overran interval")
			wait = 0
		}
		s.setState(StateSleeping)
		if err := s.sleep(ctx, wait); err != nil {
			return nil
		}
	}
}

// RunCycle takes one snapshot, evaluates it and delivers every resulting
// intent in order. A failed snapshot yields only the api_unavailable finding,
// and alerts raised from queue or node data stay as they are until the data
// is back. A cycle cut short by ctx produces nothing.
func (s *Scheduler) RunCycle(ctx context.Context) (res CycleResult) {
	start := s.now()
	defer func() {
		if r := recover(); r != nil {
			res = s.recoverCycle(ctx, r)
		}
		res.Duration = s.now().Sub(start)
		metrics.CycleDuration.Observe(res.Duration.Seconds())
		s.log.Debug().
			Bool("available", res.Available).
			Int("findings", len(res.Findings)).
			Int("intents", len(res.Intents)).
			Dur("duration", res.Duration).
			Msg("cycle completed")
	}()

	s.setState(StatePolling)
	snap, err := s.fetch.FetchSnapshot(ctx)
	if ctx.Err() != nil {
		s.log.Debug().Msg("cycle interrupted by shutdown")
		return res
	}

	s.setState(StateEvaluating)
	if err != nil {
		res.Findings = []models.Finding{rules.Unavailable(err, s.fetch.Address())}
		res.Intents = s.alerts.ProcessScoped(res.Findings, s.now(), models.KindAPIUnavailable)
		metrics.CyclesTotal.WithLabelValues("unavailable").Inc()
	} else {
		res.Available = true
		res.Findings = s.eval.Evaluate(snap, s.store)
		s.mu.Lock()
		s.lastSuccess = snap.CapturedAt
		s.mu.Unlock()
		s.polled.Store(true)
		res.Intents = s.alerts.Process(res.Findings, s.now())
		metrics.CyclesTotal.WithLabelValues("ok").Inc()
	}

	s.deliver(ctx, &res)
	return res
}

func (s *Scheduler) deliver(ctx context.Context, res *CycleResult) {
	s.setState(StateNotifying)
	for _, in := range res.Intents {
		r := s.notify.Deliver(ctx, in)
		res.Delivery.Sent += r.Sent
		res.Delivery.Failed += r.Failed
		res.Delivery.Skipped += r.Skipped
	}
}

// recoverCycle turns a panic inside a cycle into a monitor_error alert so the
// loop carries on with the next cycle.
func (s *Scheduler) recoverCycle(ctx context.Context, r any) (res CycleResult) {
	metrics.PanicsRecovered.WithLabelValues("scheduler").Inc()
	metrics.CyclesTotal.WithLabelValues("error").Inc()
	s.log.Error().
		Interface("panic", r).
		Str("stack", string(debug.Stack())).
		Msg("monitoring cycle panicked")

	f := models.Finding{
		Kind:     models.KindMonitorError,
		Subject:  models.SubjectSystem,
		Severity: models.SeverityCritical,
		Summary:  fmt.Sprintf("Monitoring cycle failed: %v", r),
		Details:  map[string]any{"host": s.fetch.Address(), "error": fmt.Sprint(r)},
	}
	res.Findings = []models.Finding{f}
	func() {
		defer func() {
			if r2 := recover(); r2 != nil {
				s.log.Error().Interface("panic", r2).Msg("alert tracking failed while handling panic")
				res.Intents = []models.Intent{{ID: uuid.NewString(), Type: models.IntentNew, Finding: f, At: s.now()}}
			}
		}()
		res.Intents = s.alerts.ProcessScoped(res.Findings, s.now(), models.KindMonitorError)
	}()
	func() {
		defer func() {
			if r2 := recover(); r2 != nil {
				s.log.Error().Interface("panic", r2).Msg("delivery failed while handling panic")
			}
		}()
		s.deliver(ctx, &res)
	}()
	return res
}

// Startup builds the one-off announcement sent when monitoring begins.
func (s *Scheduler) Startup() models.Intent {
	th := s.eval.Thresholds()
	watched := []string{
		fmt.Sprintf("queue length (>= %d)", th.QueueLengthMax),
		fmt.Sprintf("unacked messages (>= %d)", th.UnackedMax),
		fmt.Sprintf("consumers (< %d)", th.MinConsumers),
		fmt.Sprintf("processing halts (>= %d ready, no consumption)", th.HaltThreshold),
		fmt.Sprintf("node memory (>= %g%%)", th.MemoryPercentMax),
		fmt.Sprintf("node disk (>= %g%%)", th.DiskPercentMax),
		"node availability",
	}
	addr := s.fetch.Address()
	return models.Intent{
		ID:   uuid.NewString(),
		Type: models.IntentStartup,
		At:   s.now(),
		Finding: models.Finding{
			Kind:     models.KindMonitorStarted,
			Subject:  models.SubjectSystem,
			Severity: models.SeverityInfo,
			Summary: fmt.Sprintf("Monitoring RabbitMQ at %s every %s.\nWatching: %s",
				addr, s.interval, strings.Join(watched, ", ")),
			Details: map[string]any{
				"host":     addr,
				"interval": s.interval.String(),
			},
		},
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
