package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"rabbitwatch/internal/alerts"
	"rabbitwatch/internal/broker"
	"rabbitwatch/internal/collector"
	"rabbitwatch/internal/config"
	"rabbitwatch/internal/journal"
	"rabbitwatch/internal/logger"
	"rabbitwatch/internal/models"
	"rabbitwatch/internal/notifier"
	"rabbitwatch/internal/retention"
	"rabbitwatch/internal/rules"
	"rabbitwatch/internal/scheduler"
	"rabbitwatch/internal/web"
)

const retentionInterval = time.Hour

type App struct {
	cfg config.Config
	log zerolog.Logger

	journal   *journal.Repository
	broker    *broker.Client
	notify    *notifier.Dispatcher
	scheduler *scheduler.Scheduler
	retention *retention.Service

	httpSrv *http.Server
}

func New(cfg config.Config) (*App, error) {
	sqldb, err := journal.Open(cfg.JournalDSN)
	if err != nil {
		return nil, err
	}
	if err := journal.Migrate(sqldb); err != nil {
		_ = sqldb.Close()
		return nil, err
	}
	repo := journal.NewRepository(sqldb)

	bc := broker.New(cfg.Broker(), logger.WithComponent("broker"))
	ev := rules.NewEvaluator(cfg.Thresholds(), cfg.Overrides(), logger.WithComponent("rules"))
	sm := alerts.NewStateMachine(cfg.Cooldown, logger.WithComponent("alerts"))
	d := NewDispatcher(cfg, repo, bc.Address())
	sched := scheduler.New(bc, ev, sm, d, cfg.Interval, logger.WithComponent("scheduler"))

	a := &App{
		cfg:       cfg,
		log:       logger.WithComponent("app"),
		journal:   repo,
		broker:    bc,
		notify:    d,
		scheduler: sched,
		retention: retention.NewService(repo, cfg.JournalRetention, logger.WithComponent("retention")),
	}
	if cfg.Addr != "" {
		srv := web.NewServer(sm, repo, sched, logger.WithComponent("web"))
		a.httpSrv = &http.Server{Addr: cfg.Addr, Handler: srv.Routes(), ReadHeaderTimeout: 5 * time.Second}
	}
	return a, nil
}

// NewDispatcher builds the notifier with every channel the config enables.
// rec may be nil when no journal is kept.
func NewDispatcher(cfg config.Config, rec notifier.Recorder, host string) *notifier.Dispatcher {
	return notifier.NewDispatcher(host, rec, logger.WithComponent("notifier"),
		notifier.NewWebhook(cfg.WebhookURL, cfg.WebhookTimeout),
		notifier.NewEmail(cfg.SendGridAPIKey, cfg.AlertEmailFrom, cfg.AlertEmail, cfg.EmailTimeout),
	)
}

// Check takes one snapshot and evaluates it without notifying. A failed
// snapshot is returned as the api_unavailable finding along with the error.
func Check(ctx context.Context, cfg config.Config) ([]models.Finding, error) {
	bc := broker.New(cfg.Broker(), logger.WithComponent("broker"))
	snap, err := bc.FetchSnapshot(ctx)
	if err != nil {
		return []models.Finding{rules.Unavailable(err, bc.Address())}, err
	}
	ev := rules.NewEvaluator(cfg.Thresholds(), cfg.Overrides(), logger.WithComponent("rules"))
	return ev.Evaluate(snap, collector.NewSampleStore()), nil
}

func (a *App) Scheduler() *scheduler.Scheduler { return a.scheduler }

// Run blocks until ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	defer func() {
		if err := a.journal.Close(); err != nil {
			a.log.Warn().Err(err).Msg("journal close failed")
		}
	}()

	a.log.Info().
		Str("rabbitmq", a.broker.Address()).
		Dur("interval", a.cfg.Interval).
		Bool("notifications", a.notify.Configured()).
		Strs("long_job_queues", a.cfg.LongJobQueues).
		Msg("starting rabbitwatch")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.scheduler.Run(gctx) })
	g.Go(func() error {
		a.retention.Run(gctx)
		return a.retention.Loop(gctx, retentionInterval)
	})
	if a.httpSrv != nil {
		g.Go(func() error {
			a.log.Info().Str("addr", a.cfg.Addr).Msg("http server listening")
			if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.httpSrv.Shutdown(shutdownCtx)
		})
	}
	err := g.Wait()
	a.log.Info().Msg("monitoring stopped")
	return err
}
