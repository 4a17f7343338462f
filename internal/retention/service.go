package retention

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"rabbitwatch/internal/journal"
)

type Service struct {
	repo      *journal.Repository
	retention time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

func NewService(repo *journal.Repository, retention time.Duration, logger zerolog.Logger) *Service {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &Service{repo: repo, retention: retention, log: logger, now: time.Now}
}

func (s *Service) Run(ctx context.Context) {
	cutoff := s.now().UTC().Add(-s.retention)
	n, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.log.Error().Err(err).Msg("journal cleanup failed")
		return
	}
	s.log.Debug().Time("cutoff", cutoff).Int64("deleted", n).Msg("journal cleanup completed")
}

// Loop runs cleanup every interval until ctx is done.
func (s *Service) Loop(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.Run(ctx)
		}
	}
}
