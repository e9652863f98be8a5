package outbox

import (
	"context"
	"time"

	"stayhub/internal/metrics"
	"stayhub/internal/repository"
	"stayhub/pkg/logger"
)

type SweeperConfig struct {
	Interval time.Duration
}

// Sweeper bounds lease-leak exposure: rows claimed by a crashed worker become
// claimable again once the lease written at claim time runs out. It also
// samples the pending backlog for the reliability counters.
type Sweeper struct {
	repo     repository.OutboxRepository
	counters *metrics.Counters
	log      *logger.Logger
	cfg      SweeperConfig
}

func NewSweeper(repo repository.OutboxRepository, counters *metrics.Counters, log *logger.Logger, cfg SweeperConfig) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	return &Sweeper{
		repo:     repo,
		counters: counters,
		log:      log,
		cfg:      cfg,
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one reclaim-and-sample pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	reclaimed, err := s.repo.ReleaseExpiredLocks(ctx)
	if err != nil {
		if s.log != nil {
			s.log.Errorf("lease sweep failed: %s", err.Error())
		}
	} else if reclaimed > 0 {
		s.counters.AddLeasesReclaimed(reclaimed)
		if s.log != nil {
			s.log.Warnf("reclaimed %d expired outbox leases", reclaimed)
		}
	}

	pending, err := s.repo.CountPending(ctx)
	if err != nil {
		if s.log != nil {
			s.log.Errorf("pending count failed: %s", err.Error())
		}
		return
	}
	s.counters.SetPending(pending)
}
