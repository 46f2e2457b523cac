package task

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper removes terminal tasks once they are older than the retention
// period.
type Sweeper struct {
	store     Store
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewSweeper creates a Sweeper. A non-positive interval defaults to
// 5 minutes.
func NewSweeper(store Store, retention, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{
		store:     store,
		retention: retention,
		interval:  interval,
		now:       time.Now,
		logger:    logger.With("component", "task_sweeper"),
	}
}

// SweepOnce removes expired tasks and returns how many were removed.
func (s *Sweeper) SweepOnce() int {
	removed := s.store.Sweep(s.now().Add(-s.retention))
	if removed > 0 {
		s.logger.Info("swept expired tasks", "removed", removed, "remaining", s.store.Len())
	}
	return removed
}

// Run sweeps on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.SweepOnce()
		}
	}
}
