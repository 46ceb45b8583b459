package application

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper invokes the periodic repository rules for each configured
// branch on a fixed interval. It is the external schedule behind the
// repository trigger; nothing else activates those rules.
type Sweeper struct {
	events   *EventService
	branches []string
	interval time.Duration
}

// NewSweeper creates a Sweeper. A zero interval or empty branch list
// disables sweeping.
func NewSweeper(events *EventService, branches []string, interval time.Duration) *Sweeper {
	return &Sweeper{events: events, branches: branches, interval: interval}
}

// Start runs the sweep loop until the context is canceled. The first
// sweep happens after one full interval, not at startup, so a restart
// does not immediately re-suggest actions an operator just resolved.
func (s *Sweeper) Start(ctx context.Context) {
	if s.interval <= 0 || len(s.branches) == 0 {
		slog.Info("branch sweeper disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("branch sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	start := time.Now()
	var sweepErrors int
	for _, branch := range s.branches {
		if ctx.Err() != nil {
			return
		}
		if err := s.events.SweepBranch(ctx, branch); err != nil {
			slog.Error("branch sweep failed", "branch", branch, "error", err)
			sweepErrors++
		}
	}
	slog.Info("sweep cycle complete",
		"branches", len(s.branches),
		"errors", sweepErrors,
		"duration", time.Since(start).Round(time.Millisecond),
	)
}
