package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/taskpadhq/taskpad/internal/auth/store"
)

// HousekeepingService deletes expired session rows on an interval.
// Expired sessions are already unusable; this only keeps the table from
// growing without bound.
type HousekeepingService struct {
	Store    store.Store
	Interval time.Duration
	Logger   *slog.Logger
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (s *HousekeepingService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *HousekeepingService) sweep(ctx context.Context) {
	n, err := s.Store.Sessions().DeleteExpiredSessions(ctx, time.Now().UTC())
	if err != nil {
		s.Logger.Error("housekeeping sweep failed", "err", err)
		return
	}
	if n > 0 {
		s.Logger.Info("expired sessions deleted", "count", n)
	}
}
