package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/sgsgita/alumnigate/internal/access/store"
)

// HousekeepingService periodically deletes expired database records to keep
// invitations and rate-limit tables from growing without bound.
//
// Rate-limit rows are deleted only by their own stored expiry. Enforcement
// never reads historical windows, so this is strictly storage hygiene and can
// never hand quota back to a live window.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	// Internal channels for lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given
// interval. If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(store store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Store:    store,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker that periodically runs cleanup.
// This is non-blocking and should be called after the database is ready.
// Call Stop() to gracefully shutdown the worker.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop gracefully shuts down the background worker.
// Blocks until the worker has finished any in-progress cleanup.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.cleanup()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup performs the actual deletion of expired records.
// Each deletion is independent - failures in one won't stop the others.
func (s *HousekeepingService) cleanup() {
	ctx := context.Background()
	now := time.Now()
	s.Logger.Info("starting housekeeping cleanup")

	var successful int

	if err := s.Store.Invitations().DeleteExpiredInvitations(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired invitations", "error", err)
	} else {
		s.Logger.Debug("deleted expired invitations")
		successful++
	}

	if err := s.Store.RateLimits().DeleteExpiredCounters(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired rate-limit counters", "error", err)
	} else {
		s.Logger.Debug("deleted expired rate-limit counters")
		successful++
	}

	if err := s.Store.RateLimits().DeleteExpiredBlocks(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired rate-limit blocks", "error", err)
	} else {
		s.Logger.Debug("deleted expired rate-limit blocks")
		successful++
	}

	s.Logger.Info("housekeeping cleanup completed", "successful_cleanups", successful)
}
