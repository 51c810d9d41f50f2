package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/authkit/internal/auth/store"
)

// HousekeepingService periodically deletes expired auth tokens and issued
// codes and tokens.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService defaults a non-positive interval to one hour.
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

// Start runs the worker in the background until Stop.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until an in-progress cleanup has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Cleanup(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Cleanup(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Cleanup runs one pass. A failing step does not stop the others.
func (s *HousekeepingService) Cleanup(ctx context.Context) {
	now := time.Now()

	authTokens, err := s.Store.AuthTokens().DeleteExpiredAuthTokens(ctx, now)
	if err != nil {
		s.Logger.Error("failed to delete expired auth tokens", "error", err)
	}

	issued, err := s.Store.IssuedTokens().DeleteExpired(ctx, now)
	if err != nil {
		s.Logger.Error("failed to delete expired issued tokens", "error", err)
	}

	s.Logger.Info("housekeeping cleanup completed",
		"auth_tokens", authTokens,
		"issued_tokens", issued,
	)
}
