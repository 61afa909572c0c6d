package core

// scheduler.go runs history retention in the background.
//
// A cron entry periodically deletes import runs older than the retention
// window. Failures are logged and retried on the next tick; they never stop
// the server.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// RetentionConfig holds configuration for the history purge scheduler.
type RetentionConfig struct {
	RetentionDays int    // Days to keep finished runs (default: 180)
	Schedule      string // Cron expression or descriptor (default: "@daily")
	RunOnStart    bool   // Purge once immediately
}

// RetentionScheduler purges old import history on a cron schedule.
type RetentionScheduler struct {
	cron *cron.Cron
	svc  *Service
	cfg  RetentionConfig
	now  func() time.Time
}

// NewRetentionScheduler creates a scheduler for svc. The schedule is
// validated here so a bad expression fails at startup.
func NewRetentionScheduler(svc *Service, cfg RetentionConfig) (*RetentionScheduler, error) {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 180
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@daily"
	}

	s := &RetentionScheduler{
		cron: cron.New(),
		svc:  svc,
		cfg:  cfg,
		now:  time.Now,
	}
	if _, err := s.cron.AddFunc(cfg.Schedule, func() { s.purge(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid purge schedule %q: %w", cfg.Schedule, err)
	}
	return s, nil
}

// Start begins running the schedule. It is a no-op without a history store.
func (s *RetentionScheduler) Start(ctx context.Context) {
	if !s.svc.HistoryEnabled() {
		slog.Info("history retention disabled: no store configured")
		return
	}

	if s.cfg.RunOnStart {
		s.purge(ctx)
	}
	s.cron.Start()
	slog.Info("retention scheduler started",
		"retention_days", s.cfg.RetentionDays,
		"schedule", s.cfg.Schedule,
	)
}

// Stop stops the schedule and waits for a running purge to finish.
func (s *RetentionScheduler) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("retention scheduler stopped")
}

// purge performs one retention cycle.
func (s *RetentionScheduler) purge(ctx context.Context) {
	start := s.now()
	cutoff := start.AddDate(0, 0, -s.cfg.RetentionDays)

	n, err := s.svc.PurgeHistory(ctx, cutoff)
	if err != nil {
		slog.Error("history purge failed", "error", err)
		return
	}
	slog.Info("purged import history",
		"deleted", n,
		"cutoff", cutoff.Format(time.RFC3339),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
