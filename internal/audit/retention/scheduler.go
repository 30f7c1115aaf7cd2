// Package retention runs the audit retention purge on a cron schedule.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"schooladmin/internal/audit/metrics"
	"schooladmin/internal/audit/service"
	id "schooladmin/pkg/domain"
	audit "schooladmin/pkg/platform/audit"
	"schooladmin/pkg/requestcontext"
)

const defaultRunTimeout = 5 * time.Minute

// Purger deletes records older than a retention window.
type Purger interface {
	Purge(ctx context.Context, days int) (*service.PurgeResult, error)
}

// Emitter writes a manual audit entry.
type Emitter interface {
	Emit(ctx context.Context, entry audit.Entry) (*audit.Record, error)
}

// Scheduler manages the periodic retention purge.
type Scheduler struct {
	cron     *cron.Cron
	purger   Purger
	emitter  Emitter
	schedule string
	days     int
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option configures the Scheduler.
type Option func(*Scheduler)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithClock overrides the clock the cutoff is computed from.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler creates a scheduler that purges records older than days on
// the given cron schedule. An empty schedule disables it.
func NewScheduler(purger Purger, emitter Emitter, schedule string, days int, opts ...Option) *Scheduler {
	s := &Scheduler{
		cron:     cron.New(),
		purger:   purger,
		emitter:  emitter,
		schedule: schedule,
		days:     days,
		timeout:  defaultRunTimeout,
		logger:   slog.New(slog.DiscardHandler),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start registers the purge job and starts the cron scheduler.
func (s *Scheduler) Start() error {
	if s.schedule == "" {
		s.logger.Info("audit retention scheduler disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(s.schedule, func() {
		_, _ = s.RunOnce(context.Background())
	}); err != nil {
		return fmt.Errorf("invalid audit retention schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.logger.Info("audit retention scheduler started",
		"schedule", s.schedule,
		"retention_days", s.days,
	)
	return nil
}

// Stop stops the scheduler and waits for a running purge until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("audit retention scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("audit retention scheduler stop timed out")
	}
}

// RunOnce purges with the system identity and records the run in the audit
// trail.
func (s *Scheduler) RunOnce(ctx context.Context) (*service.PurgeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ctx = requestcontext.WithIdentity(ctx, requestcontext.Caller{Role: id.RoleSystem})
	ctx = requestcontext.WithTime(ctx, s.now())

	start := time.Now()
	res, err := s.purger.Purge(ctx, s.days)
	if err != nil {
		s.metrics.IncScheduledPurge("error")
		s.logger.ErrorContext(ctx, "scheduled audit purge failed",
			"retention_days", s.days,
			"error", err,
		)
		return nil, err
	}
	s.metrics.IncScheduledPurge("ok")

	_, _ = s.emitter.Emit(ctx, audit.Entry{
		Action:     "purge_audit_logs",
		Resource:   "AuditLog",
		DurationMs: time.Since(start).Milliseconds(),
		Metadata: map[string]any{
			"deletedCount":  res.DeletedCount,
			"cutoffDate":    res.Cutoff.Format(time.RFC3339),
			"retentionDays": s.days,
			"trigger":       "schedule",
		},
	})

	s.logger.InfoContext(ctx, "scheduled audit purge completed",
		"deleted", res.DeletedCount,
		"cutoff", res.Cutoff,
	)
	return res, nil
}
