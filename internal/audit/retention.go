package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/millerp/millerp/internal/platform/database"
	"github.com/robfig/cron/v3"
)

// RetentionConfig configures the scheduled audit purge.
type RetentionConfig struct {
	Schedule string // standard cron expression or descriptor such as "@daily"
	MaxAge   time.Duration
}

// Retention periodically deletes audit events older than MaxAge.
type Retention struct {
	db       database.Querier
	store    *Store
	maxAge   time.Duration
	schedule cron.Schedule
	expr     string
	log      *slog.Logger
	now      func() time.Time
}

// NewRetention validates the schedule and returns a purge job ready to Run.
func NewRetention(db database.Querier, store *Store, cfg RetentionConfig, logger *slog.Logger) (*Retention, error) {
	if cfg.MaxAge <= 0 {
		return nil, fmt.Errorf("audit retention max age must be positive, got %s", cfg.MaxAge)
	}
	schedule, err := cron.ParseStandard(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("parsing audit retention schedule %q: %w", cfg.Schedule, err)
	}
	if store == nil {
		store = NewStore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retention{
		db:       db,
		store:    store,
		maxAge:   cfg.MaxAge,
		schedule: schedule,
		expr:     cfg.Schedule,
		log:      logger,
		now:      time.Now,
	}, nil
}

// Purge deletes events older than the retention window once.
func (r *Retention) Purge(ctx context.Context) (int64, error) {
	cutoff := r.now().Add(-r.maxAge)
	n, err := r.store.PurgeBefore(ctx, r.db, cutoff)
	if err != nil {
		return 0, err
	}
	r.log.Info("audit retention purge", "deleted", n, "cutoff", cutoff)
	return n, nil
}

// Run schedules Purge until ctx is cancelled, then waits for a running purge to finish.
func (r *Retention) Run(ctx context.Context) error {
	c := cron.New()
	c.Schedule(r.schedule, cron.FuncJob(func() {
		if _, err := r.Purge(ctx); err != nil {
			r.log.Error("audit retention purge failed", "error", err)
		}
	}))

	r.log.Info("audit retention scheduled", "schedule", r.expr, "max_age", r.maxAge)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
