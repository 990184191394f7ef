package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/cveintel/internal/cache"
	"github.com/charlesng35/cveintel/internal/monitoring"
	"github.com/charlesng35/cveintel/internal/realtime"
	"github.com/charlesng35/cveintel/pkg/logger"
)

const (
	// JobIntelSweep names the expired intelligence record sweep in logs, metrics and events.
	JobIntelSweep     = "intel_sweep"
	// JobFeedCacheSweep names the expired provider feed purge.
	JobFeedCacheSweep = "feed_cache_sweep"

	defaultIntelSpec = "@hourly"
	defaultFeedSpec  = "@hourly"
	defaultTimeout   = 5 * time.Minute
)

// Sweeper deletes expired intelligence records.
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// SweepStats reports how many rows a maintenance pass removed.
type SweepStats struct {
	IntelRecords int64 `json:"intel_records"`
	FeedEntries  int64 `json:"feed_entries"`
}

// Cleaner schedules removal of expired intelligence records and expired provider feed
// entries. Sweeps are idempotent and safe to overlap with lookups and stores.
type Cleaner struct {
	intel   Sweeper
	feeds   cache.Purger
	cron    *cron.Cron
	log     *zap.Logger
	events  *realtime.Hub
	timeout time.Duration

	intelSchedule string
	feedSchedule  string

	mu      sync.Mutex
	started bool
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithIntelSchedule overrides the cron specification for the intelligence sweep.
func WithIntelSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.intelSchedule = spec
		}
	}
}

// WithFeedSchedule overrides the cron specification for the feed cache sweep.
func WithFeedSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.feedSchedule = spec
		}
	}
}

// WithJobTimeout bounds each scheduled job run.
func WithJobTimeout(timeout time.Duration) Option {
	return func(cleaner *Cleaner) {
		if timeout > 0 {
			cleaner.timeout = timeout
		}
	}
}

// WithEventHub announces completed sweeps on the maintenance stream.
func WithEventHub(hub *realtime.Hub) Option {
	return func(cleaner *Cleaner) {
		cleaner.events = hub
	}
}

// SweepEvent is published after every successful sweep.
type SweepEvent struct {
	Job       string `json:"job"`
	Removed   int64  `json:"removed"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// NewCleaner constructs a Cleaner. A nil dependency skips the corresponding job.
func NewCleaner(intel Sweeper, feeds cache.Purger, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		intel:         intel,
		feeds:         feeds,
		timeout:       defaultTimeout,
		intelSchedule: defaultIntelSpec,
		feedSchedule:  defaultFeedSpec,
		log:           logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return cleaner
}

// Start registers the sweep jobs and launches the scheduler. Calling Start twice is a no-op.
func (c *Cleaner) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || (c.intel == nil && c.feeds == nil) {
		return nil
	}

	if c.intel != nil {
		if _, err := c.cron.AddFunc(c.intelSchedule, c.scheduled(func(ctx context.Context) error {
			_, err := c.SweepIntel(ctx)
			return err
		})); err != nil {
			return fmt.Errorf("maintenance: schedule %s: %w", JobIntelSweep, err)
		}
	}

	if c.feeds != nil {
		if _, err := c.cron.AddFunc(c.feedSchedule, c.scheduled(func(ctx context.Context) error {
			_, err := c.SweepFeeds(ctx)
			return err
		})); err != nil {
			return fmt.Errorf("maintenance: schedule %s: %w", JobFeedCacheSweep, err)
		}
	}

	c.cron.Start()
	c.started = true
	c.log.Info("maintenance scheduler started",
		zap.String("intel_schedule", c.intelSchedule),
		zap.String("feed_schedule", c.feedSchedule),
	)
	return nil
}

func (c *Cleaner) scheduled(job func(ctx context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		// Failures are logged and recorded inside the job.
		_ = job(ctx)
	}
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// SweepIntel deletes expired intelligence records.
func (c *Cleaner) SweepIntel(ctx context.Context) (int64, error) {
	if c.intel == nil {
		return 0, nil
	}
	return c.run(ctx, JobIntelSweep, c.intel.Sweep)
}

// SweepFeeds deletes expired provider feed entries.
func (c *Cleaner) SweepFeeds(ctx context.Context) (int64, error) {
	if c.feeds == nil {
		return 0, nil
	}
	return c.run(ctx, JobFeedCacheSweep, c.feeds.PurgeExpired)
}

func (c *Cleaner) run(ctx context.Context, job string, fn func(context.Context) (int64, error)) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	removed, err := fn(ctx)
	elapsed := time.Since(start)

	if err != nil {
		monitoring.RecordMaintenanceRun(job, "failure", err.Error(), 0, elapsed)
		c.log.Warn("maintenance job failed", zap.String("job", job), zap.Error(err))
		return 0, fmt.Errorf("maintenance: %s: %w", job, err)
	}
	monitoring.RecordMaintenanceRun(job, "success", "", removed, elapsed)
	c.events.Publish(realtime.StreamMaintenance, "", realtime.EventSweepCompleted, SweepEvent{
		Job:       job,
		Removed:   removed,
		ElapsedMS: elapsed.Milliseconds(),
	})
	if removed > 0 {
		c.log.Info("maintenance job removed expired rows",
			zap.String("job", job),
			zap.Int64("removed", removed),
			zap.Duration("elapsed", elapsed),
		)
	}
	return removed, nil
}

// RunOnce executes every configured sweep sequentially, continuing past failures. Used by
// the manual sweep endpoint and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) (SweepStats, error) {
	var (
		stats SweepStats
		errs  error
		err   error
	)

	stats.IntelRecords, err = c.SweepIntel(ctx)
	errs = multierr.Append(errs, err)

	stats.FeedEntries, err = c.SweepFeeds(ctx)
	errs = multierr.Append(errs, err)

	return stats, errs
}
