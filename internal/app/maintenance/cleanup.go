package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/authgate/authgate/internal/store"
	"github.com/authgate/authgate/pkg/logger"
)

const defaultCodeSpec = "@hourly"

// Cleaner periodically purges expired verification codes. Sessions are left
// alone on purpose: an expired session row is inert, and keeping it lets a
// near-expiry refresh report expired instead of not found.
type Cleaner struct {
	store *store.Store
	cron  *cron.Cron
	now   func() time.Time
	log   *zap.Logger

	codeSchedule string
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

// WithNow overrides the clock used for expiry comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithCodeSchedule overrides the cron specification for code cleanup.
func WithCodeSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.codeSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults.
func NewCleaner(st *store.Store, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		store:        st,
		now:          time.Now,
		codeSchedule: defaultCodeSpec,
		log:          logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers the cleanup job with the cron scheduler and launches it.
func (c *Cleaner) Start() error {
	if c.store == nil {
		return nil
	}

	if _, err := c.cron.AddFunc(c.codeSchedule, func() {
		if err := c.RunOnce(context.Background()); err != nil {
			c.log.Warn("verification code cleanup failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	c.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for any running job to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce purges expired verification codes immediately. Used by the cron
// job, by tests, and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	purged, err := c.store.PurgeExpiredCodes(ctx, c.now())
	if err != nil {
		return err
	}
	if purged > 0 {
		c.log.Info("purged expired verification codes", zap.Int64("count", purged))
	}
	return nil
}
