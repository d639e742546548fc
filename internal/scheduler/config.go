package scheduler

import (
	"time"

	"github.com/smallbiznis/ledgerbook/internal/config"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval        time.Duration
	BatchSize          int
	RecurringBatchSize int
	PastDueBatchSize   int
	RenderBatchSize    int
	JobTimeout         time.Duration
	LockTTL            time.Duration
	EnabledJobs        []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:        time.Minute,
		BatchSize:          50,
		RecurringBatchSize: 50,
		PastDueBatchSize:   200,
		RenderBatchSize:    25,
		JobTimeout:         30 * time.Second,
		LockTTL:            2 * time.Minute,
	}
}

// ProvideConfig maps the process configuration onto scheduler settings.
func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: time.Duration(cfg.Scheduler.RunInterval) * time.Second,
		BatchSize:   cfg.Scheduler.BatchSize,
		EnabledJobs: cfg.Scheduler.EnabledJobs,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.RecurringBatchSize <= 0 {
		c.RecurringBatchSize = c.BatchSize
	}
	if c.PastDueBatchSize <= 0 {
		c.PastDueBatchSize = defaults.PastDueBatchSize
	}
	if c.RenderBatchSize <= 0 {
		c.RenderBatchSize = defaults.RenderBatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}
