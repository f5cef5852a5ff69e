package scheduler

import (
	"time"

	"github.com/smallbiznis/estate/internal/config"
)

// Config controls scheduler intervals and leases.
type Config struct {
	RunInterval  time.Duration
	JobTimeout   time.Duration
	LockTTL      time.Duration
	EnabledJobs  []string
	RefreshOnRun bool
}

func DefaultConfig() Config {
	return Config{
		RunInterval:  time.Hour,
		JobTimeout:   time.Minute,
		LockTTL:      2 * time.Minute,
		RefreshOnRun: true,
	}
}

// ProvideConfig derives the run interval from the pricing policy.
func ProvideConfig(holder *config.PricingConfigHolder) Config {
	cfg := DefaultConfig()
	if holder != nil {
		cfg.RunInterval = holder.Get().ExchangeRates.RefreshInterval
	}
	return cfg.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if c.LockTTL < c.JobTimeout {
		c.LockTTL = c.JobTimeout
	}
	return c
}
