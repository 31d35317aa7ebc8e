package scheduler

import (
	"time"

	"github.com/partnerledger/core/internal/config"
)

// Config controls the availability monitor's check interval and memory
// warning threshold.
type Config struct {
	CheckInterval            time.Duration
	MemoryWarningThresholdMB int64
}

func DefaultConfig() Config {
	return Config{
		CheckInterval:            5 * time.Minute,
		MemoryWarningThresholdMB: 1024,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.CheckInterval <= 0 {
		c.CheckInterval = defaults.CheckInterval
	}
	if c.MemoryWarningThresholdMB <= 0 {
		c.MemoryWarningThresholdMB = defaults.MemoryWarningThresholdMB
	}
	return c
}

// ProvideConfig reads the monitor's interval and memory threshold from the
// application config.
func ProvideConfig(cfg config.Config) Config {
	interval := time.Duration(cfg.AvailabilityIntervalSec) * time.Second
	return Config{
		CheckInterval:            interval,
		MemoryWarningThresholdMB: cfg.MemoryWarningThresholdMB,
	}.withDefaults()
}
