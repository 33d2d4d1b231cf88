// Package scheduler provides debounced task dispatching on a worker pool.
package scheduler

import "time"

// Config defines the scheduler configuration.
type Config struct {
	// QuietPeriod is the delay used when Schedule is called without one.
	QuietPeriod time.Duration `yaml:"quiet_period"`
	// Workers is the number of goroutines that run fired work.
	Workers int `yaml:"workers"`
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		QuietPeriod: 50 * time.Millisecond,
		Workers:     1,
	}
}

// GetWorkers returns the worker pool size, never less than one.
func (c *Config) GetWorkers() int {
	if c.Workers < 1 {
		return 1
	}
	return c.Workers
}
