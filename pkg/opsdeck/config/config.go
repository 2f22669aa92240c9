// Package config loads the console configuration from an HCL file.
package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/opsdeck/opsdeck/pkg/opsdeck/live"
	"github.com/opsdeck/opsdeck/pkg/opsdeck/pulse"
)

// Config is the top-level console configuration.
//
// Example:
//
//	server     = "https://ops.example.net"
//	auth_token = "s3cret"
//	log_level  = "info"
//
//	live {
//	  base_delay_ms = 3000
//	  multiplier    = 1.5
//	  max_attempts  = 5
//	}
//
//	pulse {
//	  duration_ms = 600
//	}
//
//	refresh "server" {
//	  schedule = "@every 30s"
//	}
type Config struct {
	// Server may be omitted when the caller supplies one some other way,
	// e.g. a command-line flag.
	Server    string          `hcl:"server,optional"`
	AuthToken string          `hcl:"auth_token,optional"`
	LogLevel  string          `hcl:"log_level,optional"`
	Live      *LiveConfig     `hcl:"live,block"`
	Pulse     *PulseConfig    `hcl:"pulse,block"`
	Refresh   []RefreshConfig `hcl:"refresh,block"`
}

// LiveConfig tunes the reconnection policy of the live channel.
type LiveConfig struct {
	BaseDelayMS int     `hcl:"base_delay_ms,optional"`
	Multiplier  float64 `hcl:"multiplier,optional"`
	MaxAttempts int     `hcl:"max_attempts,optional"`
}

// PulseConfig tunes the changed-value highlight.
type PulseConfig struct {
	DurationMS int `hcl:"duration_ms,optional"`
}

// RefreshConfig schedules a periodic force refresh for one topic.
type RefreshConfig struct {
	Topic    string `hcl:",label"`
	Schedule string `hcl:"schedule"`
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := hclsimple.DecodeFile(path, nil, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Live != nil {
		if c.Live.BaseDelayMS < 0 {
			return fmt.Errorf("live.base_delay_ms must not be negative")
		}
		if c.Live.Multiplier != 0 && c.Live.Multiplier < 1.0 {
			return fmt.Errorf("live.multiplier must be at least 1.0")
		}
		if c.Live.MaxAttempts < 0 {
			return fmt.Errorf("live.max_attempts must not be negative")
		}
	}
	for _, r := range c.Refresh {
		if r.Schedule == "" {
			return fmt.Errorf("refresh %q: schedule is required", r.Topic)
		}
	}
	return nil
}

// BackoffPolicy returns the configured reconnection policy, with defaults
// for any field left unset.
func (c *Config) BackoffPolicy() live.BackoffPolicy {
	policy := live.DefaultBackoffPolicy()
	if c.Live == nil {
		return policy
	}
	if c.Live.BaseDelayMS > 0 {
		policy.BaseDelay = time.Duration(c.Live.BaseDelayMS) * time.Millisecond
	}
	if c.Live.Multiplier >= 1.0 {
		policy.Multiplier = c.Live.Multiplier
	}
	if c.Live.MaxAttempts > 0 {
		policy.MaxAttempts = c.Live.MaxAttempts
	}
	return policy
}

// PulseDuration returns the configured highlight duration, defaulting to
// pulse.DefaultDuration.
func (c *Config) PulseDuration() time.Duration {
	if c.Pulse == nil || c.Pulse.DurationMS <= 0 {
		return pulse.DefaultDuration
	}
	return time.Duration(c.Pulse.DurationMS) * time.Millisecond
}
