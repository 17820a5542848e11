// Package config loads engine configuration from YAML. Every knob
// has a default matching the engine's built-in tuning, so an empty
// file is a valid configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fleetwire-net/fleetwire/pkg/executor"
	"github.com/fleetwire-net/fleetwire/pkg/poller"
	"github.com/fleetwire-net/fleetwire/pkg/pool"
	"github.com/fleetwire-net/fleetwire/pkg/session"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config is the full engine configuration.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	Inventory string `yaml:"inventory"` // path to the device directory file

	Pool struct {
		PerDeviceCap   int      `yaml:"per_device_cap"`
		AcquireTimeout Duration `yaml:"acquire_timeout"`
		IdleTTL        Duration `yaml:"idle_ttl"`
	} `yaml:"pool"`

	Executor struct {
		Concurrency      int      `yaml:"concurrency"`
		PerDeviceTimeout Duration `yaml:"per_device_timeout"`
	} `yaml:"executor"`

	Session struct {
		PerUserCap     int      `yaml:"per_user_cap"`
		IdleTimeout    Duration `yaml:"idle_timeout"`
		ReapInterval   Duration `yaml:"reap_interval"`
		HistoryLimit   int      `yaml:"history_limit"`
		CommandTimeout Duration `yaml:"command_timeout"`
	} `yaml:"session"`

	Poll struct {
		Interval      Duration                    `yaml:"interval"`
		CycleDeadline Duration                    `yaml:"cycle_deadline"`
		PollTimeout   Duration                    `yaml:"poll_timeout"`
		Concurrency   int                         `yaml:"concurrency"`
		Community     string                      `yaml:"community"`
		Thresholds    map[string]poller.Threshold `yaml:"thresholds"`
	} `yaml:"poll"`

	Events struct {
		RedisAddr     string `yaml:"redis_addr"` // empty disables the Redis sink
		RedisPassword string `yaml:"redis_password"`
		RedisDB       int    `yaml:"redis_db"`
		Channel       string `yaml:"channel"`
		Buffer        int    `yaml:"buffer"`
	} `yaml:"events"`
}

// Default returns the engine's built-in tuning.
func Default() *Config {
	c := &Config{LogLevel: "info"}
	c.Pool.PerDeviceCap = 2
	c.Pool.AcquireTimeout = Duration(10 * time.Second)
	c.Pool.IdleTTL = Duration(5 * time.Minute)
	c.Executor.Concurrency = 50
	c.Executor.PerDeviceTimeout = Duration(30 * time.Second)
	c.Session.PerUserCap = 5
	c.Session.IdleTimeout = Duration(30 * time.Minute)
	c.Session.ReapInterval = Duration(time.Minute)
	c.Session.HistoryLimit = 100
	c.Session.CommandTimeout = Duration(30 * time.Second)
	c.Poll.Interval = Duration(2 * time.Minute)
	c.Poll.CycleDeadline = Duration(90 * time.Second)
	c.Poll.PollTimeout = Duration(10 * time.Second)
	c.Poll.Concurrency = 20
	c.Poll.Community = "public"
	c.Poll.Thresholds = poller.DefaultThresholds()
	c.Events.Channel = "fleetwire.events"
	c.Events.Buffer = 256
	return c
}

// Load reads a YAML config file over the defaults. A missing file
// returns the defaults unchanged.
func Load(path string) (*Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return c, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Pool.PerDeviceCap < 1 {
		return fmt.Errorf("pool.per_device_cap must be at least 1")
	}
	if c.Executor.Concurrency < 1 {
		return fmt.Errorf("executor.concurrency must be at least 1")
	}
	if c.Session.PerUserCap < 1 {
		return fmt.Errorf("session.per_user_cap must be at least 1")
	}
	for metric, th := range c.Poll.Thresholds {
		if th.Critical > 0 && th.Warning > th.Critical {
			return fmt.Errorf("threshold for %s: warning %v above critical %v", metric, th.Warning, th.Critical)
		}
	}
	return nil
}

// PoolConfig converts to the pool's tuning struct.
func (c *Config) PoolConfig() pool.Config {
	return pool.Config{
		PerDeviceCap:   c.Pool.PerDeviceCap,
		AcquireTimeout: time.Duration(c.Pool.AcquireTimeout),
		IdleTTL:        time.Duration(c.Pool.IdleTTL),
	}
}

// ExecutorConfig converts to the executor's tuning struct.
func (c *Config) ExecutorConfig() executor.Config {
	return executor.Config{
		Concurrency:      c.Executor.Concurrency,
		PerDeviceTimeout: time.Duration(c.Executor.PerDeviceTimeout),
	}
}

// SessionConfig converts to the session manager's tuning struct.
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		PerUserCap:     c.Session.PerUserCap,
		IdleTimeout:    time.Duration(c.Session.IdleTimeout),
		ReapInterval:   time.Duration(c.Session.ReapInterval),
		HistoryLimit:   c.Session.HistoryLimit,
		CommandTimeout: time.Duration(c.Session.CommandTimeout),
	}
}

// PollerConfig converts to the poller's tuning struct.
func (c *Config) PollerConfig() poller.Config {
	return poller.Config{
		Interval:      time.Duration(c.Poll.Interval),
		CycleDeadline: time.Duration(c.Poll.CycleDeadline),
		PollTimeout:   time.Duration(c.Poll.PollTimeout),
		Concurrency:   c.Poll.Concurrency,
		Thresholds:    c.Poll.Thresholds,
	}
}
