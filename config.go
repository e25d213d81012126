package pausor

import (
	"fmt"
	"time"
)

// Config is a serialisable representation of the engine configuration. It can
// be populated from JSON, YAML, environment variables, etc. The zero-value is
// useful - all nested fields inherit their package defaults.
type Config struct {
	Store       StoreConfig `json:"store" yaml:"store"`
	State       StateConfig `json:"state" yaml:"state"`
	Sweep       SweepConfig `json:"sweep" yaml:"sweep"`
	HTTP        HTTPConfig  `json:"http" yaml:"http"`
	Checkpoints string      `json:"checkpoints,omitempty" yaml:"checkpoints,omitempty"` // URL of a YAML checkpoint document
	Engine      string      `json:"engine,omitempty" yaml:"engine,omitempty"`           // resume callback endpoint
}

// StoreConfig selects the approval store implementation.
type StoreConfig struct {
	// Driver is one of memory, sqlite, postgres.
	Driver string `json:"driver" yaml:"driver"`
	DSN    string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

// StateConfig selects the snapshot backend implementation.
type StateConfig struct {
	// Backend is one of fs, db, redis.
	Backend string `json:"backend" yaml:"backend"`
	// BaseURL roots the fs backend (file://, mem://, s3://, ...).
	BaseURL string `json:"baseURL,omitempty" yaml:"baseURL,omitempty"`
	// Redis connection settings; used when Backend is redis.
	RedisAddr     string `json:"redisAddr,omitempty" yaml:"redisAddr,omitempty"`
	RedisPassword string `json:"redisPassword,omitempty" yaml:"redisPassword,omitempty"`
	RedisDB       int    `json:"redisDB,omitempty" yaml:"redisDB,omitempty"`
	// TTL bounds snapshot lifetime; zero keeps snapshots until resolution.
	TTL time.Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
}

// SweepConfig tunes the timeout/reconciliation sweeps.
type SweepConfig struct {
	Interval time.Duration `json:"interval" yaml:"interval"`
}

// HTTPConfig tunes the REST gateway.
type HTTPConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// DefaultConfig returns a Config populated with the package defaults: an
// in-memory store, a mem:// snapshot backend and a one-minute sweep.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{Driver: "memory"},
		State: StateConfig{Backend: "fs", BaseURL: "mem://localhost/pausor"},
		Sweep: SweepConfig{Interval: time.Minute},
		HTTP:  HTTPConfig{Addr: ":8971"},
	}
}

// Validate returns an error describing the first invalid setting, or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	switch c.Store.Driver {
	case "", "memory":
	case "sqlite", "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for driver %s", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unsupported store driver %q", c.Store.Driver)
	}
	switch c.State.Backend {
	case "", "fs":
	case "db":
		if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
			return fmt.Errorf("state backend db requires a relational store driver")
		}
	case "redis":
		if c.State.RedisAddr == "" {
			return fmt.Errorf("state.redisAddr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unsupported state backend %q", c.State.Backend)
	}
	if c.Sweep.Interval < 0 {
		return fmt.Errorf("sweep.interval must be >= 0")
	}
	return nil
}
