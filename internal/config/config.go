// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

// Package config provides layered configuration management for ServiceHub.
// Precedence: environment variables > optional YAML config file > defaults.
package config

import (
	"fmt"
	"time"
)

// Config is the full application configuration snapshot. It is loaded once
// at startup and treated as immutable afterwards.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Security SecurityConfig `koanf:"security"`
	Store    StoreConfig    `koanf:"store"`
	Monitor  MonitorConfig  `koanf:"monitor"`
	Replay   ReplayConfig   `koanf:"replay"`
	Broker   BrokerConfig   `koanf:"broker"`
	API      APIConfig      `koanf:"api"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"`
}

// SecurityConfig holds settings for credential protection and the HTTP
// front door.
type SecurityConfig struct {
	// EncryptionKey protects stored broker credentials. Must be at least
	// 32 bytes. Required in production.
	EncryptionKey string `koanf:"encryption_key"`

	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	// Path is the DuckDB database file for DLQ history, replays and rules.
	// Empty means in-memory (tests, dev).
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"`

	// CredentialPath is the Badger directory for namespace records.
	CredentialPath string `koanf:"credential_path"`
}

// MonitorConfig holds DLQ monitor scheduler settings.
type MonitorConfig struct {
	// PollInterval is the scheduler tick period P.
	PollInterval time.Duration `koanf:"poll_interval"`

	// InitialDelay before the first tick.
	InitialDelay time.Duration `koanf:"initial_delay"`

	// MaxParallelNamespaces is the monitor worker pool size W.
	MaxParallelNamespaces int `koanf:"max_parallel_namespaces"`

	// PeekPageSize is the per-call DLQ peek batch size (1..100).
	PeekPageSize int `koanf:"peek_page_size"`

	// PerEntitySafetyCap bounds messages examined per entity per cycle.
	PerEntitySafetyCap int `koanf:"per_entity_safety_cap"`

	// NamespaceTimeout bounds one monitor invocation for one namespace.
	NamespaceTimeout time.Duration `koanf:"namespace_timeout"`
}

// ReplayConfig holds replay executor settings.
type ReplayConfig struct {
	// Workers is the replay worker pool size R. 0 means match the monitor
	// pool size.
	Workers int `koanf:"workers"`

	// BaseDelay is the base backoff delay between replay attempts.
	BaseDelay time.Duration `koanf:"base_delay"`

	// AttemptTimeout bounds a single replay send.
	AttemptTimeout time.Duration `koanf:"attempt_timeout"`

	// SendsPerSecond globally paces outgoing replays across all rules.
	// 0 disables pacing.
	SendsPerSecond float64 `koanf:"sends_per_second"`
}

// BrokerConfig holds broker gateway settings.
type BrokerConfig struct {
	// CallTimeout bounds a single broker operation.
	CallTimeout time.Duration `koanf:"call_timeout"`

	// RetryAttempts is the gateway-internal retry budget for transient
	// failures.
	RetryAttempts int `koanf:"retry_attempts"`

	// EmbeddedNATS starts an embedded JetStream server for the standalone
	// development profile; namespaces with a nats:// credential connect to
	// it (or any external NATS).
	EmbeddedNATS bool   `koanf:"embedded_nats"`
	NATSStoreDir string `koanf:"nats_store_dir"`
}

// APIConfig holds REST pagination bounds.
type APIConfig struct {
	DefaultPageSize int `koanf:"default_page_size"`
	MaxPageSize     int `koanf:"max_page_size"`
}

// LoggingConfig mirrors logging.Config for koanf unmarshaling.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Validate checks configuration invariants. It is called by LoadWithKoanf
// after all layers are merged.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.IsProduction() && len(c.Security.EncryptionKey) < 32 {
		return fmt.Errorf("security.encryption_key must be at least 32 bytes in production (got %d)", len(c.Security.EncryptionKey))
	}
	if c.Security.EncryptionKey != "" && len(c.Security.EncryptionKey) < 32 {
		return fmt.Errorf("security.encryption_key must be at least 32 bytes (got %d)", len(c.Security.EncryptionKey))
	}
	if c.Monitor.PollInterval < time.Second {
		return fmt.Errorf("monitor.poll_interval must be at least 1s, got %s", c.Monitor.PollInterval)
	}
	if c.Monitor.MaxParallelNamespaces < 1 {
		return fmt.Errorf("monitor.max_parallel_namespaces must be at least 1, got %d", c.Monitor.MaxParallelNamespaces)
	}
	if c.Monitor.PeekPageSize < 1 || c.Monitor.PeekPageSize > 100 {
		return fmt.Errorf("monitor.peek_page_size must be in 1..100, got %d", c.Monitor.PeekPageSize)
	}
	if c.Monitor.PerEntitySafetyCap < c.Monitor.PeekPageSize {
		return fmt.Errorf("monitor.per_entity_safety_cap must be at least the peek page size")
	}
	if c.Replay.Workers < 0 {
		return fmt.Errorf("replay.workers must not be negative, got %d", c.Replay.Workers)
	}
	if c.API.DefaultPageSize < 1 || c.API.DefaultPageSize > c.API.MaxPageSize {
		return fmt.Errorf("api.default_page_size must be in 1..%d, got %d", c.API.MaxPageSize, c.API.DefaultPageSize)
	}
	return nil
}

// TickDeadline returns the hard per-tick deadline D (5×P).
func (m MonitorConfig) TickDeadline() time.Duration {
	return 5 * m.PollInterval
}

// ReplayWorkers resolves the effective replay pool size.
func (c *Config) ReplayWorkers() int {
	if c.Replay.Workers > 0 {
		return c.Replay.Workers
	}
	return c.Monitor.MaxParallelNamespaces
}
