// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/servicehub/config.yaml",
	"/etc/servicehub/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all defaults applied. These are
// loaded first, then overridden by config file and environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8460,
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		Security: SecurityConfig{
			EncryptionKey:     "",
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
			CORSOrigins:       []string{},
		},
		Store: StoreConfig{
			Path:           "/data/servicehub.duckdb",
			MaxMemory:      "1GB",
			Threads:        0, // 0 = runtime.NumCPU()
			CredentialPath: "/data/namespaces",
		},
		Monitor: MonitorConfig{
			PollInterval:          10 * time.Second,
			InitialDelay:          5 * time.Second,
			MaxParallelNamespaces: 10,
			PeekPageSize:          100,
			PerEntitySafetyCap:    10000,
			NamespaceTimeout:      2 * time.Minute,
		},
		Replay: ReplayConfig{
			Workers:        0, // 0 = match monitor pool
			BaseDelay:      2 * time.Second,
			AttemptTimeout: 30 * time.Second,
			SendsPerSecond: 50,
		},
		Broker: BrokerConfig{
			CallTimeout:   30 * time.Second,
			RetryAttempts: 3,
			EmbeddedNATS:  false,
			NATSStoreDir:  "/data/nats",
		},
		API: APIConfig{
			DefaultPageSize: 20,
			MaxPageSize:     100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in sensible defaults
//  2. Config file: optional YAML config file (if exists)
//  3. Environment variables: override any setting
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	applySecondDurations(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths defines config paths parsed as comma-separated slices
// when supplied through the environment.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
//
// Examples:
//   - ENCRYPTION_KEY          -> security.encryption_key
//   - POLL_INTERVAL_SECONDS   -> monitor.poll_interval (seconds)
//   - MAX_PARALLEL_NAMESPACES -> monitor.max_parallel_namespaces
//   - HTTP_PORT               -> server.port
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server mappings
		"http_port":    "server.port",
		"http_host":    "server.host",
		"http_timeout": "server.timeout",
		"environment":  "server.environment",

		// Security mappings
		"encryption_key":      "security.encryption_key",
		"rate_limit_requests": "security.rate_limit_reqs",
		"rate_limit_window":   "security.rate_limit_window",
		"disable_rate_limit":  "security.rate_limit_disabled",
		"cors_origins":        "security.cors_origins",

		// Store mappings
		"duckdb_path":       "store.path",
		"duckdb_max_memory": "store.max_memory",
		"credential_path":   "store.credential_path",

		// Monitor mappings (POLL_INTERVAL_SECONDS is handled separately,
		// see applySecondDurations)
		"monitor_initial_delay":   "monitor.initial_delay",
		"max_parallel_namespaces": "monitor.max_parallel_namespaces",
		"peek_page_size":          "monitor.peek_page_size",
		"per_entity_safety_cap":   "monitor.per_entity_safety_cap",
		"namespace_timeout":       "monitor.namespace_timeout",

		// Replay mappings
		"replay_workers":          "replay.workers",
		"replay_base_delay":       "replay.base_delay",
		"replay_attempt_timeout":  "replay.attempt_timeout",
		"replay_sends_per_second": "replay.sends_per_second",

		// Broker mappings
		"broker_call_timeout":   "broker.call_timeout",
		"broker_retry_attempts": "broker.retry_attempts",
		"nats_embedded":         "broker.embedded_nats",
		"nats_store_dir":        "broker.nats_store_dir",

		// API mappings
		"api_default_page_size": "api.default_page_size",
		"api_max_page_size":     "api.max_page_size",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// Unmapped keys are skipped so random environment variables cannot
	// pollute the configuration.
	return ""
}

// applySecondDurations converts the integer-second environment knobs into
// durations. POLL_INTERVAL_SECONDS is documented as plain seconds for
// operator convenience.
func applySecondDurations(cfg *Config) {
	if v := os.Getenv("POLL_INTERVAL_SECONDS"); v != "" {
		var secs int
		if _, err := fmt.Sscanf(v, "%d", &secs); err == nil && secs > 0 {
			cfg.Monitor.PollInterval = time.Duration(secs) * time.Second
		}
	}
}
