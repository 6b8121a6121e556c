// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package config

import (
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config failed validation: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"short encryption key", func(c *Config) { c.Security.EncryptionKey = "too-short" }},
		{"production without key", func(c *Config) { c.Server.Environment = "production" }},
		{"sub-second poll interval", func(c *Config) { c.Monitor.PollInterval = 100 * time.Millisecond }},
		{"zero workers", func(c *Config) { c.Monitor.MaxParallelNamespaces = 0 }},
		{"oversized peek page", func(c *Config) { c.Monitor.PeekPageSize = 101 }},
		{"cap below page size", func(c *Config) { c.Monitor.PerEntitySafetyCap = 1 }},
		{"default page above max", func(c *Config) { c.API.DefaultPageSize = 500 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{"ENCRYPTION_KEY", "security.encryption_key"},
		{"MAX_PARALLEL_NAMESPACES", "monitor.max_parallel_namespaces"},
		{"PEEK_PAGE_SIZE", "monitor.peek_page_size"},
		{"PER_ENTITY_SAFETY_CAP", "monitor.per_entity_safety_cap"},
		{"HTTP_PORT", "server.port"},
		{"LOG_LEVEL", "logging.level"},
		{"RANDOM_UNRELATED_VAR", ""},
		{"PATH", ""},
	}
	for _, tt := range tests {
		if got := envTransformFunc(tt.env); got != tt.want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tt.env, got, tt.want)
		}
	}
}

func TestPollIntervalSecondsEnv(t *testing.T) {
	t.Setenv("POLL_INTERVAL_SECONDS", "30")

	cfg := defaultConfig()
	applySecondDurations(cfg)
	if cfg.Monitor.PollInterval != 30*time.Second {
		t.Errorf("PollInterval = %s, want 30s", cfg.Monitor.PollInterval)
	}
}

func TestTickDeadline(t *testing.T) {
	m := MonitorConfig{PollInterval: 10 * time.Second}
	if got := m.TickDeadline(); got != 50*time.Second {
		t.Errorf("TickDeadline = %s, want 50s", got)
	}
}

func TestReplayWorkersFallback(t *testing.T) {
	cfg := defaultConfig()
	cfg.Replay.Workers = 0
	cfg.Monitor.MaxParallelNamespaces = 7
	if got := cfg.ReplayWorkers(); got != 7 {
		t.Errorf("ReplayWorkers = %d, want 7", got)
	}
	cfg.Replay.Workers = 3
	if got := cfg.ReplayWorkers(); got != 3 {
		t.Errorf("ReplayWorkers = %d, want 3", got)
	}
}
