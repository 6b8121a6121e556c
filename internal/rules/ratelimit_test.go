// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package rules

import (
	"testing"
	"time"
)

func TestSlidingWindowCapBoundaries(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		cap      int
		attempts int
		want     int
	}{
		{"zero cap admits nothing", 0, 5, 0},
		{"negative cap admits nothing", -1, 5, 0},
		{"cap of one", 1, 5, 1},
		{"cap of ten thousand", 10000, 10001, 10000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &slidingWindow{}
			admitted := 0
			for i := 0; i < tt.attempts; i++ {
				if w.allow(now, tt.cap) {
					admitted++
				}
			}
			if admitted != tt.want {
				t.Errorf("admitted = %d, want %d", admitted, tt.want)
			}
		})
	}
}

func TestSlidingWindowRolls(t *testing.T) {
	w := &slidingWindow{}
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	if !w.allow(base, 2) || !w.allow(base, 2) {
		t.Fatal("first two submissions should be admitted")
	}
	if w.allow(base.Add(30*time.Minute), 2) {
		t.Error("third submission inside the window should be denied")
	}
	if !w.allow(base.Add(61*time.Minute), 2) {
		t.Error("submission after the window rolled should be admitted")
	}
}

func TestLimiterSetIsolatesRules(t *testing.T) {
	s := newLimiterSet()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	if !s.allow("rule-a", now, 1) {
		t.Fatal("rule-a first submission denied")
	}
	if s.allow("rule-a", now, 1) {
		t.Error("rule-a budget should be exhausted")
	}
	if !s.allow("rule-b", now, 1) {
		t.Error("rule-b has its own budget")
	}

	s.forget("rule-a")
	if !s.allow("rule-a", now, 1) {
		t.Error("forgotten rule should start with a fresh budget")
	}
}
