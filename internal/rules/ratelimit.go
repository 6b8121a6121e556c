// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package rules

import (
	"sync"
	"time"
)

const rateWindow = time.Hour

// slidingWindow counts replay submissions for one rule over a rolling
// hour. Counters are process-local.
type slidingWindow struct {
	mu    sync.Mutex
	times []time.Time
}

// allow records a submission at now if fewer than cap submissions
// happened in the trailing window, and reports whether it was admitted.
// A cap below one admits nothing; the hourly budget is always bounded.
func (w *slidingWindow) allow(now time.Time, cap int) bool {
	if cap < 1 {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-rateWindow)
	kept := w.times[:0]
	for _, t := range w.times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.times = kept

	if len(w.times) >= cap {
		return false
	}
	w.times = append(w.times, now)
	return true
}

// limiterSet holds one sliding window per rule id.
type limiterSet struct {
	mu sync.Mutex
	m  map[string]*slidingWindow
}

func newLimiterSet() *limiterSet {
	return &limiterSet{m: make(map[string]*slidingWindow)}
}

func (s *limiterSet) allow(ruleID string, now time.Time, cap int) bool {
	s.mu.Lock()
	w, ok := s.m[ruleID]
	if !ok {
		w = &slidingWindow{}
		s.m[ruleID] = w
	}
	s.mu.Unlock()
	return w.allow(now, cap)
}

// forget drops a rule's window, used when the rule is deleted.
func (s *limiterSet) forget(ruleID string) {
	s.mu.Lock()
	delete(s.m, ruleID)
	s.mu.Unlock()
}
