// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/debdevops/servicehub/internal/config"
	"github.com/debdevops/servicehub/internal/credstore"
	"github.com/debdevops/servicehub/internal/logging"
	"github.com/debdevops/servicehub/internal/models"
)

const (
	defaultPollInterval = 10 * time.Second
	defaultInitialDelay = 5 * time.Second
	defaultPoolSize     = 10
	defaultNsTimeout    = 2 * time.Minute
)

// Scheduler fans the monitor out across all active namespaces on a
// fixed tick. One namespace never runs two cycles concurrently; a tick
// arriving while a namespace is still in flight skips it. Implements
// the suture service contract.
type Scheduler struct {
	creds   *credstore.Store
	monitor *Monitor

	pollInterval time.Duration
	initialDelay time.Duration
	nsTimeout    time.Duration
	pool         chan struct{}

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler. Zero config fields fall back to the
// defaults (10s tick, 5s initial delay, pool of 10, 2m per namespace).
func NewScheduler(creds *credstore.Store, monitor *Monitor, cfg *config.MonitorConfig) *Scheduler {
	s := &Scheduler{
		creds:        creds,
		monitor:      monitor,
		pollInterval: defaultPollInterval,
		initialDelay: defaultInitialDelay,
		nsTimeout:    defaultNsTimeout,
		inflight:     make(map[string]struct{}),
	}
	poolSize := defaultPoolSize
	if cfg != nil {
		if cfg.PollInterval > 0 {
			s.pollInterval = cfg.PollInterval
		}
		if cfg.InitialDelay > 0 {
			s.initialDelay = cfg.InitialDelay
		}
		if cfg.NamespaceTimeout > 0 {
			s.nsTimeout = cfg.NamespaceTimeout
		}
		if cfg.MaxParallelNamespaces > 0 {
			poolSize = cfg.MaxParallelNamespaces
		}
	}
	s.pool = make(chan struct{}, poolSize)
	return s
}

// TickDeadline is the hard per-tick budget: in-flight work past it is
// cancelled cooperatively.
func (s *Scheduler) TickDeadline() time.Duration {
	return 5 * s.pollInterval
}

// Serve runs the tick loop until the context is canceled, then waits
// for in-flight monitors to drain.
func (s *Scheduler) Serve(ctx context.Context) error {
	logging.Info().
		Dur("poll_interval", s.pollInterval).
		Int("max_parallel", cap(s.pool)).
		Msg("DLQ monitor scheduler starting")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.initialDelay):
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			logging.Info().Msg("DLQ monitor scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick snapshots the active namespaces and dispatches one monitor cycle
// per namespace to the bounded pool. It does not block the tick loop;
// the per-namespace in-flight set provides the no-overlap guarantee.
func (s *Scheduler) tick(ctx context.Context) {
	listCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	namespaces, err := s.creds.ListActive(listCtx)
	cancel()
	if err != nil {
		logging.Err(err).Msg("Failed to list active namespaces")
		return
	}

	deadline := time.Now().Add(s.TickDeadline())
	for i := range namespaces {
		ns := namespaces[i]
		if !s.tryAcquire(ns.ID) {
			logging.Debug().Str("namespace", ns.Name).Msg("Skipping namespace, previous cycle still in flight")
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.release(ns.ID)

			select {
			case s.pool <- struct{}{}:
				defer func() { <-s.pool }()
			case <-ctx.Done():
				return
			}

			timeout := s.nsTimeout
			if remaining := time.Until(deadline); remaining < timeout {
				timeout = remaining
			}
			if timeout <= 0 {
				return
			}
			runCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			s.runOne(runCtx, &ns)
		}()
	}
}

func (s *Scheduler) runOne(ctx context.Context, ns *models.Namespace) {
	if _, err := s.monitor.RunNamespace(ctx, ns); err != nil {
		logging.Err(err).Str("namespace", ns.Name).Msg("Monitor cycle failed")
	}
}

func (s *Scheduler) tryAcquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[id]; busy {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

func (s *Scheduler) release(id string) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}
