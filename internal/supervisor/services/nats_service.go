// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package services

import (
	"context"
	"fmt"
	"time"
)

// EmbeddedBroker matches the embedded NATS server's lifecycle. The
// server is started by cmd/server before the tree runs (namespaces
// need its client URL at wiring time); this wrapper owns its shutdown.
//
// Satisfied by *natsjs.EmbeddedServer.
type EmbeddedBroker interface {
	IsRunning() bool
	Shutdown(ctx context.Context) error
}

// EmbeddedBrokerService supervises an already-running embedded broker:
// it blocks until the context is canceled, then shuts the broker down
// within the shutdown timeout. If the broker stops on its own the
// service returns an error so suture logs the failure.
type EmbeddedBrokerService struct {
	broker          EmbeddedBroker
	shutdownTimeout time.Duration
	name            string
}

// NewEmbeddedBrokerService creates the wrapper. Zero shutdownTimeout
// falls back to 10s.
func NewEmbeddedBrokerService(broker EmbeddedBroker, shutdownTimeout time.Duration) *EmbeddedBrokerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &EmbeddedBrokerService{
		broker:          broker,
		shutdownTimeout: shutdownTimeout,
		name:            "embedded-nats",
	}
}

// Serve implements suture.Service.
func (s *EmbeddedBrokerService) Serve(ctx context.Context) error {
	// Poll for liveness; the embedded server has no failure channel.
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
			defer cancel()
			if err := s.broker.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("embedded broker shutdown failed: %w", err)
			}
			return ctx.Err()
		case <-ticker.C:
			if !s.broker.IsRunning() {
				return fmt.Errorf("embedded broker stopped unexpectedly")
			}
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (s *EmbeddedBrokerService) String() string {
	return s.name
}
