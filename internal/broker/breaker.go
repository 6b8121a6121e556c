// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package broker

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/debdevops/servicehub/internal/logging"
	"github.com/debdevops/servicehub/internal/metrics"
	"github.com/debdevops/servicehub/internal/models"
)

// BreakerGateway wraps a Gateway with a per-namespace circuit breaker so a
// dead or misbehaving namespace stops consuming poll budget quickly.
//
// The breaker uses real time for its interval and timeout calculations.
// That timing only determines when recovery is attempted, never data
// integrity; tests exercise the wrapped gateway directly.
type BreakerGateway struct {
	next Gateway
	cb   *gobreaker.CircuitBreaker[any]
	name string
}

// WithBreaker decorates a gateway with a circuit breaker named after the
// namespace. The breaker opens after 60% failures over at least 10 calls
// and probes again after one minute.
func WithBreaker(next Gateway, namespace string) *BreakerGateway {
	metrics.BrokerBreakerState.WithLabelValues(namespace).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        namespace,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("namespace", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("broker circuit breaker state change")
			metrics.BrokerBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
			metrics.BrokerBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
		IsSuccessful: func(err error) bool {
			// Missing entities and bad credentials are caller problems,
			// not namespace health signals.
			return err == nil || !IsRetryable(err)
		},
	})

	return &BreakerGateway{next: next, cb: cb, name: namespace}
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}

// State returns the breaker state string for health reporting.
func (g *BreakerGateway) State() string {
	return g.cb.State().String()
}

func (g *BreakerGateway) execute(fn func() (any, error)) (any, error) {
	out, err := g.cb.Execute(fn)
	if err != nil && (errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)) {
		return nil, NewError(KindTransient, "breaker", g.name, err)
	}
	return out, err
}

func (g *BreakerGateway) Ping(ctx context.Context) error {
	_, err := g.execute(func() (any, error) { return nil, g.next.Ping(ctx) })
	return err
}

func (g *BreakerGateway) ListQueues(ctx context.Context) ([]models.EntityInfo, error) {
	out, err := g.execute(func() (any, error) { return g.next.ListQueues(ctx) })
	if err != nil {
		return nil, err
	}
	return out.([]models.EntityInfo), nil
}

func (g *BreakerGateway) ListTopics(ctx context.Context) ([]models.EntityInfo, error) {
	out, err := g.execute(func() (any, error) { return g.next.ListTopics(ctx) })
	if err != nil {
		return nil, err
	}
	return out.([]models.EntityInfo), nil
}

func (g *BreakerGateway) ListSubscriptions(ctx context.Context, topic string) ([]models.EntityInfo, error) {
	out, err := g.execute(func() (any, error) { return g.next.ListSubscriptions(ctx, topic) })
	if err != nil {
		return nil, err
	}
	return out.([]models.EntityInfo), nil
}

func (g *BreakerGateway) PeekActive(ctx context.Context, entity Entity, fromSequence int64, max int) ([]Message, error) {
	out, err := g.execute(func() (any, error) { return g.next.PeekActive(ctx, entity, fromSequence, max) })
	if err != nil {
		return nil, err
	}
	return out.([]Message), nil
}

func (g *BreakerGateway) PeekDLQ(ctx context.Context, entity Entity, fromSequence int64, max int) ([]Message, error) {
	out, err := g.execute(func() (any, error) { return g.next.PeekDLQ(ctx, entity, fromSequence, max) })
	if err != nil {
		return nil, err
	}
	return out.([]Message), nil
}

func (g *BreakerGateway) Send(ctx context.Context, entityName string, msg Message) error {
	_, err := g.execute(func() (any, error) { return nil, g.next.Send(ctx, entityName, msg) })
	return err
}

func (g *BreakerGateway) DeadLetter(ctx context.Context, entity Entity, msg Message) error {
	_, err := g.execute(func() (any, error) { return nil, DeadLetter(ctx, g.next, entity, msg) })
	return err
}

func (g *BreakerGateway) Close() error {
	return g.next.Close()
}
