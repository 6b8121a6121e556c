// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package broker

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/debdevops/servicehub/internal/models"
)

// RetryPolicy defines how gateway calls are retried on transient failures.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts int

	// InitialBackoff is the delay before the second attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential growth.
	MaxBackoff time.Duration

	// BackoffMultiplier is the exponential backoff multiplier.
	BackoffMultiplier float64

	// JitterFraction is the random jitter fraction (0.0-1.0).
	JitterFraction float64

	// RandomSeed seeds the jitter source. Zero means time-based seeding;
	// a non-zero value gives reproducible backoff in tests.
	RandomSeed int64
}

// DefaultRetryPolicy returns the policy used for broker calls unless
// overridden by configuration.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		InitialBackoff:    200 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFraction:    0.1,
	}
}

// RetryingGateway wraps a Gateway and retries transient failures with
// exponential backoff and jitter. NotFound and Unauthorized errors are
// returned immediately.
type RetryingGateway struct {
	next   Gateway
	policy RetryPolicy

	randMu sync.Mutex
	rng    *rand.Rand
}

// WithRetries decorates a gateway with the given retry policy.
func WithRetries(next Gateway, policy RetryPolicy) *RetryingGateway {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.BackoffMultiplier < 1 {
		policy.BackoffMultiplier = 2.0
	}
	if policy.JitterFraction <= 0 || policy.JitterFraction > 1.0 {
		policy.JitterFraction = 0.1
	}
	seed := policy.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RetryingGateway{
		next:   next,
		policy: policy,
		//nolint:gosec // G404: weak random is fine for backoff jitter
		rng: rand.New(rand.NewSource(seed)),
	}
}

// backoff computes the delay after the given zero-based failed attempt.
func (g *RetryingGateway) backoff(attempt int) time.Duration {
	d := float64(g.policy.InitialBackoff) * math.Pow(g.policy.BackoffMultiplier, float64(attempt))
	if d > float64(g.policy.MaxBackoff) {
		d = float64(g.policy.MaxBackoff)
	}

	g.randMu.Lock()
	jitter := d * g.policy.JitterFraction * (g.rng.Float64()*2 - 1) // -jitter to +jitter
	g.randMu.Unlock()

	return time.Duration(d + jitter)
}

// do runs fn up to MaxAttempts times, sleeping between attempts. It stops
// early on non-retryable errors or context cancellation.
func (g *RetryingGateway) do(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < g.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(g.backoff(attempt - 1)):
			}
		}

		err = fn()
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
	}
	return err
}

func (g *RetryingGateway) Ping(ctx context.Context) error {
	return g.do(ctx, func() error { return g.next.Ping(ctx) })
}

func (g *RetryingGateway) ListQueues(ctx context.Context) ([]models.EntityInfo, error) {
	var out []models.EntityInfo
	err := g.do(ctx, func() error {
		var e error
		out, e = g.next.ListQueues(ctx)
		return e
	})
	return out, err
}

func (g *RetryingGateway) ListTopics(ctx context.Context) ([]models.EntityInfo, error) {
	var out []models.EntityInfo
	err := g.do(ctx, func() error {
		var e error
		out, e = g.next.ListTopics(ctx)
		return e
	})
	return out, err
}

func (g *RetryingGateway) ListSubscriptions(ctx context.Context, topic string) ([]models.EntityInfo, error) {
	var out []models.EntityInfo
	err := g.do(ctx, func() error {
		var e error
		out, e = g.next.ListSubscriptions(ctx, topic)
		return e
	})
	return out, err
}

func (g *RetryingGateway) PeekActive(ctx context.Context, entity Entity, fromSequence int64, max int) ([]Message, error) {
	var out []Message
	err := g.do(ctx, func() error {
		var e error
		out, e = g.next.PeekActive(ctx, entity, fromSequence, max)
		return e
	})
	return out, err
}

func (g *RetryingGateway) PeekDLQ(ctx context.Context, entity Entity, fromSequence int64, max int) ([]Message, error) {
	var out []Message
	err := g.do(ctx, func() error {
		var e error
		out, e = g.next.PeekDLQ(ctx, entity, fromSequence, max)
		return e
	})
	return out, err
}

func (g *RetryingGateway) Send(ctx context.Context, entityName string, msg Message) error {
	return g.do(ctx, func() error { return g.next.Send(ctx, entityName, msg) })
}

func (g *RetryingGateway) DeadLetter(ctx context.Context, entity Entity, msg Message) error {
	return g.do(ctx, func() error { return DeadLetter(ctx, g.next, entity, msg) })
}

func (g *RetryingGateway) Close() error {
	return g.next.Close()
}
