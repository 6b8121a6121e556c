// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package broker

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a gateway failure for retry and surfacing decisions.
type Kind string

const (
	KindTransient     Kind = "transient"
	KindNotFound      Kind = "not_found"
	KindUnauthorized  Kind = "unauthorized"
	KindTimeout       Kind = "timeout"
	KindQuotaExceeded Kind = "quota_exceeded"
	KindProtocol      Kind = "protocol"
)

// Error wraps a gateway failure with its operation, target entity and kind.
type Error struct {
	Kind   Kind
	Op     string
	Entity string
	Err    error
}

func (e *Error) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("broker: %s %s: %s: %v", e.Op, e.Entity, e.Kind, e.Err)
	}
	return fmt.Sprintf("broker: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a classified gateway error.
func NewError(kind Kind, op, entity string, err error) *Error {
	return &Error{Kind: kind, Op: op, Entity: entity, Err: err}
}

// KindOf extracts the kind from an error chain. Context cancellation and
// deadline expiry map to timeout; anything unclassified is transient, which
// errs on the side of retrying.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	return KindTransient
}

// IsRetryable reports whether an operation that returned err may be
// attempted again. NotFound and Unauthorized never resolve by retrying.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindNotFound, KindUnauthorized:
		return false
	}
	return true
}

// IsUnauthorized reports whether the error chain carries an authorization
// failure. The monitor short-circuits a namespace on this.
func IsUnauthorized(err error) bool {
	return KindOf(err) == KindUnauthorized
}

// IsNotFound reports whether the error chain carries a missing-entity
// failure.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}
