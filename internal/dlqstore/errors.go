// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package dlqstore

import (
	"errors"
	"fmt"

	"github.com/debdevops/servicehub/internal/models"
)

var (
	// ErrNotFound is returned when no row matches the id.
	ErrNotFound = errors.New("dlq store: not found")

	// ErrDuplicateRuleName is returned when a rule name collides.
	ErrDuplicateRuleName = errors.New("dlq store: rule name already in use")
)

// InvalidTransitionError reports a status change rejected by the
// finality rules.
type InvalidTransitionError struct {
	From models.DlqStatus
	To   models.DlqStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("dlq store: invalid status transition %s -> %s", e.From, e.To)
}

// IsInvalidTransition reports whether err is a finality violation.
func IsInvalidTransition(err error) bool {
	var ite *InvalidTransitionError
	return errors.As(err, &ite)
}
