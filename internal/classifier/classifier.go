// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

// Package classifier assigns a failure category and confidence score to a
// dead-lettered message from its reason and error description. The
// function is pure and deterministic: the same input always yields the
// same category, so re-classification on replay is stable.
package classifier

import (
	"regexp"
	"strings"

	"github.com/debdevops/servicehub/internal/models"
)

// Input carries the message attributes the classifier inspects.
type Input struct {
	DeadLetterReason string
	ErrorDescription string

	DeliveryCount    int64
	MaxDeliveryCount int64 // 0 when unknown

	TTLExpired bool

	ApplicationProperties map[string]any
}

// Result is a category with the confidence that it is correct.
type Result struct {
	Category   models.FailureCategory
	Confidence float64
}

// Func is the classifier signature. The monitor takes it as a parameter
// so tests can substitute deterministic stubs.
type Func func(Input) Result

var (
	reAuthorization    = regexp.MustCompile(`(?i)unauthori[sz]ed|forbidden|401|403`)
	reQuotaExceeded    = regexp.MustCompile(`(?i)quota|throttle|429|size.*exceed`)
	reResourceNotFound = regexp.MustCompile(`(?i)not\s*found|404`)
	reDataQuality      = regexp.MustCompile(`(?i)json|schema|deserial|parse|validation`)
	reTransient        = regexp.MustCompile(`(?i)timeout|connection|transient|5\d\d`)
)

// Classify applies the ordered heuristics; the first matching rule wins.
func Classify(in Input) Result {
	reason := in.DeadLetterReason
	combined := reason + " " + in.ErrorDescription

	switch {
	case strings.Contains(reason, "MaxDeliveryCountExceeded"),
		in.MaxDeliveryCount > 0 && in.DeliveryCount >= in.MaxDeliveryCount:
		return Result{models.CategoryMaxDelivery, 0.99}

	case in.TTLExpired,
		strings.Contains(reason, "TTLExpired"),
		strings.Contains(reason, "Expired"):
		return Result{models.CategoryExpired, 0.99}

	case reAuthorization.MatchString(combined):
		return Result{models.CategoryAuthorization, 0.95}

	case reQuotaExceeded.MatchString(combined):
		return Result{models.CategoryQuotaExceeded, 0.90}

	case reResourceNotFound.MatchString(combined):
		return Result{models.CategoryResourceNotFound, 0.85}

	case reDataQuality.MatchString(combined):
		return Result{models.CategoryDataQuality, 0.80}

	case reTransient.MatchString(combined):
		return Result{models.CategoryTransient, 0.70}

	case strings.TrimSpace(reason) != "":
		return Result{models.CategoryProcessingError, 0.50}

	default:
		return Result{models.CategoryUnknown, 0.10}
	}
}
