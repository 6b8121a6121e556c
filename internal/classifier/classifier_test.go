// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package classifier

import (
	"testing"

	"github.com/debdevops/servicehub/internal/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		in         Input
		category   models.FailureCategory
		confidence float64
	}{
		{
			name:       "max delivery reason token",
			in:         Input{DeadLetterReason: "MaxDeliveryCountExceeded", DeliveryCount: 10},
			category:   models.CategoryMaxDelivery,
			confidence: 0.99,
		},
		{
			name:       "delivery count at limit",
			in:         Input{DeadLetterReason: "some handler gave up", DeliveryCount: 5, MaxDeliveryCount: 5},
			category:   models.CategoryMaxDelivery,
			confidence: 0.99,
		},
		{
			name:       "ttl expired flag",
			in:         Input{TTLExpired: true},
			category:   models.CategoryExpired,
			confidence: 0.99,
		},
		{
			name:       "expired reason token",
			in:         Input{DeadLetterReason: "TTLExpiredException"},
			category:   models.CategoryExpired,
			confidence: 0.99,
		},
		{
			name:       "unauthorised british spelling",
			in:         Input{DeadLetterReason: "Unauthorised access"},
			category:   models.CategoryAuthorization,
			confidence: 0.95,
		},
		{
			name:       "authorization in description",
			in:         Input{DeadLetterReason: "handler error", ErrorDescription: "upstream returned 403"},
			category:   models.CategoryAuthorization,
			confidence: 0.95,
		},
		{
			name:       "quota",
			in:         Input{DeadLetterReason: "MessageSizeExceeded", ErrorDescription: "message size exceeded limit"},
			category:   models.CategoryQuotaExceeded,
			confidence: 0.90,
		},
		{
			name:       "throttled",
			in:         Input{ErrorDescription: "request throttled, retry later", DeadLetterReason: "x"},
			category:   models.CategoryQuotaExceeded,
			confidence: 0.90,
		},
		{
			name:       "not found with whitespace",
			in:         Input{ErrorDescription: "resource not  found", DeadLetterReason: "y"},
			category:   models.CategoryResourceNotFound,
			confidence: 0.85,
		},
		{
			name:       "404 status",
			in:         Input{ErrorDescription: "GET /thing returned 404", DeadLetterReason: "y"},
			category:   models.CategoryResourceNotFound,
			confidence: 0.85,
		},
		{
			name:       "json parse failure",
			in:         Input{ErrorDescription: "invalid JSON at position 7", DeadLetterReason: "y"},
			category:   models.CategoryDataQuality,
			confidence: 0.80,
		},
		{
			name:       "schema validation",
			in:         Input{ErrorDescription: "schema validation failed", DeadLetterReason: "y"},
			category:   models.CategoryDataQuality,
			confidence: 0.80,
		},
		{
			name:       "timeout",
			in:         Input{ErrorDescription: "connection timeout after 30s", DeadLetterReason: "y"},
			category:   models.CategoryTransient,
			confidence: 0.70,
		},
		{
			name:       "5xx",
			in:         Input{ErrorDescription: "upstream returned 503", DeadLetterReason: "y"},
			category:   models.CategoryTransient,
			confidence: 0.70,
		},
		{
			name:       "unmatched reason",
			in:         Input{DeadLetterReason: "business rule rejected"},
			category:   models.CategoryProcessingError,
			confidence: 0.50,
		},
		{
			name:       "no reason at all",
			in:         Input{},
			category:   models.CategoryUnknown,
			confidence: 0.10,
		},
		{
			name:       "blank reason counts as absent",
			in:         Input{DeadLetterReason: "   "},
			category:   models.CategoryUnknown,
			confidence: 0.10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.in)
			if got.Category != tt.category {
				t.Errorf("category = %s, want %s", got.Category, tt.category)
			}
			if got.Confidence != tt.confidence {
				t.Errorf("confidence = %v, want %v", got.Confidence, tt.confidence)
			}
		})
	}
}

// Precedence: an input matching several rules takes the earliest.
func TestClassifyPrecedence(t *testing.T) {
	got := Classify(Input{
		DeadLetterReason: "MaxDeliveryCountExceeded",
		ErrorDescription: "json parse failed with 403 timeout",
	})
	if got.Category != models.CategoryMaxDelivery {
		t.Errorf("category = %s, want MaxDelivery", got.Category)
	}
}

// Purity: repeated calls on the same input agree exactly.
func TestClassifyDeterministic(t *testing.T) {
	in := Input{DeadLetterReason: "handler error", ErrorDescription: "connection reset"}
	first := Classify(in)
	for i := 0; i < 100; i++ {
		if got := Classify(in); got != first {
			t.Fatalf("call %d diverged: %+v vs %+v", i, got, first)
		}
	}
}
