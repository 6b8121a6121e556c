// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package azuresb

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"

	"github.com/debdevops/servicehub/internal/broker"
)

func TestWrapClassifiesResponseErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   broker.Kind
	}{
		{"unauthorized", http.StatusUnauthorized, broker.KindUnauthorized},
		{"forbidden", http.StatusForbidden, broker.KindUnauthorized},
		{"not found", http.StatusNotFound, broker.KindNotFound},
		{"throttled", http.StatusTooManyRequests, broker.KindQuotaExceeded},
		{"server error", http.StatusInternalServerError, broker.KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := wrap("ListQueues", "", &azcore.ResponseError{StatusCode: tt.status})
			if got := broker.KindOf(err); got != tt.want {
				t.Errorf("KindOf = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestWrapClassifiesServiceBusErrors(t *testing.T) {
	err := wrap("Send", "orders", &azservicebus.Error{Code: azservicebus.CodeUnauthorizedAccess})
	if !broker.IsUnauthorized(err) {
		t.Errorf("expected unauthorized, got: %v", err)
	}

	err = wrap("Send", "orders", &azservicebus.Error{Code: azservicebus.CodeTimeout})
	if got := broker.KindOf(err); got != broker.KindTimeout {
		t.Errorf("expected timeout, got %s", got)
	}

	err = wrap("Ping", "", errors.New("amqp: link detached"))
	if got := broker.KindOf(err); got != broker.KindTransient {
		t.Errorf("unclassified should be transient, got %s", got)
	}
}

func TestWrapClassifiesMissingEntityConditions(t *testing.T) {
	// The SDK has no stable code for a missing entity; the raw AMQP
	// condition is the only signal on the messaging path.
	conditions := []string{
		`link detached: *Error{Condition: com.microsoft:entity-not-found, Description: The messaging entity 'sb://x/orders' could not be found.}`,
		`link detached: *Error{Condition: amqp:not-found}`,
	}
	for _, msg := range conditions {
		err := wrap("PeekDLQ", "orders", errors.New(msg))
		if !broker.IsNotFound(err) {
			t.Errorf("wrap(%q) = %v, want not-found", msg, err)
		}
	}
}

func TestReceivedToMessage(t *testing.T) {
	seq := int64(42)
	reason := "MaxDeliveryCountExceeded"
	desc := "delivery count exceeded"
	ct := "application/json"
	corr := "corr-7"
	enq := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	m := receivedToMessage(&azservicebus.ReceivedMessage{
		MessageID:                  "m-1",
		SequenceNumber:             &seq,
		DeadLetterReason:           &reason,
		DeadLetterErrorDescription: &desc,
		DeliveryCount:              10,
		ContentType:                &ct,
		CorrelationID:              &corr,
		EnqueuedTime:               &enq,
		Body:                       []byte(`{"a":1}`),
		ApplicationProperties:      map[string]any{"Tenant": "acme"},
	})

	if m.MessageID != "m-1" || m.SequenceNumber != 42 {
		t.Errorf("identity = %q/%d", m.MessageID, m.SequenceNumber)
	}
	if m.DeadLetterReason != reason || m.DeadLetterErrorDescription != desc {
		t.Errorf("dead-letter fields = %q/%q", m.DeadLetterReason, m.DeadLetterErrorDescription)
	}
	if m.DeliveryCount != 10 || m.ContentType != ct || m.CorrelationID != corr {
		t.Errorf("metadata = %d/%q/%q", m.DeliveryCount, m.ContentType, m.CorrelationID)
	}
	if m.EnqueuedAt == nil || !m.EnqueuedAt.Equal(enq) {
		t.Errorf("enqueuedAt = %v", m.EnqueuedAt)
	}
	if m.ApplicationProperties["Tenant"] != "acme" {
		t.Errorf("application properties = %v", m.ApplicationProperties)
	}
}
