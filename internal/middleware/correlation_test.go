// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/debdevops/servicehub/internal/logging"
)

func TestCorrelationGeneratesIDs(t *testing.T) {
	t.Parallel()

	var gotRequestID, gotCorrelationID string
	handler := Correlation(func(w http.ResponseWriter, r *http.Request) {
		gotRequestID = GetRequestID(r.Context())
		gotCorrelationID = logging.CorrelationIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/dlq", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if gotRequestID == "" {
		t.Error("expected a generated request ID in context")
	}
	if gotCorrelationID == "" {
		t.Error("expected a generated correlation ID in context")
	}
	if rec.Header().Get("X-Request-ID") != gotRequestID {
		t.Errorf("X-Request-ID header = %q, want %q", rec.Header().Get("X-Request-ID"), gotRequestID)
	}
	if rec.Header().Get("X-Correlation-Id") != gotCorrelationID {
		t.Errorf("X-Correlation-Id header = %q, want %q", rec.Header().Get("X-Correlation-Id"), gotCorrelationID)
	}
}

func TestCorrelationEchoesCallerIDs(t *testing.T) {
	t.Parallel()

	handler := Correlation(func(w http.ResponseWriter, r *http.Request) {
		if got := logging.CorrelationIDFromContext(r.Context()); got != "caller-corr-1" {
			t.Errorf("correlation ID in context = %q, want caller-corr-1", got)
		}
		if got := logging.RequestIDFromContext(r.Context()); got != "caller-req-1" {
			t.Errorf("request ID in context = %q, want caller-req-1", got)
		}
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/dlq", nil)
	req.Header.Set("X-Correlation-Id", "caller-corr-1")
	req.Header.Set("X-Request-ID", "caller-req-1")
	rec := httptest.NewRecorder()
	handler(rec, req)

	if got := rec.Header().Get("X-Correlation-Id"); got != "caller-corr-1" {
		t.Errorf("echoed X-Correlation-Id = %q, want caller-corr-1", got)
	}
	if got := rec.Header().Get("X-Request-ID"); got != "caller-req-1" {
		t.Errorf("echoed X-Request-ID = %q, want caller-req-1", got)
	}
}

func TestCorrelationIDsDifferAcrossRequests(t *testing.T) {
	t.Parallel()

	var ids []string
	handler := Correlation(func(w http.ResponseWriter, r *http.Request) {
		ids = append(ids, logging.CorrelationIDFromContext(r.Context()))
		w.WriteHeader(http.StatusOK)
	})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/namespaces", nil)
		handler(httptest.NewRecorder(), req)
	}

	if len(ids) != 2 || ids[0] == ids[1] {
		t.Errorf("expected two distinct correlation IDs, got %v", ids)
	}
}

func TestGetRequestIDMissing(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := GetRequestID(req.Context()); got != "" {
		t.Errorf("GetRequestID on bare context = %q, want empty", got)
	}
}
