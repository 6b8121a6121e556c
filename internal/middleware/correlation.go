// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/debdevops/servicehub/internal/logging"
)

type contextKey string

// RequestIDKey holds the per-hop request ID in the request context.
const RequestIDKey contextKey = "request_id"

// Correlation tags every request with two IDs: a per-hop X-Request-ID and
// an end-to-end X-Correlation-Id. A correlation ID supplied by the caller
// is kept and echoed back so operators can trace a request across the
// systems that produced it; otherwise one is generated. Both IDs land in
// the logging context so every log line written while serving the request
// carries them.
func Correlation(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		correlationID := r.Header.Get("X-Correlation-Id")
		if correlationID == "" {
			correlationID = logging.GenerateCorrelationID()
		}

		w.Header().Set("X-Request-ID", requestID)
		w.Header().Set("X-Correlation-Id", correlationID)

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		ctx = logging.ContextWithRequestID(ctx, requestID)
		ctx = logging.ContextWithCorrelationID(ctx, correlationID)

		next(w, r.WithContext(ctx))
	}
}

// GetRequestID extracts the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
