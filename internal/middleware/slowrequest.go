// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package middleware

import (
	"net/http"
	"time"

	"github.com/debdevops/servicehub/internal/logging"
)

// SlowRequest logs any request slower than threshold. Latency percentiles
// live in Prometheus; this exists so a single pathological request (a peek
// against a wedged namespace, a huge bulk replay) leaves a correlated log
// line without anyone having to query histograms.
func SlowRequest(threshold time.Duration) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapper := &metricsResponseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}
			next(wrapper, r)

			elapsed := time.Since(start)
			if elapsed < threshold {
				return
			}
			logging.Ctx(r.Context()).Warn().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", wrapper.statusCode).
				Dur("elapsed", elapsed).
				Dur("threshold", threshold).
				Msg("Slow request")
		}
	}
}
