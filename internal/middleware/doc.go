// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

/*
Package middleware provides the HTTP middleware stack for the REST API.

Components:

  - Correlation: per-hop X-Request-ID plus end-to-end X-Correlation-Id,
    accepted from the caller or generated, echoed on the response and
    threaded into the logging context.
  - PrometheusMetrics: active-request gauge and per-endpoint request
    counter/latency histogram.
  - Compression: gzip for clients that send Accept-Encoding: gzip.
  - SlowRequest: warn-level log line for requests over a threshold.

The api package composes these per route group; cross-cutting concerns
shared with the chi ecosystem (CORS, rate limiting, panic recovery) come
from go-chi middleware and are wired in the router, not here.

All middleware here wraps http.HandlerFunc rather than http.Handler; the
router adapts them onto chi with a small shim.
*/
package middleware
