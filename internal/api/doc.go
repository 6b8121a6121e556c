// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

/*
Package api exposes the REST surface under /api/v1.

Route groups:

  - /api/v1/namespaces — namespace registration, entity browsing, message
    send/peek and the test-only dead-letter endpoint.
  - /api/v1/dlq — DLQ history listing, detail, timeline, summary, notes
    and status updates, manual replay and rule-driven bulk replay.
  - /api/v1/rules — replay rule CRUD and dry-run testing.
  - /api/v1/health, /api/v1/version, /healthz, /metrics — operational
    endpoints.

Responses are camelCase JSON; errors are RFC 7807 problem documents
carrying a stable machine-readable code and the request correlation id
as traceId. List endpoints return the Page envelope and mirror the
counts in X-Total-Count, X-Page-Number and X-Page-Size headers.

The router composes the middleware package (correlation IDs, Prometheus
instrumentation, gzip) with chi's RealIP/Recoverer, go-chi/cors and
go-chi/httprate for the front door.
*/
package api
