// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

// Package supervisor builds the suture v4 supervision tree that runs
// ServiceHub's long-lived components.
//
// The tree has three child supervisors under one root:
//
//	servicehub
//	├── data-layer   embedded NATS server (standalone profile)
//	├── dlq-layer    monitor scheduler, replay worker pool
//	└── api-layer    HTTP server
//
// Services are plain suture.Service implementations; the wrappers in
// the services subpackage adapt component lifecycles that do not
// already follow the Serve(ctx) pattern. Supervisor events are logged
// through sutureslog over the zerolog-backed slog adapter in
// internal/logging.
package supervisor
