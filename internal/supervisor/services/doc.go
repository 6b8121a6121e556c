// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

// Package services contains suture.Service adapters for components
// whose lifecycles do not already follow the Serve(ctx) pattern: the
// HTTP server's ListenAndServe/Shutdown pair and the embedded NATS
// server's run-until-stopped pair. Components that expose
// Serve(ctx) error directly (the monitor scheduler, the replay
// executor) are wrapped only to give them a stable supervisor name.
package services
