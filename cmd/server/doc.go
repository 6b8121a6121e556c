// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

// Package main is the entry point for the ServiceHub server.
//
// ServiceHub is an operator-facing control plane for message-broker
// namespaces. Operators register broker namespaces by credential,
// browse live and dead-lettered messages, and send or replay messages;
// in the background the DLQ intelligence subsystem continuously
// monitors every registered dead-letter queue, classifies each
// dead-lettered message, records its lifecycle, and auto-replays
// matching messages through operator-defined rules.
//
// # Application Architecture
//
// The server wires components explicitly at startup, in dependency
// order:
//
//  1. Configuration: Koanf v2 layered loading (env > YAML file > defaults)
//  2. Credential encryption: AES-256-GCM with HKDF key derivation
//  3. Stores: Badger for namespace records, DuckDB for DLQ history,
//     replay history and rules
//  4. Broker gateways: per-namespace dialed and cached, decorated with
//     retry, circuit breaker and entity-list cache
//  5. Replay executor: worker pool draining the replay job queue
//  6. Rule engine: condition matching with per-rule hourly rate caps
//  7. DLQ monitor + scheduler: per-tick fan-out across namespaces with
//     bounded parallelism and per-namespace exclusion
//  8. HTTP server: chi REST surface under /api/v1
//
// Long-lived components run under a suture v4 supervision tree with
// three layers (data, dlq, api) for failure isolation.
//
// # Configuration
//
// Key environment variables (see internal/config for the full table):
//
//	ENCRYPTION_KEY           credential encryption key, >= 32 bytes
//	ENVIRONMENT              development | production
//	HTTP_PORT                REST listen port
//	POLL_INTERVAL_SECONDS    DLQ monitor tick period (default 10)
//	MAX_PARALLEL_NAMESPACES  monitor worker pool size (default 10)
//	PEEK_PAGE_SIZE           DLQ peek batch size, 1..100 (default 100)
//	PER_ENTITY_SAFETY_CAP    max messages per entity per cycle (default 10000)
//	EMBEDDED_NATS            start an embedded JetStream dev broker
//
// # Standalone Mode
//
// With EMBEDDED_NATS=true the server runs with zero external
// dependencies: an in-process JetStream server backs nats:// namespace
// credentials, and memory:// credentials address a deterministic
// in-process broker for demos and tests.
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the scheduler cancels
// in-flight monitor cycles, replay workers finish their current
// transaction, and the HTTP server drains connections within a 10s
// grace window.
package main
