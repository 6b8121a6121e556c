// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

// Package models defines the domain records shared across ServiceHub:
// namespaces, DLQ history entries, replay history, replay rules and the
// API response envelopes. The DlqStore exclusively owns persistence of
// these records; every other component interacts through its operations.
package models
