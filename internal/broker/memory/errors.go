// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package memory

import "errors"

var (
	errEntityNotFound = errors.New("entity not found")
	errTopicNotFound  = errors.New("topic not found")
)
