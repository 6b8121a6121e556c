// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package services

import "context"

// Server is any component exposing suture's Serve contract directly.
// The monitor scheduler and the replay executor both satisfy it.
type Server interface {
	Serve(ctx context.Context) error
}

// NamedService attaches a stable supervisor name to a Server so suture
// log lines identify the component instead of printing a struct dump.
type NamedService struct {
	server Server
	name   string
}

// Named wraps a Server under the given supervisor name.
func Named(name string, server Server) *NamedService {
	return &NamedService{server: server, name: name}
}

// Serve implements suture.Service.
func (s *NamedService) Serve(ctx context.Context) error {
	return s.server.Serve(ctx)
}

// String implements fmt.Stringer for supervisor logging.
func (s *NamedService) String() string {
	return s.name
}
