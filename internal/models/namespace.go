// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package models

import "time"

// Namespace is a registered broker tenant addressable by one credential.
// The credential is stored encrypted and never serialized to clients.
type Namespace struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`

	// EncryptedCredential is the AES-GCM ciphertext of the broker
	// credential (connection string or URL). Never exposed over the API.
	EncryptedCredential string `json:"-"`

	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	LastConnectionTestAt        *time.Time `json:"lastConnectionTestAt,omitempty"`
	LastConnectionTestSucceeded *bool      `json:"lastConnectionTestSucceeded,omitempty"`
	LastConnectionTestError     string     `json:"lastConnectionTestError,omitempty"`
}

// EntityType identifies the kind of broker entity a message lives on.
type EntityType string

const (
	EntityTypeQueue        EntityType = "Queue"
	EntityTypeTopic        EntityType = "Topic"
	EntityTypeSubscription EntityType = "Subscription"
)

// Valid reports whether the entity type is one of the known kinds.
func (t EntityType) Valid() bool {
	switch t {
	case EntityTypeQueue, EntityTypeTopic, EntityTypeSubscription:
		return true
	}
	return false
}

// EntityInfo describes one queue/topic/subscription with runtime counts.
type EntityInfo struct {
	Name      string        `json:"name"`
	Type      EntityType    `json:"type"`
	TopicName string        `json:"topicName,omitempty"`
	Counts    RuntimeCounts `json:"counts"`
}

// RuntimeCounts carries the broker-reported message counters for one entity.
type RuntimeCounts struct {
	Active     int64 `json:"active"`
	DeadLetter int64 `json:"deadLetter"`
	Scheduled  int64 `json:"scheduled"`
	Transfer   int64 `json:"transfer"`
	Total      int64 `json:"total"`
}
