// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

package credstore

import (
	"context"
	"errors"
	"testing"

	"github.com/debdevops/servicehub/internal/config"
	"github.com/debdevops/servicehub/internal/models"
)

const testKey = "0123456789abcdef0123456789abcdef"

func newStore(t *testing.T) *Store {
	t.Helper()
	enc, err := config.NewCredentialEncryptor(testKey)
	if err != nil {
		t.Fatalf("encryptor: %v", err)
	}
	s, err := OpenInMemory(enc)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateGetRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	ns := &models.Namespace{Name: "prod-east", DisplayName: "Production East", Active: true}
	if err := s.Create(ctx, ns, "nats://broker:4222"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ns.ID == "" {
		t.Fatal("Create should assign an id")
	}

	got, err := s.Get(ctx, ns.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "prod-east" || !got.Active {
		t.Errorf("unexpected namespace: %+v", got)
	}
	if got.EncryptedCredential != "" {
		t.Error("credential ciphertext must not surface on the model")
	}

	cred, err := s.Credential(ctx, ns.ID)
	if err != nil {
		t.Fatalf("Credential: %v", err)
	}
	if cred != "nats://broker:4222" {
		t.Errorf("credential = %q", cred)
	}
}

func TestGetByNameIsCaseInsensitive(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	ns := &models.Namespace{Name: "Prod-East", Active: true}
	if err := s.Create(ctx, ns, "cred"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := s.GetByName(ctx, "PROD-EAST")
	if err != nil {
		t.Fatalf("GetByName: %v", err)
	}
	if got.ID != ns.ID {
		t.Errorf("resolved id = %q, want %q", got.ID, ns.ID)
	}
}

func TestDuplicateNameRejected(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, &models.Namespace{Name: "dup"}, "a"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	err := s.Create(ctx, &models.Namespace{Name: "DUP"}, "b")
	if !errors.Is(err, ErrNameTaken) {
		t.Errorf("error = %v, want ErrNameTaken", err)
	}
}

func TestUpdatePreservesCredentialUnlessReplaced(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	ns := &models.Namespace{Name: "ns1", Active: true}
	if err := s.Create(ctx, ns, "original"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	ns.DisplayName = "renamed display"
	if err := s.Update(ctx, ns, nil); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if cred, _ := s.Credential(ctx, ns.ID); cred != "original" {
		t.Errorf("credential after metadata update = %q, want original", cred)
	}

	newCred := "rotated"
	if err := s.Update(ctx, ns, &newCred); err != nil {
		t.Fatalf("Update with credential: %v", err)
	}
	if cred, _ := s.Credential(ctx, ns.ID); cred != "rotated" {
		t.Errorf("credential after rotation = %q, want rotated", cred)
	}
}

func TestRenameMovesNameIndex(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	ns := &models.Namespace{Name: "old-name"}
	if err := s.Create(ctx, ns, "c"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	ns.Name = "new-name"
	if err := s.Update(ctx, ns, nil); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if _, err := s.GetByName(ctx, "old-name"); !errors.Is(err, ErrNotFound) {
		t.Errorf("old name lookup = %v, want ErrNotFound", err)
	}
	if _, err := s.GetByName(ctx, "new-name"); err != nil {
		t.Errorf("new name lookup: %v", err)
	}
}

func TestDeleteRemovesBothKeys(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	ns := &models.Namespace{Name: "gone"}
	if err := s.Create(ctx, ns, "c"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Delete(ctx, ns.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := s.Get(ctx, ns.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
	if _, err := s.GetByName(ctx, "gone"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByName after delete = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, ns.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete = %v, want ErrNotFound", err)
	}
}

func TestListActiveFiltersAndSorts(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for _, ns := range []*models.Namespace{
		{Name: "zeta", Active: true},
		{Name: "alpha", Active: false},
		{Name: "Mid", Active: true},
	} {
		if err := s.Create(ctx, ns, "c"); err != nil {
			t.Fatalf("Create %s: %v", ns.Name, err)
		}
	}

	all, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].Name != "alpha" || all[1].Name != "Mid" {
		t.Errorf("List order: %+v", all)
	}

	active, err := s.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("active count = %d, want 2", len(active))
	}
	for _, ns := range active {
		if !ns.Active {
			t.Errorf("inactive namespace %q in active list", ns.Name)
		}
	}
}

func TestRecordConnectionTest(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	ns := &models.Namespace{Name: "probe"}
	if err := s.Create(ctx, ns, "c"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := s.RecordConnectionTest(ctx, ns.ID, false, "unauthorized"); err != nil {
		t.Fatalf("RecordConnectionTest: %v", err)
	}

	got, err := s.Get(ctx, ns.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.LastConnectionTestAt == nil || got.LastConnectionTestSucceeded == nil {
		t.Fatal("connection test fields not recorded")
	}
	if *got.LastConnectionTestSucceeded {
		t.Error("succeeded = true, want false")
	}
	if got.LastConnectionTestError != "unauthorized" {
		t.Errorf("error = %q", got.LastConnectionTestError)
	}
}
