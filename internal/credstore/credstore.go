// ServiceHub - Message Broker Namespace Operations Control Plane
// Copyright 2026 DebDevOps
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/debdevops/servicehub

// Package credstore persists namespace registrations and their encrypted
// broker credentials in BadgerDB. Credentials are encrypted with the
// process encryption key before they touch disk and are only decrypted on
// demand for gateway construction; they never leave this package in plain
// form except through Credential.
package credstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/debdevops/servicehub/internal/config"
	"github.com/debdevops/servicehub/internal/models"
)

// Key prefixes for BadgerDB storage
const (
	nsKeyPrefix   = "ns:"
	nameKeyPrefix = "nsname:"
)

var (
	// ErrNotFound is returned when no namespace matches the id or name.
	ErrNotFound = errors.New("namespace not found")

	// ErrNameTaken is returned when a create or rename collides with an
	// existing namespace name (case-insensitive).
	ErrNameTaken = errors.New("namespace name already in use")
)

// record is the stored shape. The credential ciphertext lives alongside
// the namespace because models.Namespace never serializes it.
type record struct {
	Namespace  models.Namespace `json:"namespace"`
	Credential string           `json:"credential"`
}

// Store is a BadgerDB-backed namespace registry.
type Store struct {
	db  *badger.DB
	enc *config.CredentialEncryptor
}

// Open opens (or creates) the store at path.
func Open(path string, enc *config.CredentialEncryptor) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	return &Store{db: db, enc: enc}, nil
}

// OpenInMemory opens an ephemeral store for tests and the dev profile.
func OpenInMemory(enc *config.CredentialEncryptor) (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory credential store: %w", err)
	}
	return &Store{db: db, enc: enc}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func nsKey(id string) []byte     { return []byte(nsKeyPrefix + id) }
func nameKey(name string) []byte { return []byte(nameKeyPrefix + strings.ToLower(name)) }

// Create registers a namespace. The plaintext credential is encrypted
// before storage. A zero ID is replaced with a new UUID.
func (s *Store) Create(ctx context.Context, ns *models.Namespace, credential string) error {
	if ns.ID == "" {
		ns.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	ns.CreatedAt = now
	ns.UpdatedAt = now

	ciphertext, err := s.enc.Encrypt(credential)
	if err != nil {
		return fmt.Errorf("encrypt credential: %w", err)
	}

	data, err := json.Marshal(record{Namespace: *ns, Credential: ciphertext})
	if err != nil {
		return fmt.Errorf("marshal namespace: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		// Reject duplicate names before writing anything.
		if _, err := txn.Get(nameKey(ns.Name)); err == nil {
			return ErrNameTaken
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("check name index: %w", err)
		}

		if err := txn.Set(nsKey(ns.ID), data); err != nil {
			return fmt.Errorf("set namespace: %w", err)
		}
		if err := txn.Set(nameKey(ns.Name), []byte(ns.ID)); err != nil {
			return fmt.Errorf("set name index: %w", err)
		}
		return nil
	})
}

func getRecord(txn *badger.Txn, id string) (*record, error) {
	item, err := txn.Get(nsKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get namespace: %w", err)
	}

	var rec record
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal namespace: %w", err)
	}
	return &rec, nil
}

// Get returns a namespace by id.
func (s *Store) Get(ctx context.Context, id string) (*models.Namespace, error) {
	var ns models.Namespace
	err := s.db.View(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, id)
		if err != nil {
			return err
		}
		ns = rec.Namespace
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &ns, nil
}

// GetByName resolves a namespace by its case-insensitive name.
func (s *Store) GetByName(ctx context.Context, name string) (*models.Namespace, error) {
	var id string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(nameKey(name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get name index: %w", err)
		}
		return item.Value(func(val []byte) error {
			id = string(val)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// List returns all namespaces sorted by name.
func (s *Store) List(ctx context.Context) ([]models.Namespace, error) {
	var out []models.Namespace
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(nsKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("unmarshal namespace: %w", err)
			}
			out = append(out, rec.Namespace)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortNamespaces(out)
	return out, nil
}

// ListActive returns only namespaces flagged active, for the monitor
// fan-out.
func (s *Store) ListActive(ctx context.Context) ([]models.Namespace, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, ns := range all {
		if ns.Active {
			out = append(out, ns)
		}
	}
	return out, nil
}

// Update rewrites a namespace. When newCredential is non-nil the stored
// ciphertext is replaced, otherwise it is preserved. Renames keep the
// name index consistent.
func (s *Store) Update(ctx context.Context, ns *models.Namespace, newCredential *string) error {
	ns.UpdatedAt = time.Now().UTC()

	return s.db.Update(func(txn *badger.Txn) error {
		existing, err := getRecord(txn, ns.ID)
		if err != nil {
			return err
		}

		credential := existing.Credential
		if newCredential != nil {
			credential, err = s.enc.Encrypt(*newCredential)
			if err != nil {
				return fmt.Errorf("encrypt credential: %w", err)
			}
		}

		ns.CreatedAt = existing.Namespace.CreatedAt

		if !strings.EqualFold(existing.Namespace.Name, ns.Name) {
			if _, err := txn.Get(nameKey(ns.Name)); err == nil {
				return ErrNameTaken
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("check name index: %w", err)
			}
			if err := txn.Delete(nameKey(existing.Namespace.Name)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("delete old name index: %w", err)
			}
			if err := txn.Set(nameKey(ns.Name), []byte(ns.ID)); err != nil {
				return fmt.Errorf("set name index: %w", err)
			}
		}

		data, err := json.Marshal(record{Namespace: *ns, Credential: credential})
		if err != nil {
			return fmt.Errorf("marshal namespace: %w", err)
		}
		return txn.Set(nsKey(ns.ID), data)
	})
}

// Delete removes a namespace and its name index entry.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, id)
		if err != nil {
			return err
		}
		if err := txn.Delete(nsKey(id)); err != nil {
			return fmt.Errorf("delete namespace: %w", err)
		}
		if err := txn.Delete(nameKey(rec.Namespace.Name)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete name index: %w", err)
		}
		return nil
	})
}

// Credential decrypts and returns the broker credential of a namespace.
func (s *Store) Credential(ctx context.Context, id string) (string, error) {
	var ciphertext string
	err := s.db.View(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, id)
		if err != nil {
			return err
		}
		ciphertext = rec.Credential
		return nil
	})
	if err != nil {
		return "", err
	}
	return s.enc.Decrypt(ciphertext)
}

// RecordConnectionTest stores the outcome of the latest connectivity
// check without touching the rest of the record.
func (s *Store) RecordConnectionTest(ctx context.Context, id string, ok bool, errMsg string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, id)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		rec.Namespace.LastConnectionTestAt = &now
		rec.Namespace.LastConnectionTestSucceeded = &ok
		rec.Namespace.LastConnectionTestError = errMsg
		rec.Namespace.UpdatedAt = now

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal namespace: %w", err)
		}
		return txn.Set(nsKey(id), data)
	})
}

func sortNamespaces(list []models.Namespace) {
	sort.Slice(list, func(i, j int) bool {
		return strings.ToLower(list[i].Name) < strings.ToLower(list[j].Name)
	})
}
