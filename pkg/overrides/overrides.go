// Playwatch
// Copyright (c) 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Playwatch.
//
// Playwatch is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Playwatch is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Playwatch.  If not, see <http://www.gnu.org/licenses/>.

// Package overrides stores manual game/app classifications pinned by the
// user. They outrank every heuristic in the classifier.
package overrides

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"
)

const bucketOverrides = "overrides"

// Value is a pinned classification.
type Value string

const (
	Game Value = "game"
	App  Value = "app"
)

var ErrInvalidOverride = errors.New("override must be \"game\" or \"app\"")

// ParseValue validates a user-supplied override string.
func ParseValue(s string) (Value, error) {
	switch Value(s) {
	case Game, App:
		return Value(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidOverride, s)
	}
}

// Entry is one stored override.
type Entry struct {
	Package string `json:"package"`
	Value   Value  `json:"value"`
	Added   int64  `json:"added"`
}

// Store is a bbolt-backed override table keyed by package id.
type Store struct {
	bdb *bolt.DB
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create override store directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open override store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, bucketErr := tx.CreateBucketIfNotExists([]byte(bucketOverrides))
		if bucketErr != nil {
			return fmt.Errorf("failed to create %q bucket: %w", bucketOverrides, bucketErr)
		}
		return nil
	})
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("error closing override store after init failure")
		}
		return nil, fmt.Errorf("failed to initialise override store: %w", err)
	}

	return &Store{bdb: db}, nil
}

func (s *Store) Close() error {
	if err := s.bdb.Close(); err != nil {
		return fmt.Errorf("failed to close override store: %w", err)
	}
	return nil
}

// Get returns the override for pkg, if any.
func (s *Store) Get(pkg string) (Value, bool, error) {
	var entry Entry
	found := false

	err := s.bdb.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(bucketOverrides)).Get([]byte(pkg))
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &entry); err != nil {
			return fmt.Errorf("failed to unmarshal override for %s: %w", pkg, err)
		}
		found = true
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to read override store: %w", err)
	}

	return entry.Value, found, nil
}

// Set pins pkg to value, replacing any previous override.
func (s *Store) Set(pkg string, value Value) error {
	if pkg == "" {
		return errors.New("override package is empty")
	}
	if _, err := ParseValue(string(value)); err != nil {
		return err
	}

	data, err := json.Marshal(Entry{
		Package: pkg,
		Value:   value,
		Added:   time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal override: %w", err)
	}

	err = s.bdb.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketOverrides)).Put([]byte(pkg), data)
	})
	if err != nil {
		return fmt.Errorf("failed to write override: %w", err)
	}

	log.Info().Str("package", pkg).Str("value", string(value)).Msg("override set")
	return nil
}

// Clear removes the override for pkg. Clearing a missing key is not an error.
func (s *Store) Clear(pkg string) error {
	err := s.bdb.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketOverrides)).Delete([]byte(pkg))
	})
	if err != nil {
		return fmt.Errorf("failed to clear override: %w", err)
	}
	log.Info().Str("package", pkg).Msg("override cleared")
	return nil
}

// List returns every stored override ordered by package id.
func (s *Store) List() ([]Entry, error) {
	entries := make([]Entry, 0)

	err := s.bdb.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketOverrides)).ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				log.Warn().Err(err).Str("package", string(k)).Msg("skipping corrupt override")
				return nil
			}
			e.Package = string(k)
			entries = append(entries, e)
			return nil
		})
	})
	if err != nil {
		return entries, fmt.Errorf("failed to list overrides: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Package < entries[j].Package
	})
	return entries, nil
}
