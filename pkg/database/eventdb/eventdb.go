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

// Package eventdb is the sqlite-backed local event log. Every session event
// is written here unsynced before or alongside delivery to the collector.
package eventdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ZaparooProject/playwatch/pkg/database"
	_ "github.com/mattn/go-sqlite3"
)

var ErrNullSQL = errors.New("EventDB is not connected")

const sqliteConnParams = "?_journal_mode=WAL&_synchronous=FULL&_busy_timeout=5000"

type EventDB struct {
	sql  *sql.DB
	ctx  context.Context
	path string
}

var _ database.EventStore = (*EventDB)(nil)

// OpenEventDB opens (creating and migrating if needed) the event log at
// path.
func OpenEventDB(ctx context.Context, path string) (*EventDB, error) {
	db := &EventDB{ctx: ctx, path: path}
	err := db.Open()
	return db, err
}

func (db *EventDB) Open() error {
	if err := os.MkdirAll(filepath.Dir(db.path), 0o750); err != nil {
		return fmt.Errorf("failed to create directory for database: %w", err)
	}
	sqlInstance, err := sql.Open("sqlite3", db.path+sqliteConnParams)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	db.sql = sqlInstance
	return db.MigrateUp()
}

func (db *EventDB) GetDBPath() string {
	return db.path
}

func (db *EventDB) MigrateUp() error {
	if db.sql == nil {
		return ErrNullSQL
	}
	return sqlMigrateUp(db.sql)
}

func (db *EventDB) Close() error {
	if db.sql == nil {
		return nil
	}
	err := db.sql.Close()
	if err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// SetSQLForTesting injects a connection and runs the migrations on it.
func (db *EventDB) SetSQLForTesting(ctx context.Context, sqlDB *sql.DB) error {
	db.sql = sqlDB
	db.ctx = ctx
	return db.MigrateUp()
}

func (db *EventDB) AddEvent(rec *database.EventRecord) (int64, error) {
	if db.sql == nil {
		return 0, ErrNullSQL
	}
	return sqlAddEvent(db.ctx, db.sql, rec)
}

func (db *EventDB) MarkSynced(dbid int64) (bool, error) {
	if db.sql == nil {
		return false, ErrNullSQL
	}
	return sqlMarkSynced(db.ctx, db.sql, dbid)
}

func (db *EventDB) GetUnsynced(limit int) ([]database.EventRecord, error) {
	if db.sql == nil {
		return nil, ErrNullSQL
	}
	return sqlGetUnsynced(db.ctx, db.sql, limit)
}

func (db *EventDB) CountUnsynced() (int, error) {
	if db.sql == nil {
		return 0, ErrNullSQL
	}
	return sqlCountUnsynced(db.ctx, db.sql)
}

func (db *EventDB) GetEvents(lastID, limit int) ([]database.EventRecord, error) {
	if db.sql == nil {
		return nil, ErrNullSQL
	}
	return sqlGetEvents(db.ctx, db.sql, lastID, limit)
}
