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

package eventdb

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/ZaparooProject/playwatch/pkg/database"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const (
	defaultPageSize = 25
	maxPageSize     = 100
)

func sqlMigrateUp(db *sql.DB) error {
	if err := database.MigrateUp(db, migrationFiles, "migrations"); err != nil {
		return fmt.Errorf("failed to run event database migrations: %w", err)
	}
	return nil
}

func closeStmt(stmt *sql.Stmt) {
	if closeErr := stmt.Close(); closeErr != nil {
		log.Warn().Err(closeErr).Msg("failed to close sql statement")
	}
}

func sqlAddEvent(ctx context.Context, db *sql.DB, rec *database.EventRecord) (int64, error) {
	stmt, err := db.PrepareContext(ctx, `
		INSERT INTO game_events(
			user_id, device_id, package_name, game_name, start_time, end_time,
			duration, timestamp, status, synced
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare event insert statement: %w", err)
	}
	defer closeStmt(stmt)

	result, err := stmt.ExecContext(ctx,
		rec.UserID,
		rec.DeviceID,
		rec.PackageName,
		rec.GameName,
		rec.StartTime.UnixMilli(),
		rec.EndTime.UnixMilli(),
		rec.DurationSeconds,
		rec.Timestamp.UnixMilli(),
		rec.Status,
		rec.Synced,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to execute event insert: %w", err)
	}

	dbid, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	rec.DBID = dbid

	return dbid, nil
}

// sqlMarkSynced only touches rows that are still unsynced, so concurrent
// callers race on the row and exactly one of them sees changed == true.
func sqlMarkSynced(ctx context.Context, db *sql.DB, dbid int64) (bool, error) {
	stmt, err := db.PrepareContext(ctx, `
		UPDATE game_events SET synced = 1
		WHERE id = ? AND synced = 0;
	`)
	if err != nil {
		return false, fmt.Errorf("failed to prepare mark synced statement: %w", err)
	}
	defer closeStmt(stmt)

	result, err := stmt.ExecContext(ctx, dbid)
	if err != nil {
		return false, fmt.Errorf("failed to execute mark synced: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected == 1, nil
}

const selectEventColumns = `
	SELECT id, user_id, device_id, package_name, game_name, start_time,
	       end_time, duration, timestamp, status, synced
	FROM game_events
`

func scanEvents(rows *sql.Rows) ([]database.EventRecord, error) {
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("failed to close sql rows")
		}
	}()

	list := make([]database.EventRecord, 0)
	for rows.Next() {
		var rec database.EventRecord
		var startMs, endMs, tsMs int64
		err := rows.Scan(
			&rec.DBID,
			&rec.UserID,
			&rec.DeviceID,
			&rec.PackageName,
			&rec.GameName,
			&startMs,
			&endMs,
			&rec.DurationSeconds,
			&tsMs,
			&rec.Status,
			&rec.Synced,
		)
		if err != nil {
			return list, fmt.Errorf("failed to scan event row: %w", err)
		}
		rec.StartTime = time.UnixMilli(startMs)
		rec.EndTime = time.UnixMilli(endMs)
		rec.Timestamp = time.UnixMilli(tsMs)
		list = append(list, rec)
	}
	if err := rows.Err(); err != nil {
		return list, fmt.Errorf("failed to iterate event rows: %w", err)
	}
	return list, nil
}

func sqlGetUnsynced(ctx context.Context, db *sql.DB, limit int) ([]database.EventRecord, error) {
	if limit <= 0 {
		return []database.EventRecord{}, nil
	}

	rows, err := db.QueryContext(ctx, selectEventColumns+`
		WHERE synced = 0
		ORDER BY id ASC
		LIMIT ?;
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unsynced events: %w", err)
	}
	return scanEvents(rows)
}

func sqlCountUnsynced(ctx context.Context, db *sql.DB) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM game_events WHERE synced = 0;`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unsynced events: %w", err)
	}
	return count, nil
}

func sqlGetEvents(ctx context.Context, db *sql.DB, lastID, limit int) ([]database.EventRecord, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	var rows *sql.Rows
	var err error
	if lastID > 0 {
		rows, err = db.QueryContext(ctx, selectEventColumns+`
			WHERE id < ?
			ORDER BY id DESC
			LIMIT ?;
		`, lastID, limit)
	} else {
		rows, err = db.QueryContext(ctx, selectEventColumns+`
			ORDER BY id DESC
			LIMIT ?;
		`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	return scanEvents(rows)
}
