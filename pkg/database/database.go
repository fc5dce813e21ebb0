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

package database

import (
	"time"

	"github.com/ZaparooProject/playwatch/pkg/models"
)

// EventRecord is the durable copy of a GameEvent. Apart from Synced, which
// only ever moves from false to true, a record never changes once written.
type EventRecord struct {
	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime"`
	Timestamp       time.Time `json:"timestamp"`
	UserID          string    `json:"userId"`
	DeviceID        string    `json:"deviceId"`
	PackageName     string    `json:"packageName"`
	GameName        string    `json:"gameName"`
	Status          string    `json:"status"`
	DBID            int64     `json:"id"`
	DurationSeconds int64     `json:"durationSeconds"`
	Synced          bool      `json:"synced"`
}

// RecordFromEvent builds the unsynced record for ev.
//
//nolint:gocritic // event passed by value to keep it immutable
func RecordFromEvent(ev models.GameEvent) EventRecord {
	return EventRecord{
		UserID:          ev.UserID,
		DeviceID:        ev.DeviceID,
		PackageName:     ev.PackageID,
		GameName:        ev.DisplayName,
		Status:          string(ev.Status),
		DurationSeconds: ev.DurationSeconds,
		StartTime:       ev.StartTime,
		EndTime:         ev.EndTime,
		Timestamp:       ev.EndTime,
	}
}

// Event rebuilds the GameEvent a record was written from.
func (r *EventRecord) Event() models.GameEvent {
	return models.GameEvent{
		PackageID:       r.PackageName,
		DisplayName:     r.GameName,
		Status:          models.Status(r.Status),
		DurationSeconds: r.DurationSeconds,
		StartTime:       r.StartTime,
		EndTime:         r.EndTime,
		UserID:          r.UserID,
		DeviceID:        r.DeviceID,
	}
}

// EventStore is the append-only local event log used by the sync pipeline.
type EventStore interface {
	// AddEvent appends rec and returns its id.
	AddEvent(rec *EventRecord) (int64, error)
	// MarkSynced flips the record to synced. It reports false if the record
	// was already synced or does not exist.
	MarkSynced(dbid int64) (bool, error)
	// GetUnsynced returns up to limit unsynced records, oldest first.
	GetUnsynced(limit int) ([]EventRecord, error)
	CountUnsynced() (int, error)
	// GetEvents pages backwards through every record, newest first.
	GetEvents(lastID, limit int) ([]EventRecord, error)
	Close() error
}
