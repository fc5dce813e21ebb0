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

// Package models holds the types shared between the session tracker, the
// sync pipeline and the outward-facing API.
package models

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle stage a GameEvent reports.
type Status string

const (
	StatusStart     Status = "START"
	StatusHeartbeat Status = "HEARTBEAT"
	StatusStop      Status = "STOP"
)

func (s Status) Valid() bool {
	switch s {
	case StatusStart, StatusHeartbeat, StatusStop:
		return true
	default:
		return false
	}
}

// GameEvent is a single session transition. It is created once by the
// tracker and passed by value from then on. UserID and DeviceID are empty
// until the sync pipeline stamps them.
type GameEvent struct {
	StartTime       time.Time
	EndTime         time.Time
	PackageID       string
	DisplayName     string
	Status          Status
	UserID          string
	DeviceID        string
	DurationSeconds int64
}

// WireMinutes converts the event duration to the minute granularity the
// collector expects: START is always 0, HEARTBEAT always 1, and a STOP is
// at least one minute for any non-zero session.
func WireMinutes(status Status, durationSeconds int64) int64 {
	switch status {
	case StatusStart:
		return 0
	case StatusHeartbeat:
		return 1
	case StatusStop:
		if durationSeconds <= 0 {
			return 0
		}
		return max(1, durationSeconds/60)
	default:
		return 0
	}
}

// Category is the platform's own opinion of what kind of app a package is.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryGame
	CategoryOther
)

func (c Category) String() string {
	switch c {
	case CategoryGame:
		return "game"
	case CategoryOther:
		return "other"
	default:
		return "unknown"
	}
}

// AppInfo describes a foreground package as far as the platform knows it.
// Label falls back to the package id when no friendly name is available.
type AppInfo struct {
	Package  string
	Label    string
	Category Category
}

const (
	NotificationGameStarted   = "games.started"
	NotificationGameHeartbeat = "games.heartbeat"
	NotificationGameStopped   = "games.stopped"
	NotificationSyncFlushed   = "sync.flushed"
	NotificationOverrideSet   = "overrides.changed"
)

// Notification is pushed to attached UIs and publishers. Delivery is best
// effort.
type Notification struct {
	Method string
	Params json.RawMessage
}

// GameEventParams is the notification payload for a session transition.
type GameEventParams struct {
	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime"`
	PackageID       string    `json:"packageId"`
	DisplayName     string    `json:"displayName"`
	Status          Status    `json:"status"`
	DurationSeconds int64     `json:"durationSeconds"`
}

type SyncFlushedParams struct {
	Attempted int `json:"attempted"`
	Delivered int `json:"delivered"`
}

type OverrideParams struct {
	Package string `json:"package"`
	Value   string `json:"value,omitempty"`
}

// NotificationMethod maps an event status to its notification method.
func NotificationMethod(s Status) string {
	switch s {
	case StatusStart:
		return NotificationGameStarted
	case StatusHeartbeat:
		return NotificationGameHeartbeat
	default:
		return NotificationGameStopped
	}
}

// NewNotification builds a notification from any JSON-encodable payload.
func NewNotification(method string, params any) (Notification, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return Notification{}, err //nolint:wrapcheck // caller logs method context
	}
	return Notification{Method: method, Params: data}, nil
}

// EventNotification builds the notification describing ev.
//
//nolint:gocritic // event passed by value to keep it immutable
func EventNotification(ev GameEvent) (Notification, error) {
	return NewNotification(NotificationMethod(ev.Status), GameEventParams{
		PackageID:       ev.PackageID,
		DisplayName:     ev.DisplayName,
		Status:          ev.Status,
		DurationSeconds: ev.DurationSeconds,
		StartTime:       ev.StartTime,
		EndTime:         ev.EndTime,
	})
}
