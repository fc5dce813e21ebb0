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

package config

import "time"

const (
	DefaultSyncTimeout = 10 * time.Second
	DefaultFlushBatch  = 20
	DefaultSyncWorkers = 2
	DefaultQueueSize   = 64
	DefaultFlushRate   = 5.0
)

// Sync configures delivery of session events to the remote collector.
type Sync struct {
	FlushOnStart *bool    `toml:"flush_on_start,omitempty"`
	FlushBatch   *int     `toml:"flush_batch,omitempty"`
	Workers      *int     `toml:"workers,omitempty"`
	QueueSize    *int     `toml:"queue_size,omitempty"`
	FlushRate    *float64 `toml:"flush_rate,omitempty"`
	CollectorURL string   `toml:"collector_url"`
	APIKey       string   `toml:"api_key"`
	UserID       string   `toml:"user_id"`
	DeviceID     string   `toml:"device_id,omitempty"`
	Timeout      string   `toml:"timeout,omitempty"`
}

func (c *Instance) CollectorURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Sync.CollectorURL
}

func (c *Instance) CollectorAPIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Sync.APIKey
}

// SetCollector updates the collector endpoint and key together.
func (c *Instance) SetCollector(url, apiKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Sync.CollectorURL = url
	c.vals.Sync.APIKey = apiKey
}

// DefaultUserID is reported when no user id has been configured.
const DefaultUserID = "child_101"

func (c *Instance) SyncUserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.Sync.UserID == "" {
		return DefaultUserID
	}
	return c.vals.Sync.UserID
}

func (c *Instance) SetSyncUserID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Sync.UserID = id
}

// SyncDeviceID returns the device identity sent to the collector. It falls
// back to the service device id generated on first save.
func (c *Instance) SyncDeviceID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.Sync.DeviceID != "" {
		return c.vals.Sync.DeviceID
	}
	return c.vals.Service.DeviceID
}

func (c *Instance) SyncTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return parseDuration(c.vals.Sync.Timeout, DefaultSyncTimeout)
}

func (c *Instance) FlushBatch() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return positiveOr(c.vals.Sync.FlushBatch, DefaultFlushBatch)
}

func (c *Instance) SyncWorkers() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return positiveOr(c.vals.Sync.Workers, DefaultSyncWorkers)
}

func (c *Instance) SyncQueueSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return positiveOr(c.vals.Sync.QueueSize, DefaultQueueSize)
}

// FlushRate is the number of backlog records re-sent per second during a
// flush.
func (c *Instance) FlushRate() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.Sync.FlushRate == nil || *c.vals.Sync.FlushRate <= 0 {
		return DefaultFlushRate
	}
	return *c.vals.Sync.FlushRate
}

func (c *Instance) FlushOnStart() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.Sync.FlushOnStart == nil {
		return true
	}
	return *c.vals.Sync.FlushOnStart
}

func positiveOr(v *int, def int) int {
	if v == nil || *v <= 0 {
		return def
	}
	return *v
}
