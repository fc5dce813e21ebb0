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

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

const (
	SourceADB     = "adb"
	SourceXdotool = "xdotool"
	SourceFile    = "file"

	DefaultPollInterval      = 4 * time.Second
	DefaultLookback          = 15 * time.Second
	DefaultDebounce          = 8 * time.Second
	DefaultHeartbeatInterval = 60 * time.Second
)

var ErrUnknownSource = errors.New("unknown foreground source")

// Monitor configures foreground sampling and session detection.
type Monitor struct {
	Enabled           *bool    `toml:"enabled,omitempty"`
	Source            string   `toml:"source"`
	PollInterval      string   `toml:"poll_interval,omitempty"`
	Lookback          string   `toml:"lookback,omitempty"`
	Debounce          string   `toml:"debounce,omitempty"`
	HeartbeatInterval string   `toml:"heartbeat_interval,omitempty"`
	SelfPackage       string   `toml:"self_package,omitempty"`
	ADBSerial         string   `toml:"adb_serial,omitempty"`
	ADBPath           string   `toml:"adb_path,omitempty"`
	FilePath          string   `toml:"file_path,omitempty"`
	Ignore            []string `toml:"ignore,omitempty,multiline"`
	Keywords          []string `toml:"keywords,omitempty,multiline"`
}

func validSource(s string) bool {
	return slices.Contains([]string{SourceADB, SourceXdotool, SourceFile}, s)
}

// MonitorEnabled returns true unless monitoring was explicitly switched off.
func (c *Instance) MonitorEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.Monitor.Enabled == nil {
		return true
	}
	return *c.vals.Monitor.Enabled
}

func (c *Instance) SetMonitorEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Monitor.Enabled = &enabled
}

// MonitorSource returns the configured foreground backend, adb by default.
func (c *Instance) MonitorSource() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.Monitor.Source == "" {
		return SourceADB
	}
	return c.vals.Monitor.Source
}

func (c *Instance) SetMonitorSource(source string) error {
	if !validSource(source) {
		return fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Monitor.Source = source
	return nil
}

func (c *Instance) PollInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return parseDuration(c.vals.Monitor.PollInterval, DefaultPollInterval)
}

// Lookback is the window handed to the foreground source on each sample.
func (c *Instance) Lookback() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return parseDuration(c.vals.Monitor.Lookback, DefaultLookback)
}

// Debounce is how long a departure from a game must last before it is
// confirmed as the end of the session.
func (c *Instance) Debounce() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return parseDuration(c.vals.Monitor.Debounce, DefaultDebounce)
}

func (c *Instance) HeartbeatInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return parseDuration(c.vals.Monitor.HeartbeatInterval, DefaultHeartbeatInterval)
}

// SetSessionTimings sets the debounce and heartbeat intervals from duration
// strings. Empty strings restore the defaults.
func (c *Instance) SetSessionTimings(debounce, heartbeat string) error {
	for _, s := range []string{debounce, heartbeat} {
		if s == "" {
			continue
		}
		if _, err := time.ParseDuration(s); err != nil {
			return fmt.Errorf("invalid session timing: %w", err)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Monitor.Debounce = debounce
	c.vals.Monitor.HeartbeatInterval = heartbeat
	return nil
}

func (c *Instance) SelfPackage() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Monitor.SelfPackage
}

// IgnoredPackages returns extra package substrings that are never eligible
// to be tracked, on top of the built-in launcher and system UI list.
func (c *Instance) IgnoredPackages() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.vals.Monitor.Ignore)
}

// ExtraKeywords returns keywords added to the built-in game vocabulary.
func (c *Instance) ExtraKeywords() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.vals.Monitor.Keywords)
}

func (c *Instance) ADBSerial() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Monitor.ADBSerial
}

// ADBPath returns the adb binary to run, "adb" from PATH by default.
func (c *Instance) ADBPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.Monitor.ADBPath == "" {
		return "adb"
	}
	return c.vals.Monitor.ADBPath
}

// ForegroundFilePath returns the JSON file read by the file source. An empty
// result means the caller should use its data dir default.
func (c *Instance) ForegroundFilePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Monitor.FilePath
}
