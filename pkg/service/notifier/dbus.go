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

package notifier

import (
	"errors"
	"fmt"

	"github.com/ZaparooProject/playwatch/pkg/config"
	"github.com/ZaparooProject/playwatch/pkg/helpers/syncutil"
	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog/log"
)

const (
	notificationsService = "org.freedesktop.Notifications"
	notificationsPath    = "/org/freedesktop/Notifications"
	notifyMethod         = notificationsService + ".Notify"
	closeMethod          = notificationsService + ".CloseNotification"

	summary = "Playwatch"
)

var ErrNoSessionBus = errors.New("no session bus")

type caller interface {
	Call(method string, flags dbus.Flags, args ...any) *dbus.Call
}

// DBus shows the status as a single persistent desktop notification,
// replaced in place on every update.
type DBus struct {
	conn *dbus.Conn
	obj  caller
	id   uint32
	mu   syncutil.Mutex
}

// NewDBus connects to the session bus.
func NewDBus() (*DBus, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoSessionBus, err)
	}
	return &DBus{
		conn: conn,
		obj:  conn.Object(notificationsService, notificationsPath),
	}, nil
}

func (d *DBus) Update(text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	hints := map[string]dbus.Variant{
		"urgency":   dbus.MakeVariant(byte(0)),
		"transient": dbus.MakeVariant(false),
	}
	call := d.obj.Call(notifyMethod, 0,
		config.AppName, d.id, "", summary, text, []string{}, hints, int32(0))
	if call.Err != nil {
		return fmt.Errorf("notify call failed: %w", call.Err)
	}

	var id uint32
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("failed to read notification id: %w", err)
	}
	d.id = id
	return nil
}

func (d *DBus) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.id != 0 {
		if call := d.obj.Call(closeMethod, 0, d.id); call.Err != nil {
			log.Debug().Err(call.Err).Msg("notifier: failed to close notification")
		}
		d.id = 0
	}
	if d.conn == nil {
		return nil
	}
	if err := d.conn.Close(); err != nil {
		return fmt.Errorf("failed to close session bus: %w", err)
	}
	return nil
}

// NewBackend picks the desktop backend when enabled and reachable, and the
// log backend otherwise.
func NewBackend(desktop bool) Backend {
	if !desktop {
		return LogBackend{}
	}
	d, err := NewDBus()
	if err != nil {
		log.Warn().Err(err).Msg("notifier: desktop notifications unavailable, using log")
		return LogBackend{}
	}
	return d
}
