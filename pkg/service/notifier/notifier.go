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

// Package notifier keeps the user-visible "what is being tracked" status
// up to date.
package notifier

import (
	"github.com/ZaparooProject/playwatch/pkg/helpers/syncutil"
	"github.com/rs/zerolog/log"
)

const (
	idleText   = "Tracking gameplay in background..."
	pausedText = "Monitoring paused"
)

// Text is the status line for the tracked game name.
func Text(name string) string {
	if name == "" {
		return idleText
	}
	return "Monitoring: " + name
}

// Backend renders status text somewhere a person can see it.
type Backend interface {
	Update(text string) error
	Close() error
}

// Status forwards changes of the tracked game name to a Backend, skipping
// repeats.
type Status struct {
	backend Backend
	last    string
	mu      syncutil.Mutex
	started bool
}

func New(b Backend) *Status {
	return &Status{backend: b}
}

// Show updates the status. An empty name shows the idle text.
func (s *Status) Show(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started && name == s.last {
		return
	}
	s.started = true
	s.last = name
	if err := s.backend.Update(Text(name)); err != nil {
		log.Warn().Err(err).Msg("notifier: failed to update status")
	}
}

// Pause shows that nothing is being watched. The next Show always renders.
func (s *Status) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	s.last = ""
	if err := s.backend.Update(pausedText); err != nil {
		log.Warn().Err(err).Msg("notifier: failed to update status")
	}
}

func (s *Status) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Close() //nolint:wrapcheck // backend errors are already descriptive
}

// LogBackend writes status changes to the log. It is used when no desktop
// session is available.
type LogBackend struct{}

func (LogBackend) Update(text string) error {
	log.Info().Str("status", text).Msg("notifier: status changed")
	return nil
}

func (LogBackend) Close() error { return nil }
