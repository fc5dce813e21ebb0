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

//go:build deadlock

// Package syncutil holds the lock types used across Playwatch. Building with
// -tags=deadlock swaps them for instrumented versions that report lock
// inversions and long waits.
package syncutil

import (
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
)

// DeadlockEnabled reports whether the instrumented locks are compiled in.
const DeadlockEnabled = true

// lockWaitLimit is generous: a tracker tick plus a full flush batch at the
// default HTTP timeout must fit inside it.
const lockWaitLimit = 45 * time.Second

func init() {
	deadlock.Opts.DeadlockTimeout = lockWaitLimit
}

// Mutex reports potential deadlocks through go-deadlock.
type Mutex struct {
	deadlock.Mutex
}

// RWMutex reports potential deadlocks through go-deadlock.
type RWMutex struct {
	deadlock.RWMutex
}
