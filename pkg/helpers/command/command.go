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

// Package command wraps exec.Command so the foreground sources that shell
// out to adb or xdotool can be tested without those tools installed.
package command

import (
	"context"
	"os/exec"
)

// Executor runs external programs.
type Executor interface {
	// Output runs name and returns its standard output. A non-zero exit is
	// reported as an error.
	Output(ctx context.Context, name string, args ...string) ([]byte, error)

	// LookPath reports where name would be found on PATH.
	LookPath(name string) (string, error)
}

// RealExecutor runs commands through os/exec.
type RealExecutor struct{}

//nolint:wrapcheck // exec errors carry the exit status already
func (*RealExecutor) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

//nolint:wrapcheck // exec errors carry the lookup name already
func (*RealExecutor) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}
