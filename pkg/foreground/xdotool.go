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

package foreground

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ZaparooProject/playwatch/pkg/helpers/command"
	"github.com/ZaparooProject/playwatch/pkg/helpers/syncutil"
	"github.com/ZaparooProject/playwatch/pkg/models"
	"github.com/shirou/gopsutil/v4/process"
)

const xdotoolTimeout = 2 * time.Second

// steamLibraryMarker appears in the executable path of anything launched
// from a Steam library.
var steamLibraryMarker = filepath.Join("steamapps", "common") + string(filepath.Separator)

// procInfo returns the name and executable path of pid.
type procInfo func(ctx context.Context, pid int32) (name, exe string, err error)

func gopsutilProcInfo(ctx context.Context, pid int32) (name, exe string, err error) {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return "", "", fmt.Errorf("failed to open process %d: %w", pid, err)
	}
	name, err = p.NameWithContext(ctx)
	if err != nil {
		return "", "", fmt.Errorf("failed to read name of process %d: %w", pid, err)
	}
	// exe is best effort, sandboxed processes often hide it
	exe, _ = p.ExeWithContext(ctx)
	return name, exe, nil
}

// Xdotool samples the focused X11 window on a desktop. The process name of
// the window owner stands in for a package id and the window title for its
// label.
type Xdotool struct {
	exec command.Executor
	proc procInfo
	seen map[string]models.AppInfo
	mu   syncutil.Mutex
}

func NewXdotool(exec command.Executor) *Xdotool {
	return &Xdotool{
		exec: exec,
		proc: gopsutilProcInfo,
		seen: make(map[string]models.AppInfo),
	}
}

func (*Xdotool) Name() string { return "xdotool" }

func (x *Xdotool) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, xdotoolTimeout)
	defer cancel()
	out, err := x.exec.Output(ctx, "xdotool", args...)
	if err != nil {
		return "", fmt.Errorf("xdotool %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (x *Xdotool) Sample(ctx context.Context, _ time.Time, _ time.Duration) (string, bool, error) {
	pidStr, err := x.run(ctx, "getactivewindow", "getwindowpid")
	if err != nil {
		return "", false, err
	}
	if pidStr == "" {
		return "", false, nil
	}
	pid, err := strconv.ParseInt(pidStr, 10, 32)
	if err != nil {
		return "", false, fmt.Errorf("invalid window pid %q: %w", pidStr, err)
	}

	name, exe, err := x.proc(ctx, int32(pid))
	if err != nil {
		return "", false, err
	}
	if name == "" {
		return "", false, nil
	}

	info := models.AppInfo{Package: name, Label: name}
	if title, titleErr := x.run(ctx, "getactivewindow", "getwindowname"); titleErr == nil && title != "" {
		info.Label = title
	}
	if exe != "" && strings.Contains(exe, steamLibraryMarker) {
		info.Category = models.CategoryGame
	}

	x.mu.Lock()
	x.seen[name] = info
	x.mu.Unlock()

	return name, true, nil
}

// Resolve returns what was observed the last time pkg had focus.
func (x *Xdotool) Resolve(_ context.Context, pkg string) (models.AppInfo, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	info, ok := x.seen[pkg]
	if !ok {
		return models.AppInfo{}, fmt.Errorf("%w: %s", ErrUnknownPackage, pkg)
	}
	return info, nil
}
