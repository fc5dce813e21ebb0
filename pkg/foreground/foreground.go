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

// Package foreground answers "which app is in front right now" for the
// session tracker. Each backend is polled; none of them push.
package foreground

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/playwatch/pkg/config"
	"github.com/ZaparooProject/playwatch/pkg/helpers"
	"github.com/ZaparooProject/playwatch/pkg/helpers/command"
	"github.com/ZaparooProject/playwatch/pkg/models"
	"github.com/spf13/afero"
)

var ErrUnknownPackage = errors.New("package not known to foreground source")

// Oracle reports the package most recently brought to the foreground within
// lookback of now. ok is false when there is nothing to report.
type Oracle interface {
	Sample(ctx context.Context, now time.Time, lookback time.Duration) (pkg string, ok bool, err error)
}

// Resolver looks up the label and platform category of a package. The label
// is the package id itself when no friendlier name exists.
type Resolver interface {
	Resolve(ctx context.Context, pkg string) (models.AppInfo, error)
}

// Source is a backend that can both sample and resolve.
type Source interface {
	Oracle
	Resolver
	Name() string
}

// NewSource builds the backend selected in config.
func NewSource(cfg *config.Instance, exec command.Executor, fs afero.Fs) (Source, error) {
	switch cfg.MonitorSource() {
	case config.SourceADB:
		return NewADB(exec, cfg.ADBPath(), cfg.ADBSerial()), nil
	case config.SourceXdotool:
		return NewXdotool(exec), nil
	case config.SourceFile:
		path := cfg.ForegroundFilePath()
		if path == "" {
			path = helpers.ForegroundFile()
		}
		return NewFile(fs, path), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownSource, cfg.MonitorSource())
	}
}
