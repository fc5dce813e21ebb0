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
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/ZaparooProject/playwatch/pkg/models"
	"github.com/spf13/afero"
)

// FileState is the document a companion process writes whenever the
// foreground app changes, and refreshes while it stays the same.
type FileState struct {
	Package   string `json:"package"`
	Label     string `json:"label,omitempty"`
	Category  string `json:"category,omitempty"`
	UpdatedAt int64  `json:"updated_at"`
}

// File reads the foreground app from a JSON file. A file older than the
// lookback window counts as no information.
type File struct {
	fs   afero.Fs
	path string
}

func NewFile(fsys afero.Fs, path string) *File {
	return &File{fs: fsys, path: path}
}

func (*File) Name() string { return "file" }

func (f *File) read() (FileState, bool, error) {
	data, err := afero.ReadFile(f.fs, f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return FileState{}, false, nil
	} else if err != nil {
		return FileState{}, false, fmt.Errorf("failed to read foreground file: %w", err)
	}

	var st FileState
	if err := json.Unmarshal(data, &st); err != nil {
		return FileState{}, false, fmt.Errorf("failed to parse foreground file: %w", err)
	}
	return st, st.Package != "", nil
}

func (f *File) Sample(_ context.Context, now time.Time, lookback time.Duration) (string, bool, error) {
	st, ok, err := f.read()
	if err != nil || !ok {
		return "", false, err
	}
	if lookback > 0 && now.Sub(time.UnixMilli(st.UpdatedAt)) > lookback {
		return "", false, nil
	}
	return st.Package, true, nil
}

func (f *File) Resolve(_ context.Context, pkg string) (models.AppInfo, error) {
	st, ok, err := f.read()
	if err != nil {
		return models.AppInfo{}, err
	}
	if !ok || st.Package != pkg {
		return models.AppInfo{}, fmt.Errorf("%w: %s", ErrUnknownPackage, pkg)
	}

	info := models.AppInfo{Package: pkg, Label: st.Label}
	if info.Label == "" {
		info.Label = pkg
	}
	switch st.Category {
	case "game":
		info.Category = models.CategoryGame
	case "":
		info.Category = models.CategoryUnknown
	default:
		info.Category = models.CategoryOther
	}
	return info, nil
}
