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

package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/ZaparooProject/playwatch/pkg/models"
)

// FakeForeground is a hand-driven foreground source. Tests call Set to
// change what the next sample returns.
type FakeForeground struct {
	sampleErr  error
	resolveErr error
	apps       map[string]models.AppInfo
	current    string
	samples    int
	mu         sync.Mutex
}

func NewFakeForeground(apps ...models.AppInfo) *FakeForeground {
	f := &FakeForeground{apps: make(map[string]models.AppInfo)}
	for _, a := range apps {
		f.apps[a.Package] = a
	}
	return f
}

func (*FakeForeground) Name() string { return "fake" }

// Set makes pkg the foreground app. An empty pkg means no sample.
func (f *FakeForeground) Set(pkg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = pkg
}

func (f *FakeForeground) SetSampleError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sampleErr = err
}

func (f *FakeForeground) SetResolveError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolveErr = err
}

// Samples returns how many times Sample has been called.
func (f *FakeForeground) Samples() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.samples
}

func (f *FakeForeground) Sample(_ context.Context, _ time.Time, _ time.Duration) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples++
	if f.sampleErr != nil {
		return "", false, f.sampleErr
	}
	return f.current, f.current != "", nil
}

func (f *FakeForeground) Resolve(_ context.Context, pkg string) (models.AppInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolveErr != nil {
		return models.AppInfo{}, f.resolveErr
	}
	info, ok := f.apps[pkg]
	if !ok {
		return models.AppInfo{Package: pkg, Label: pkg}, nil
	}
	return info, nil
}
