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
	"sync"

	"github.com/stretchr/testify/mock"
)

// MockNotifier records every name shown on the status surface.
type MockNotifier struct {
	mock.Mock
	shown []string
	mu    sync.Mutex
}

func NewMockNotifier() *MockNotifier {
	m := &MockNotifier{}
	m.On("Show", mock.Anything).Return()
	return m
}

func (m *MockNotifier) Show(name string) {
	m.mu.Lock()
	m.shown = append(m.shown, name)
	m.mu.Unlock()
	m.Called(name)
}

// Shown returns a copy of every name passed to Show, in order.
func (m *MockNotifier) Shown() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.shown))
	copy(out, m.shown)
	return out
}
