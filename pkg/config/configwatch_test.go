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
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatch_ReloadsOnWrite(t *testing.T) {
	t.Parallel()

	cfg, err := NewConfig(t.TempDir(), BaseDefaults)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan struct{}, 4)
	require.NoError(t, cfg.Watch(ctx, func() {
		select {
		case reloaded <- struct{}{}:
		default:
		}
	}))

	content := fmt.Sprintf("config_schema = %d\n[sync]\nuser_id = \"child_42\"\n", SchemaVersion)
	require.NoError(t, os.WriteFile(cfg.Path(), []byte(content), 0o600))

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("config was not reloaded")
	}
	assert.Equal(t, "child_42", cfg.SyncUserID())
}

func TestWatch_KeepsOldValuesOnBadFile(t *testing.T) {
	t.Parallel()

	cfg, err := NewConfig(t.TempDir(), BaseDefaults)
	require.NoError(t, err)
	cfg.SetSyncUserID("child_1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	called := make(chan struct{}, 1)
	require.NoError(t, cfg.Watch(ctx, func() { called <- struct{}{} }))

	require.NoError(t, os.WriteFile(cfg.Path(), []byte("not = [valid"), 0o600))

	select {
	case <-called:
		t.Fatal("reload callback must not fire for an unparsable file")
	case <-time.After(300 * time.Millisecond):
	}
	assert.Equal(t, "child_1", cfg.SyncUserID())
}
