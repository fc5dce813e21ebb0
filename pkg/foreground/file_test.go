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
	"testing"
	"time"

	"github.com/ZaparooProject/playwatch/pkg/models"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testForegroundPath = "/run/playwatch/foreground.json"

func writeState(t *testing.T, fs afero.Fs, st FileState) {
	t.Helper()
	data, err := json.Marshal(st)
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, testForegroundPath, data, 0o600))
}

func TestFile_Sample(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)

	tests := []struct {
		st     *FileState
		name   string
		want   string
		wantOK bool
	}{
		{name: "missing file", st: nil},
		{
			name:   "fresh sample",
			st:     &FileState{Package: "com.tencent.ig", UpdatedAt: now.Add(-3 * time.Second).UnixMilli()},
			want:   "com.tencent.ig",
			wantOK: true,
		},
		{
			name: "stale sample",
			st:   &FileState{Package: "com.tencent.ig", UpdatedAt: now.Add(-time.Minute).UnixMilli()},
		},
		{
			name: "empty package",
			st:   &FileState{UpdatedAt: now.UnixMilli()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fs := afero.NewMemMapFs()
			if tt.st != nil {
				writeState(t, fs, *tt.st)
			}

			pkg, ok, err := NewFile(fs, testForegroundPath).Sample(context.Background(), now, 15*time.Second)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, pkg)
		})
	}
}

func TestFile_SampleCorrupt(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, testForegroundPath, []byte("{"), 0o600))

	_, _, err := NewFile(fs, testForegroundPath).Sample(context.Background(), time.Now(), time.Second)
	require.Error(t, err)
}

func TestFile_Resolve(t *testing.T) {
	t.Parallel()

	fs := afero.NewMemMapFs()
	writeState(t, fs, FileState{
		Package:   "com.tencent.ig",
		Label:     "PUBG MOBILE",
		Category:  "game",
		UpdatedAt: time.Now().UnixMilli(),
	})
	f := NewFile(fs, testForegroundPath)

	info, err := f.Resolve(context.Background(), "com.tencent.ig")
	require.NoError(t, err)
	assert.Equal(t, models.AppInfo{
		Package:  "com.tencent.ig",
		Label:    "PUBG MOBILE",
		Category: models.CategoryGame,
	}, info)

	_, err = f.Resolve(context.Background(), "com.other")
	require.ErrorIs(t, err, ErrUnknownPackage)

	writeState(t, fs, FileState{Package: "com.whatsapp", Category: "social", UpdatedAt: time.Now().UnixMilli()})
	info, err = f.Resolve(context.Background(), "com.whatsapp")
	require.NoError(t, err)
	assert.Equal(t, "com.whatsapp", info.Label)
	assert.Equal(t, models.CategoryOther, info.Category)
}
