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

package helpers

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/ZaparooProject/playwatch/pkg/config"
	"github.com/adrg/xdg"
	"github.com/stretchr/testify/assert"
)

func TestPaths(t *testing.T) {
	t.Parallel()

	assert.Equal(t, filepath.Join(xdg.ConfigHome, config.AppName), ConfigDir())
	assert.True(t, strings.HasPrefix(DataDir(), xdg.DataHome))
	assert.Equal(t, config.AppName, filepath.Base(TempDir()))
	assert.Equal(t, config.LogFile, filepath.Base(LogPath()))
	assert.Equal(t, "foreground.json", filepath.Base(ForegroundFile()))
}
