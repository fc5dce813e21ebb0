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

package command

import (
	"context"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealExecutor_Output(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("uses a posix shell")
	}

	exec := &RealExecutor{}
	out, err := exec.Output(context.Background(), "sh", "-c", "printf com.tencent.ig")
	require.NoError(t, err)
	assert.Equal(t, "com.tencent.ig", string(out))
}

func TestRealExecutor_OutputFailure(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("uses a posix shell")
	}

	exec := &RealExecutor{}
	_, err := exec.Output(context.Background(), "sh", "-c", "exit 3")
	require.Error(t, err)
}

func TestRealExecutor_LookPathMissing(t *testing.T) {
	t.Parallel()

	exec := &RealExecutor{}
	_, err := exec.LookPath("definitely-not-a-real-binary-playwatch")
	require.Error(t, err)
}
