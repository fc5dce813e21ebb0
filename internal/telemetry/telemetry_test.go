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


package telemetry

import (
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty string", input: "", expected: ""},
		{name: "no username", input: "/usr/local/bin/playwatch", expected: "/usr/local/bin/playwatch"},
		{
			name:     "linux home path",
			input:    "/home/sam/.local/share/playwatch/events.db",
			expected: "/home/<user>/.local/share/playwatch/events.db",
		},
		{
			name:     "linux home path uppercase",
			input:    "/Home/Sam/.config/playwatch/config.toml",
			expected: "/home/<user>/.config/playwatch/config.toml",
		},
		{
			name:     "macos users path",
			input:    "/Users/sam/Library/playwatch/config.toml",
			expected: "/Users/<user>/Library/playwatch/config.toml",
		},
		{
			name:     "windows path",
			input:    "c:\\Users\\Sam\\AppData\\Local\\playwatch",
			expected: "C:\\Users\\<user>\\AppData\\Local\\playwatch",
		},
		{
			name:     "multiple paths in message",
			input:    "copying /home/alice/a to /home/bob/b",
			expected: "copying /home/<user>/a to /home/<user>/b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, sanitizePath(tt.input))
		})
	}
}

func TestScrub_APIKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		"send failed: X-API-KEY: <redacted>",
		scrub("send failed: X-API-KEY: abc123"))
	assert.Equal(t,
		"bad config api_key=<redacted> in /home/<user>/x",
		scrub("bad config api_key=secret in /home/sam/x"))
}

func TestSanitizeEvent(t *testing.T) {
	t.Parallel()

	ev := &sentry.Event{
		ServerName: "kids-laptop",
		Message:    "failed to open /home/sam/.local/share/playwatch/events.db",
		Extra:      map[string]any{"path": "/home/sam/x", "count": 3},
		Exception: []sentry.Exception{{
			Value: "collector rejected api_key=secret",
			Stacktrace: &sentry.Stacktrace{Frames: []sentry.Frame{{
				AbsPath:  "/home/sam/src/playwatch/pkg/service/syncer/pipeline.go",
				Filename: "pipeline.go",
			}}},
		}},
	}

	out := sanitizeEvent(ev)
	require.NotNil(t, out)
	assert.Empty(t, out.ServerName)
	assert.Equal(t, "failed to open /home/<user>/.local/share/playwatch/events.db", out.Message)
	assert.Equal(t, "/home/<user>/x", out.Extra["path"])
	assert.Equal(t, 3, out.Extra["count"])
	assert.Equal(t, "collector rejected api_key=<redacted>", out.Exception[0].Value)
	assert.Equal(t, "/home/<user>/src/playwatch/pkg/service/syncer/pipeline.go",
		out.Exception[0].Stacktrace.Frames[0].AbsPath)
}

func TestInit_Disabled(t *testing.T) {
	t.Parallel()

	require.NoError(t, Init(false, "device", "test"))
	assert.False(t, Enabled())
	Close()
	Flush()
}

func TestInit_NoDSN(t *testing.T) {
	t.Setenv(DSNEnv, "")

	require.NoError(t, Init(true, "device", "test"))
	assert.False(t, Enabled())
}
