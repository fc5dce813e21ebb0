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
	"errors"
	"testing"
	"time"

	"github.com/ZaparooProject/playwatch/pkg/models"
	"github.com/ZaparooProject/playwatch/pkg/testing/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const activitiesDump = `ACTIVITY MANAGER ACTIVITIES (dumpsys activity activities)
Display #0 (activities from top to bottom):
  * Task{8f2a1b #42 type=standard A=10213:com.tencent.ig U=0 visible=true}
    topResumedActivity=ActivityRecord{5d1a2c u0 com.tencent.ig/.MainActivity t42}
`

const legacyActivitiesDump = `  mResumedActivity: ActivityRecord{a1b2c3 u0 com.android.chrome/org.chromium.chrome.browser.ChromeTabbedActivity t7}
`

func TestADB_Sample(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		out     string
		want    string
		wantOK  bool
		serial  string
		wantArg []string
	}{
		{
			name:    "top resumed activity",
			out:     activitiesDump,
			want:    "com.tencent.ig",
			wantOK:  true,
			wantArg: []string{"shell", "dumpsys", "activity", "activities"},
		},
		{
			name:    "legacy resumed activity with serial",
			out:     legacyActivitiesDump,
			want:    "com.android.chrome",
			wantOK:  true,
			serial:  "emulator-5554",
			wantArg: []string{"-s", "emulator-5554", "shell", "dumpsys", "activity", "activities"},
		},
		{
			name:    "screen off, nothing resumed",
			out:     "Display #0 (activities from top to bottom):\n",
			wantOK:  false,
			wantArg: []string{"shell", "dumpsys", "activity", "activities"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			exec := &mocks.MockCommandExecutor{}
			exec.On("Output", mock.Anything, "adb", tt.wantArg).Return([]byte(tt.out), nil)

			a := NewADB(exec, "adb", tt.serial)
			pkg, ok, err := a.Sample(context.Background(), time.Now(), 15*time.Second)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, pkg)
			exec.AssertExpectations(t)
		})
	}
}

func TestADB_SampleError(t *testing.T) {
	t.Parallel()

	exec := &mocks.MockCommandExecutor{}
	exec.On("Output", mock.Anything, "adb", mock.Anything).
		Return(nil, errors.New("no devices/emulators found"))

	_, ok, err := NewADB(exec, "adb", "").Sample(context.Background(), time.Now(), 0)
	require.Error(t, err)
	assert.False(t, ok)
}

const recentsDump = `ACTIVITY MANAGER RECENT TASKS (dumpsys activity recents)
  Recent tasks:
  * Recent #0: Task{8f2a1b #42 type=standard A=10213:com.tencent.ig U=0 visible=true}
    realActivity=com.tencent.ig/.MainActivity
    lastTaskDescription=TaskDescription Label: PUBG MOBILE Icon: null IconRes: /0
  * Recent #1: Task{11aa22 #40 type=standard A=10190:com.supercell.clashroyale U=0 visible=false}
    realActivity=com.supercell.clashroyale/.GameApp
    lastTaskDescription=TaskDescription Label: null Icon: null IconRes: /0
`

func TestParseTaskLabel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		pkg  string
		want string
	}{
		{name: "labelled task", pkg: "com.tencent.ig", want: "PUBG MOBILE"},
		{name: "null label", pkg: "com.supercell.clashroyale", want: ""},
		{name: "no task", pkg: "com.whatsapp", want: ""},
		{name: "prefix does not match", pkg: "com.tencent", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, parseTaskLabel([]byte(recentsDump), tt.pkg))
		})
	}
}

func TestADB_ResolveCachesAndDetectsGameFlag(t *testing.T) {
	t.Parallel()

	dump := "Packages:\n  Package [com.supercell.clashroyale] (3f1d2e):\n" +
		"    flags=[ HAS_CODE ALLOW_CLEAR_USER_DATA IS_GAME ]\n"

	exec := &mocks.MockCommandExecutor{}
	exec.On("Output", mock.Anything, "adb",
		[]string{"shell", "dumpsys", "package", "com.supercell.clashroyale"}).
		Return([]byte(dump), nil).Once()
	exec.On("Output", mock.Anything, "adb",
		[]string{"shell", "dumpsys", "activity", "recents"}).
		Return([]byte(recentsDump), nil).Once()

	a := NewADB(exec, "adb", "")
	info, err := a.Resolve(context.Background(), "com.supercell.clashroyale")
	require.NoError(t, err)
	assert.Equal(t, models.CategoryGame, info.Category)
	assert.Equal(t, "com.supercell.clashroyale", info.Label)

	_, err = a.Resolve(context.Background(), "com.supercell.clashroyale")
	require.NoError(t, err)
	exec.AssertExpectations(t)
}

func TestADB_ResolveReadsTaskLabel(t *testing.T) {
	t.Parallel()

	dump := "Packages:\n  Package [com.tencent.ig] (9a8b7c):\n    flags=[ HAS_CODE ]\n"

	exec := &mocks.MockCommandExecutor{}
	exec.On("Output", mock.Anything, "adb",
		[]string{"shell", "dumpsys", "package", "com.tencent.ig"}).
		Return([]byte(dump), nil)
	exec.On("Output", mock.Anything, "adb",
		[]string{"shell", "dumpsys", "activity", "recents"}).
		Return([]byte(recentsDump), nil)

	info, err := NewADB(exec, "adb", "").Resolve(context.Background(), "com.tencent.ig")
	require.NoError(t, err)
	assert.Equal(t, "PUBG MOBILE", info.Label)
	assert.Equal(t, models.CategoryUnknown, info.Category)
}

func TestADB_ResolveRecentsErrorFallsBack(t *testing.T) {
	t.Parallel()

	dump := "Packages:\n  Package [com.tencent.ig] (9a8b7c):\n    flags=[ HAS_CODE ]\n"

	exec := &mocks.MockCommandExecutor{}
	exec.On("Output", mock.Anything, "adb",
		[]string{"shell", "dumpsys", "package", "com.tencent.ig"}).
		Return([]byte(dump), nil)
	exec.On("Output", mock.Anything, "adb",
		[]string{"shell", "dumpsys", "activity", "recents"}).
		Return(nil, errors.New("device offline"))

	info, err := NewADB(exec, "adb", "").Resolve(context.Background(), "com.tencent.ig")
	require.NoError(t, err)
	assert.Equal(t, "com.tencent.ig", info.Label)
}

func TestADB_ResolveMissingPackage(t *testing.T) {
	t.Parallel()

	exec := &mocks.MockCommandExecutor{}
	exec.On("Output", mock.Anything, "adb", mock.Anything).
		Return([]byte("Unable to find package: com.gone\n"), nil)

	_, err := NewADB(exec, "adb", "").Resolve(context.Background(), "com.gone")
	require.ErrorIs(t, err, ErrUnknownPackage)
}
