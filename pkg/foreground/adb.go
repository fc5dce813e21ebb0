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
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ZaparooProject/playwatch/pkg/helpers/command"
	"github.com/ZaparooProject/playwatch/pkg/helpers/syncutil"
	"github.com/ZaparooProject/playwatch/pkg/models"
	"github.com/rs/zerolog/log"
)

const adbTimeout = 5 * time.Second

// Lines like:
//
//	topResumedActivity=ActivityRecord{5d1a2c u0 com.tencent.ig/.MainActivity t42}
//	mResumedActivity: ActivityRecord{5d1a2c u0 com.tencent.ig/.MainActivity t42}
var resumedRe = regexp.MustCompile(
	`(?m)(?:topResumedActivity|mResumedActivity|ResumedActivity)[:=]\s*ActivityRecord\{\S+ \S+ ([A-Za-z0-9_.]+)/`,
)

// Recent task blocks carry the label the app gave its task:
//
//	realActivity=com.tencent.ig/.MainActivity
//	lastTaskDescription=TaskDescription Label: PUBG MOBILE Icon: null ...
var taskLabelRe = regexp.MustCompile(`TaskDescription Label: (.*?) Icon:`)

// ADB samples an Android device over adb. The resumed activity is read
// directly, so the lookback window does not apply.
type ADB struct {
	exec   command.Executor
	cache  map[string]models.AppInfo
	path   string
	serial string
	mu     syncutil.Mutex
}

func NewADB(exec command.Executor, path, serial string) *ADB {
	return &ADB{
		exec:   exec,
		path:   path,
		serial: serial,
		cache:  make(map[string]models.AppInfo),
	}
}

func (*ADB) Name() string { return "adb" }

func (a *ADB) shell(ctx context.Context, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, adbTimeout)
	defer cancel()

	full := make([]string, 0, len(args)+3)
	if a.serial != "" {
		full = append(full, "-s", a.serial)
	}
	full = append(full, "shell")
	full = append(full, args...)

	out, err := a.exec.Output(ctx, a.path, full...)
	if err != nil {
		return nil, fmt.Errorf("adb %s: %w", strings.Join(args, " "), err)
	}
	return out, nil
}

func (a *ADB) Sample(ctx context.Context, _ time.Time, _ time.Duration) (string, bool, error) {
	out, err := a.shell(ctx, "dumpsys", "activity", "activities")
	if err != nil {
		return "", false, err
	}
	m := resumedRe.FindSubmatch(out)
	if m == nil {
		return "", false, nil
	}
	return string(m[1]), true, nil
}

// Resolve checks the package is installed and reads its flags. The label
// comes from the app's recent task when it set one, otherwise it is the
// package id.
func (a *ADB) Resolve(ctx context.Context, pkg string) (models.AppInfo, error) {
	a.mu.Lock()
	info, ok := a.cache[pkg]
	a.mu.Unlock()
	if ok {
		return info, nil
	}

	out, err := a.shell(ctx, "dumpsys", "package", pkg)
	if err != nil {
		return models.AppInfo{}, err
	}
	if bytes.Contains(out, []byte("Unable to find package")) ||
		!bytes.Contains(out, []byte("Package ["+pkg+"]")) {
		return models.AppInfo{}, fmt.Errorf("%w: %s", ErrUnknownPackage, pkg)
	}

	info = models.AppInfo{Package: pkg, Label: pkg, Category: models.CategoryUnknown}
	if label := a.taskLabel(ctx, pkg); label != "" {
		info.Label = label
	}
	if bytes.Contains(out, []byte(" IS_GAME")) {
		info.Category = models.CategoryGame
	}

	a.mu.Lock()
	a.cache[pkg] = info
	a.mu.Unlock()

	log.Debug().Str("package", pkg).Str("label", info.Label).Stringer("category", info.Category).
		Msg("adb: resolved package")
	return info, nil
}

func (a *ADB) taskLabel(ctx context.Context, pkg string) string {
	out, err := a.shell(ctx, "dumpsys", "activity", "recents")
	if err != nil {
		log.Debug().Err(err).Str("package", pkg).Msg("adb: could not read recent tasks")
		return ""
	}
	return parseTaskLabel(out, pkg)
}

func parseTaskLabel(out []byte, pkg string) string {
	marker := []byte("realActivity=" + pkg + "/")
	for block := range bytes.SplitSeq(out, []byte("* Recent #")) {
		if !bytes.Contains(block, marker) {
			continue
		}
		m := taskLabelRe.FindSubmatch(block)
		if m == nil {
			continue
		}
		label := strings.TrimSpace(string(m[1]))
		if label != "" && label != "null" {
			return label
		}
	}
	return ""
}
