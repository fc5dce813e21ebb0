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

// Package classifier decides whether a foreground package is a game.
//
// Policy, first match wins: a manual override, the platform category, a
// keyword in the display label, a keyword in the package id, and finally
// "not a game". Launchers, system UI, input methods and the monitor itself
// are filtered out before any of that runs.
package classifier

import (
	"slices"
	"strings"

	"github.com/ZaparooProject/playwatch/pkg/models"
	"github.com/ZaparooProject/playwatch/pkg/overrides"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultKeywords is the built-in game vocabulary.
var DefaultKeywords = []string{
	"game", "battle", "fight", "arena", "clash", "royale",
	"pubg", "bgmi", "snake", "chess", "puzzle", "racing",
	"shooter", "rpg", "mmorpg", "casino", "slots", "poker",
}

// ignoredSubstrings never denote an app a person is actually using.
var ignoredSubstrings = []string{
	"launcher",
	"systemui",
	"inputmethod",
	"keyboard",
}

var ignoredExact = []string{
	"android",
	"com.miui.home",
	"com.android.settings.intelligence",
}

type Reason string

const (
	ReasonOverride     Reason = "override"
	ReasonCategory     Reason = "category"
	ReasonLabel        Reason = "label"
	ReasonPackage      Reason = "package"
	ReasonDefault      Reason = "default"
	ReasonIgnored      Reason = "ignored"
	ReasonLookupFailed Reason = "lookup_failed"
)

// Result is either a definite verdict (Known) or Unknown. Unknown results
// come from failed lookups and are never treated as games.
type Result struct {
	Reason Reason
	Game   bool
	Known  bool
}

func found(game bool, reason Reason) Result {
	return Result{Game: game, Known: true, Reason: reason}
}

// Unknown is the result for a package whose details could not be read.
func Unknown() Result {
	return Result{Reason: ReasonLookupFailed}
}

// IsGame collapses the result to the default-false policy.
func (r Result) IsGame() bool {
	if !r.Known {
		return false
	}
	return r.Game
}

// OverrideLookup is the read side of the override store.
type OverrideLookup interface {
	Get(pkg string) (overrides.Value, bool, error)
}

type Options struct {
	Overrides     OverrideLookup
	SelfPackage   string
	Ignore        []string
	ExtraKeywords []string
}

type Classifier struct {
	overrides OverrideLookup
	selfPkg   string
	ignore    []string
	keywords  []string
}

func New(opts Options) *Classifier {
	keywords := slices.Clone(DefaultKeywords)
	for _, k := range opts.ExtraKeywords {
		k = lower(strings.TrimSpace(k))
		if k != "" && !slices.Contains(keywords, k) {
			keywords = append(keywords, k)
		}
	}

	ignore := slices.Clone(ignoredSubstrings)
	for _, s := range opts.Ignore {
		s = lower(strings.TrimSpace(s))
		if s != "" {
			ignore = append(ignore, s)
		}
	}

	return &Classifier{
		overrides: opts.Overrides,
		selfPkg:   opts.SelfPackage,
		ignore:    ignore,
		keywords:  keywords,
	}
}

// lower folds s with full Unicode rules. A Caser holds state, so one is
// built per call.
func lower(s string) string {
	return cases.Lower(language.Und).String(s)
}

// IsIgnored reports whether pkg can never be the foreground app for session
// purposes.
func (c *Classifier) IsIgnored(pkg string) bool {
	if pkg == "" {
		return true
	}
	if c.selfPkg != "" && pkg == c.selfPkg {
		return true
	}
	p := lower(pkg)
	if slices.Contains(ignoredExact, p) {
		return true
	}
	for _, s := range c.ignore {
		if strings.Contains(p, s) {
			return true
		}
	}
	return false
}

func (c *Classifier) matchKeyword(s string) bool {
	if s == "" {
		return false
	}
	s = lower(s)
	for _, k := range c.keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// Classify applies the policy to app. It has no side effects.
//
//nolint:gocritic // AppInfo is small and read-only
func (c *Classifier) Classify(app models.AppInfo) Result {
	if c.IsIgnored(app.Package) {
		return found(false, ReasonIgnored)
	}

	if c.overrides != nil {
		v, ok, err := c.overrides.Get(app.Package)
		if err != nil {
			log.Warn().Err(err).Str("package", app.Package).Msg("classifier: override lookup failed")
			return Unknown()
		}
		if ok {
			return found(v == overrides.Game, ReasonOverride)
		}
	}

	return c.Heuristic(app)
}

// Heuristic is Classify without the ignore filter and override lookup.
//
//nolint:gocritic // AppInfo is small and read-only
func (c *Classifier) Heuristic(app models.AppInfo) Result {
	// Only a positive category is trusted; plenty of games ship without one.
	if app.Category == models.CategoryGame {
		return found(true, ReasonCategory)
	}

	if app.Label != app.Package && c.matchKeyword(app.Label) {
		return found(true, ReasonLabel)
	}
	if c.matchKeyword(app.Package) {
		return found(true, ReasonPackage)
	}

	return found(false, ReasonDefault)
}
