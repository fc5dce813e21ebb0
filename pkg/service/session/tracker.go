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

// Package session turns foreground samples into START, HEARTBEAT and STOP
// events. Leaving a game only ends its session once the player has been
// away for the debounce window, so brief app switches don't split it.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/playwatch/pkg/classifier"
	"github.com/ZaparooProject/playwatch/pkg/models"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPollInterval = 4 * time.Second
	DefaultLookback     = 15 * time.Second
	DefaultDebounce     = 8 * time.Second
	DefaultHeartbeat    = 60 * time.Second

	minHeartbeatSeconds = 60
)

type Oracle interface {
	Sample(ctx context.Context, now time.Time, lookback time.Duration) (string, bool, error)
}

type Resolver interface {
	Resolve(ctx context.Context, pkg string) (models.AppInfo, error)
}

type Classifier interface {
	IsIgnored(pkg string) bool
	Classify(app models.AppInfo) classifier.Result
}

// Sink receives every emitted event. Submit must not block.
type Sink interface {
	Submit(ev models.GameEvent)
}

// Notifier is the user-visible status surface. An empty name clears it.
type Notifier interface {
	Show(name string)
}

// Timings is read at the start of every tick so config reloads take
// effect without a restart. PollInterval is only read by Run.
type Timings interface {
	PollInterval() time.Duration
	Lookback() time.Duration
	Debounce() time.Duration
	HeartbeatInterval() time.Duration
}

type Options struct {
	Oracle     Oracle
	Resolver   Resolver
	Classifier Classifier
	Sink       Sink
	Notifier   Notifier
	Timings    Timings
	Clock      clockwork.Clock
	// Notifications receives a copy of every event. Sends never block.
	Notifications chan<- models.Notification
}

type pendingStop struct {
	detectedAt time.Time
	pkg        string
}

type state struct {
	sessionStart  time.Time
	lastHeartbeat time.Time
	pending       *pendingStop
	current       string
	tracked       string
	trackedName   string
}

// Snapshot is a read-only view of the tracker for status reporting.
type Snapshot struct {
	SessionStart time.Time `json:"sessionStart,omitzero"`
	PendingSince time.Time `json:"pendingSince,omitzero"`
	Current      string    `json:"current"`
	Tracked      string    `json:"tracked"`
	TrackedName  string    `json:"trackedName"`
	PendingStop  bool      `json:"pendingStop"`
}

type Tracker struct {
	clock      clockwork.Clock
	oracle     Oracle
	resolver   Resolver
	classifier atomic.Pointer[classifierBox]
	sink       Sink
	notifier   Notifier
	timings    Timings
	notifCh    chan<- models.Notification
	snapshot   atomic.Pointer[Snapshot]
	st         state
	wg         sync.WaitGroup
	running    atomic.Bool
}

type classifierBox struct {
	c Classifier
}

//nolint:gocritic // options struct is read once
func New(opts Options) *Tracker {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	t := &Tracker{
		clock:    clock,
		oracle:   opts.Oracle,
		resolver: opts.Resolver,
		sink:     opts.Sink,
		notifier: opts.Notifier,
		timings:  opts.Timings,
		notifCh:  opts.Notifications,
	}
	t.classifier.Store(&classifierBox{c: opts.Classifier})
	t.snapshot.Store(&Snapshot{})
	return t
}

// SetClassifier swaps the classifier used from the next tick on.
func (t *Tracker) SetClassifier(c Classifier) {
	t.classifier.Store(&classifierBox{c: c})
}

// Snapshot returns the state as of the last completed tick.
func (t *Tracker) Snapshot() Snapshot {
	return *t.snapshot.Load()
}

func (t *Tracker) pollInterval() time.Duration {
	if t.timings == nil || t.timings.PollInterval() <= 0 {
		return DefaultPollInterval
	}
	return t.timings.PollInterval()
}

func (t *Tracker) lookback() time.Duration {
	if t.timings == nil || t.timings.Lookback() <= 0 {
		return DefaultLookback
	}
	return t.timings.Lookback()
}

func (t *Tracker) debounce() time.Duration {
	if t.timings == nil || t.timings.Debounce() <= 0 {
		return DefaultDebounce
	}
	return t.timings.Debounce()
}

func (t *Tracker) heartbeat() time.Duration {
	if t.timings == nil || t.timings.HeartbeatInterval() <= 0 {
		return DefaultHeartbeat
	}
	return t.timings.HeartbeatInterval()
}

// Run polls the oracle until ctx is cancelled, then waits for any tick
// still in progress.
func (t *Tracker) Run(ctx context.Context) {
	interval := t.pollInterval()
	ticker := t.clock.NewTicker(interval)
	defer ticker.Stop()
	defer t.wg.Wait()

	log.Info().Dur("interval", interval).Msg("session: tracker started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("session: tracker stopped")
			return
		case <-ticker.Chan():
			t.wg.Add(1)
			go func() {
				defer t.wg.Done()
				t.Tick(ctx)
			}()
		}
	}
}

// Tick runs one poll cycle. It returns false without doing anything if
// another tick is still running.
func (t *Tracker) Tick(ctx context.Context) (ran bool) {
	if !t.running.CompareAndSwap(false, true) {
		log.Debug().Msg("session: previous tick still running, skipping")
		return false
	}
	ran = true
	defer t.running.Store(false)
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("session: recovered from panic in tick")
		}
	}()

	t.tick(ctx)
	t.publishSnapshot()
	return ran
}

func (t *Tracker) tick(ctx context.Context) {
	now := t.clock.Now()

	pkg, ok, err := t.oracle.Sample(ctx, now, t.lookback())
	if err != nil {
		log.Warn().Err(err).Msg("session: foreground sample failed")
		return
	}
	if !ok {
		// nothing in front counts as leaving whatever was there
		t.st.current = ""
		t.depart(now)
		t.expirePending(now)
		return
	}

	cls := t.classifier.Load().c
	if cls.IsIgnored(pkg) {
		// the launcher and friends are never current, but being on them
		// still means the game is not in front
		t.depart(now)
		t.expirePending(now)
		return
	}

	if t.st.pending != nil {
		if pkg == t.st.pending.pkg {
			log.Debug().Str("package", pkg).Msg("session: returned to game, cancelling stop")
			t.st.pending = nil
		} else {
			t.expirePending(now)
		}
	}

	if pkg != t.st.current {
		t.changed(ctx, cls, now, pkg)
		return
	}

	if pkg == t.st.tracked && now.Sub(t.st.lastHeartbeat) >= t.heartbeat() {
		secs := max(minHeartbeatSeconds, int64(now.Sub(t.st.lastHeartbeat)/time.Second))
		t.emit(models.GameEvent{
			PackageID:       t.st.tracked,
			DisplayName:     t.st.trackedName,
			Status:          models.StatusHeartbeat,
			DurationSeconds: secs,
			StartTime:       t.st.sessionStart,
			EndTime:         now,
		})
		t.st.lastHeartbeat = now
	}
}

// depart marks the tracked game as a stop candidate. The first departure
// wins; later ones never move detectedAt.
func (t *Tracker) depart(now time.Time) {
	if t.st.tracked == "" || t.st.pending != nil {
		return
	}
	t.st.pending = &pendingStop{pkg: t.st.tracked, detectedAt: now}
	log.Debug().Str("package", t.st.tracked).Msg("session: left game, stop pending")
}

// expirePending confirms the pending stop once the debounce window has
// passed. The session ends at the moment the player left, not now.
func (t *Tracker) expirePending(now time.Time) {
	p := t.st.pending
	if p == nil || now.Sub(p.detectedAt) < t.debounce() {
		return
	}

	secs := max(0, int64(p.detectedAt.Sub(t.st.sessionStart)/time.Second))
	log.Info().Str("package", p.pkg).Int64("seconds", secs).Msg("session: confirmed stop")
	t.emit(models.GameEvent{
		PackageID:       p.pkg,
		DisplayName:     t.st.trackedName,
		Status:          models.StatusStop,
		DurationSeconds: secs,
		StartTime:       t.st.sessionStart,
		EndTime:         p.detectedAt,
	})
	t.clearSession()
	if t.st.current == p.pkg {
		// only ignored samples since the departure; coming back is a new session
		t.st.current = ""
	}
	t.show("")
}

func (t *Tracker) changed(ctx context.Context, cls Classifier, now time.Time, pkg string) {
	app, err := t.resolver.Resolve(ctx, pkg)
	var res classifier.Result
	if err != nil {
		log.Warn().Err(err).Str("package", pkg).Msg("session: app lookup failed")
		app = models.AppInfo{Package: pkg, Label: pkg}
		res = classifier.Unknown()
	} else {
		res = cls.Classify(app)
	}
	log.Debug().
		Str("from", t.st.current).
		Str("to", pkg).
		Bool("game", res.IsGame()).
		Str("reason", string(res.Reason)).
		Msg("session: foreground changed")
	t.st.current = pkg

	if !res.IsGame() {
		t.depart(now)
		return
	}

	if pkg == t.st.tracked {
		return
	}

	if t.st.tracked != "" {
		secs := max(0, int64(now.Sub(t.st.sessionStart)/time.Second))
		log.Info().Str("package", t.st.tracked).Str("next", pkg).Msg("session: switched games, stopping previous")
		t.emit(models.GameEvent{
			PackageID:       t.st.tracked,
			DisplayName:     t.st.trackedName,
			Status:          models.StatusStop,
			DurationSeconds: secs,
			StartTime:       t.st.sessionStart,
			EndTime:         now,
		})
		t.clearSession()
	}

	name := app.Label
	if name == "" {
		name = pkg
	}
	t.st.tracked = pkg
	t.st.trackedName = name
	t.st.sessionStart = now
	t.st.lastHeartbeat = now
	t.st.pending = nil

	log.Info().Str("package", pkg).Str("name", name).Msg("session: game started")
	t.emit(models.GameEvent{
		PackageID:   pkg,
		DisplayName: name,
		Status:      models.StatusStart,
		StartTime:   now,
		EndTime:     now,
	})
	t.show(name)
}

// End closes the open session as if the player left now, or when they
// first left if a stop is already pending, and forgets the foreground app.
// It must not be called while Run is active; it returns false if a tick is
// in progress.
func (t *Tracker) End() bool {
	if !t.running.CompareAndSwap(false, true) {
		return false
	}
	defer t.running.Store(false)

	if t.st.tracked != "" {
		end := t.clock.Now()
		if t.st.pending != nil {
			end = t.st.pending.detectedAt
		}
		secs := max(0, int64(end.Sub(t.st.sessionStart)/time.Second))
		log.Info().Str("package", t.st.tracked).Int64("seconds", secs).Msg("session: ending open session")
		t.emit(models.GameEvent{
			PackageID:       t.st.tracked,
			DisplayName:     t.st.trackedName,
			Status:          models.StatusStop,
			DurationSeconds: secs,
			StartTime:       t.st.sessionStart,
			EndTime:         end,
		})
		t.show("")
	}
	t.clearSession()
	t.st.current = ""
	t.publishSnapshot()
	return true
}

func (t *Tracker) clearSession() {
	t.st.tracked = ""
	t.st.trackedName = ""
	t.st.sessionStart = time.Time{}
	t.st.lastHeartbeat = time.Time{}
	t.st.pending = nil
}

func (t *Tracker) show(name string) {
	if t.notifier != nil {
		t.notifier.Show(name)
	}
}

//nolint:gocritic // event passed by value to keep it immutable
func (t *Tracker) emit(ev models.GameEvent) {
	if t.sink != nil {
		t.sink.Submit(ev)
	}
	if t.notifCh == nil {
		return
	}
	n, err := models.EventNotification(ev)
	if err != nil {
		log.Error().Err(err).Msg("session: failed to build event notification")
		return
	}
	select {
	case t.notifCh <- n:
	default:
		log.Debug().Str("method", n.Method).Msg("session: notification channel full, dropping")
	}
}

func (t *Tracker) publishSnapshot() {
	s := Snapshot{
		Current:      t.st.current,
		Tracked:      t.st.tracked,
		TrackedName:  t.st.trackedName,
		SessionStart: t.st.sessionStart,
	}
	if t.st.pending != nil {
		s.PendingStop = true
		s.PendingSince = t.st.pending.detectedAt
	}
	t.snapshot.Store(&s)
}
