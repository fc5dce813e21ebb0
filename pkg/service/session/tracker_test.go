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

package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ZaparooProject/playwatch/pkg/classifier"
	"github.com/ZaparooProject/playwatch/pkg/models"
	"github.com/ZaparooProject/playwatch/pkg/testing/mocks"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const (
	pubg     = "com.tencent.ig"
	clash    = "com.supercell.clashroyale"
	whatsapp = "com.whatsapp"
	launcher = "com.android.launcher"
)

var testApps = []models.AppInfo{
	{Package: pubg, Label: "PUBG MOBILE"},
	{Package: clash, Label: "Clash Royale"},
	{Package: whatsapp, Label: "WhatsApp"},
}

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type fixedTimings struct {
	poll      time.Duration
	lookback  time.Duration
	debounce  time.Duration
	heartbeat time.Duration
}

func (f fixedTimings) PollInterval() time.Duration      { return f.poll }
func (f fixedTimings) Lookback() time.Duration          { return f.lookback }
func (f fixedTimings) Debounce() time.Duration          { return f.debounce }
func (f fixedTimings) HeartbeatInterval() time.Duration { return f.heartbeat }

var defaultTimings = fixedTimings{
	poll:      DefaultPollInterval,
	lookback:  DefaultLookback,
	debounce:  DefaultDebounce,
	heartbeat: DefaultHeartbeat,
}

type recorder struct {
	events []models.GameEvent
	mu     sync.Mutex
}

func (r *recorder) Submit(ev models.GameEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []models.GameEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.GameEvent(nil), r.events...)
}

func (r *recorder) statuses() []models.Status {
	var out []models.Status
	for _, ev := range r.all() {
		out = append(out, ev.Status)
	}
	return out
}

type harness struct {
	clock    *clockwork.FakeClock
	fg       *mocks.FakeForeground
	sink     *recorder
	notifier *mocks.MockNotifier
	tracker  *Tracker
	elapsed  time.Duration
}

func newHarness(tb testing.TB) *harness {
	tb.Helper()
	h := &harness{
		clock:    clockwork.NewFakeClockAt(t0),
		fg:       mocks.NewFakeForeground(testApps...),
		sink:     &recorder{},
		notifier: mocks.NewMockNotifier(),
	}
	h.tracker = New(Options{
		Oracle:     h.fg,
		Resolver:   h.fg,
		Classifier: classifier.New(classifier.Options{SelfPackage: "io.playwatch"}),
		Sink:       h.sink,
		Notifier:   h.notifier,
		Timings:    defaultTimings,
		Clock:      h.clock,
	})
	return h
}

// at moves the clock to t0+secs and ticks with pkg in the foreground.
func (h *harness) at(secs int, pkg string) {
	target := time.Duration(secs) * time.Second
	if target > h.elapsed {
		h.clock.Advance(target - h.elapsed)
		h.elapsed = target
	}
	h.fg.Set(pkg)
	h.tracker.Tick(context.Background())
}

// span ticks every step seconds over [from, to).
func (h *harness) span(from, to, step int, pkg string) {
	for s := from; s < to; s += step {
		h.at(s, pkg)
	}
}

func TestPUBGScenario(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.span(0, 70, 2, pubg)
	h.at(70, launcher)
	h.span(72, 112, 2, pubg)
	h.span(112, 200, 2, "")

	evs := h.sink.all()
	require.Equal(t, []models.Status{
		models.StatusStart, models.StatusHeartbeat, models.StatusStop,
	}, h.sink.statuses())

	assert.Equal(t, t0, evs[0].StartTime)
	assert.Equal(t, "PUBG MOBILE", evs[0].DisplayName)
	assert.Equal(t, int64(0), evs[0].DurationSeconds)

	assert.Equal(t, t0.Add(60*time.Second), evs[1].EndTime)
	assert.Equal(t, int64(60), evs[1].DurationSeconds)

	stop := evs[2]
	assert.Equal(t, pubg, stop.PackageID)
	assert.Equal(t, t0, stop.StartTime)
	assert.Equal(t, t0.Add(112*time.Second), stop.EndTime)
	assert.Equal(t, int64(112), stop.DurationSeconds)
	assert.Equal(t, int64(1), models.WireMinutes(stop.Status, stop.DurationSeconds))

	assert.Equal(t, []string{"PUBG MOBILE", ""}, h.notifier.Shown())
	assert.Empty(t, h.tracker.Snapshot().Tracked)
}

func TestNoFalseStopBelowDebounce(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.span(0, 20, 4, pubg)
	h.span(20, 28, 4, whatsapp)
	assert.True(t, h.tracker.Snapshot().PendingStop)

	h.span(28, 40, 4, pubg)

	assert.Equal(t, []models.Status{models.StatusStart}, h.sink.statuses())
	snap := h.tracker.Snapshot()
	assert.Equal(t, pubg, snap.Tracked)
	assert.False(t, snap.PendingStop)
	assert.Equal(t, t0, snap.SessionStart)
}

func TestStopConfirmedAfterDebounce(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.span(0, 30, 4, pubg)
	h.at(30, whatsapp)
	h.at(34, whatsapp)
	assert.Len(t, h.sink.all(), 1)

	h.at(38, whatsapp)
	evs := h.sink.all()
	require.Len(t, evs, 2)
	assert.Equal(t, models.StatusStop, evs[1].Status)
	assert.Equal(t, t0.Add(30*time.Second), evs[1].EndTime)
	assert.Equal(t, int64(30), evs[1].DurationSeconds)
}

func TestFirstDepartureWins(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.at(0, pubg)
	h.at(10, whatsapp)
	h.at(14, "com.android.chrome")
	h.at(18, "com.android.chrome")

	evs := h.sink.all()
	require.Len(t, evs, 2)
	assert.Equal(t, t0.Add(10*time.Second), evs[1].EndTime)
	assert.Equal(t, int64(10), evs[1].DurationSeconds)
}

func TestSwitchGameWithPendingStop(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.at(0, pubg)
	h.at(20, whatsapp)
	h.at(24, clash)

	evs := h.sink.all()
	require.Len(t, evs, 3)
	assert.Equal(t, models.StatusStop, evs[1].Status)
	assert.Equal(t, pubg, evs[1].PackageID)
	assert.Equal(t, t0.Add(24*time.Second), evs[1].EndTime)
	assert.Equal(t, int64(24), evs[1].DurationSeconds)

	assert.Equal(t, models.StatusStart, evs[2].Status)
	assert.Equal(t, clash, evs[2].PackageID)
	assert.Equal(t, "Clash Royale", evs[2].DisplayName)
	assert.False(t, h.tracker.Snapshot().PendingStop)
}

func TestDirectSwitchStopsPreviousGame(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.at(0, pubg)
	h.at(40, clash)

	assert.Equal(t, []models.Status{
		models.StatusStart, models.StatusStop, models.StatusStart,
	}, h.sink.statuses())
	evs := h.sink.all()
	assert.Equal(t, t0.Add(40*time.Second), evs[1].EndTime)
	assert.Equal(t, []string{"PUBG MOBILE", "Clash Royale"}, h.notifier.Shown())
}

func TestIgnoredSampleWithoutSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.at(0, whatsapp)
	before := h.tracker.Snapshot()
	h.at(4, launcher)
	h.at(8, "com.android.systemui")
	h.at(12, "io.playwatch")

	assert.Equal(t, before, h.tracker.Snapshot())
	assert.Empty(t, h.sink.all())
	assert.Empty(t, h.notifier.Shown())
}

func TestIgnoredSampleLeavesCurrent(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.at(0, pubg)
	h.at(4, launcher)

	snap := h.tracker.Snapshot()
	assert.Equal(t, pubg, snap.Current)
	assert.Equal(t, pubg, snap.Tracked)
	assert.True(t, snap.PendingStop)
	assert.Equal(t, t0.Add(4*time.Second), snap.PendingSince)

	h.at(8, pubg)
	assert.False(t, h.tracker.Snapshot().PendingStop)
	assert.Equal(t, []models.Status{models.StatusStart}, h.sink.statuses())
}

func TestExitToLauncherConfirmsStop(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.span(0, 24, 4, pubg)
	h.span(24, 600, 4, launcher)

	evs := h.sink.all()
	require.Equal(t, []models.Status{models.StatusStart, models.StatusStop}, h.sink.statuses())
	assert.Equal(t, t0.Add(24*time.Second), evs[1].EndTime)
	assert.Equal(t, int64(24), evs[1].DurationSeconds)
	assert.Equal(t, []string{"PUBG MOBILE", ""}, h.notifier.Shown())

	snap := h.tracker.Snapshot()
	assert.Empty(t, snap.Tracked)
	assert.Empty(t, snap.Current)
	assert.False(t, snap.PendingStop)
}

func TestPendingStopExpiresOnLauncher(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.span(0, 24, 4, pubg)
	h.at(24, whatsapp)
	h.span(28, 300, 4, launcher)

	evs := h.sink.all()
	require.Equal(t, []models.Status{models.StatusStart, models.StatusStop}, h.sink.statuses())
	// first departure wins over the later launcher samples
	assert.Equal(t, t0.Add(24*time.Second), evs[1].EndTime)
	assert.False(t, h.tracker.Snapshot().PendingStop)
}

func TestReturnAfterLauncherStopStartsNewSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.at(0, pubg)
	h.span(4, 20, 4, launcher)
	h.at(20, pubg)

	evs := h.sink.all()
	require.Equal(t, []models.Status{
		models.StatusStart, models.StatusStop, models.StatusStart,
	}, h.sink.statuses())
	assert.Equal(t, t0.Add(4*time.Second), evs[1].EndTime)
	assert.Equal(t, t0.Add(20*time.Second), evs[2].StartTime)
	assert.Equal(t, pubg, h.tracker.Snapshot().Tracked)
}

func TestSampleErrorSkipsTick(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.at(0, pubg)
	h.fg.SetSampleError(errors.New("permission revoked"))
	h.at(30, whatsapp)
	h.at(60, whatsapp)
	h.fg.SetSampleError(nil)

	assert.Len(t, h.sink.all(), 1)
	assert.False(t, h.tracker.Snapshot().PendingStop)

	// the session survives and heartbeats on the next good sample
	h.at(64, pubg)
	assert.Equal(t, []models.Status{models.StatusStart, models.StatusHeartbeat}, h.sink.statuses())
}

func TestResolveErrorIsNotAGame(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.fg.SetResolveError(errors.New("no such package"))
	h.at(0, "com.example.racinggame")

	assert.Empty(t, h.sink.all())
	assert.Equal(t, "com.example.racinggame", h.tracker.Snapshot().Current)
}

func TestResumeDoesNotRestartSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.at(0, pubg)
	h.at(30, whatsapp)
	h.at(32, pubg)
	h.at(60, pubg)

	assert.Equal(t, []models.Status{models.StatusStart, models.StatusHeartbeat}, h.sink.statuses())
	evs := h.sink.all()
	assert.Equal(t, t0, evs[1].StartTime)
}

func TestHeartbeatDurationSinceLastHeartbeat(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.at(0, pubg)
	h.at(90, pubg)
	h.at(152, pubg)

	evs := h.sink.all()
	require.Len(t, evs, 3)
	assert.Equal(t, int64(90), evs[1].DurationSeconds)
	assert.Equal(t, int64(62), evs[2].DurationSeconds)
	assert.Equal(t, t0, evs[2].StartTime)
}

func TestNotificationsFanOut(t *testing.T) {
	t.Parallel()

	ch := make(chan models.Notification, 1)
	fg := mocks.NewFakeForeground(testApps...)
	clock := clockwork.NewFakeClockAt(t0)
	tr := New(Options{
		Oracle:        fg,
		Resolver:      fg,
		Classifier:    classifier.New(classifier.Options{}),
		Timings:       defaultTimings,
		Clock:         clock,
		Notifications: ch,
	})

	fg.Set(pubg)
	tr.Tick(context.Background())
	clock.Advance(time.Minute)
	// channel is full now; this must not block
	tr.Tick(context.Background())

	n := <-ch
	assert.Equal(t, models.NotificationGameStarted, n.Method)
	assert.Contains(t, string(n.Params), `"packageId":"com.tencent.ig"`)
}

type blockingOracle struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingOracle) Sample(context.Context, time.Time, time.Duration) (string, bool, error) {
	b.entered <- struct{}{}
	<-b.release
	return "", false, nil
}

func TestTickSingleFlight(t *testing.T) {
	t.Parallel()

	o := &blockingOracle{entered: make(chan struct{}), release: make(chan struct{})}
	tr := New(Options{Oracle: o, Classifier: classifier.New(classifier.Options{}), Clock: clockwork.NewFakeClock()})

	done := make(chan bool)
	go func() { done <- tr.Tick(context.Background()) }()
	<-o.entered

	assert.False(t, tr.Tick(context.Background()))

	close(o.release)
	assert.True(t, <-done)
}

type panicClassifier struct{}

func (panicClassifier) IsIgnored(string) bool { return false }

func (panicClassifier) Classify(models.AppInfo) classifier.Result {
	panic("boom")
}

func TestTickRecoversPanic(t *testing.T) {
	t.Parallel()

	fg := mocks.NewFakeForeground()
	fg.Set(pubg)
	tr := New(Options{Oracle: fg, Resolver: fg, Classifier: panicClassifier{}, Clock: clockwork.NewFakeClock()})

	assert.NotPanics(t, func() {
		assert.True(t, tr.Tick(context.Background()))
	})
	// the next tick still runs
	assert.True(t, tr.Tick(context.Background()))
}

func TestSetClassifier(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.at(0, "com.example.notes")
	assert.Empty(t, h.sink.all())

	h.tracker.SetClassifier(&stubClassifier{games: map[string]bool{"com.example.notes": true}})
	h.at(4, whatsapp)
	h.at(8, "com.example.notes")

	assert.Equal(t, []models.Status{models.StatusStart}, h.sink.statuses())
}

type stubClassifier struct {
	games map[string]bool
}

func (*stubClassifier) IsIgnored(pkg string) bool { return pkg == "" }

func (s *stubClassifier) Classify(app models.AppInfo) classifier.Result {
	if s.games[app.Package] {
		return classifier.Result{Game: true, Known: true, Reason: classifier.ReasonOverride}
	}
	return classifier.Result{Known: true, Reason: classifier.ReasonDefault}
}

func TestRunPollsOnTicker(t *testing.T) {
	t.Parallel()

	fg := mocks.NewFakeForeground(testApps...)
	fg.Set(pubg)
	clock := clockwork.NewFakeClockAt(t0)
	sink := &recorder{}
	tr := New(Options{
		Oracle:     fg,
		Resolver:   fg,
		Classifier: classifier.New(classifier.Options{}),
		Sink:       sink,
		Timings:    defaultTimings,
		Clock:      clock,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tr.Run(ctx)
		close(done)
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(DefaultPollInterval)
	require.Eventually(t, func() bool { return len(sink.all()) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestHeartbeatCadenceProperty(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		ticks := rapid.IntRange(1, 200).Draw(rt, "ticks")
		h := newHarness(t)
		h.span(0, ticks*4+1, 4, pubg)

		d := ticks * 4
		want := d / 60
		got := 0
		for _, ev := range h.sink.all() {
			if ev.Status == models.StatusHeartbeat {
				got++
				if ev.DurationSeconds != 60 {
					rt.Fatalf("heartbeat duration %d, want 60", ev.DurationSeconds)
				}
			}
		}
		if got != want {
			rt.Fatalf("D=%ds: %d heartbeats, want %d", d, got, want)
		}
	})
}

// Every START is eventually matched by exactly one STOP for the same
// package, and sessions never overlap.
func TestSessionPairingProperty(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		h := newHarness(t)
		pkgs := []string{pubg, clash, whatsapp, launcher, "com.android.systemui", "io.playwatch", ""}
		steps := rapid.SliceOfN(rapid.SampledFrom(pkgs), 1, 80).Draw(rt, "samples")
		gaps := rapid.SliceOfN(rapid.IntRange(1, 20), len(steps), len(steps)).Draw(rt, "gaps")

		now := 0
		for i, pkg := range steps {
			h.at(now, pkg)
			now += gaps[i]
		}
		// parking on nothing or on an ignored app long enough confirms
		// whatever is still open
		idle := rapid.SampledFrom([]string{"", launcher, "com.android.systemui"}).Draw(rt, "idle")
		h.at(now, idle)
		h.at(now+int(DefaultDebounce/time.Second), idle)

		open := ""
		for _, ev := range h.sink.all() {
			switch ev.Status {
			case models.StatusStart:
				if open != "" {
					rt.Fatalf("START %s while %s still open", ev.PackageID, open)
				}
				open = ev.PackageID
			case models.StatusHeartbeat:
				if ev.PackageID != open {
					rt.Fatalf("HEARTBEAT for %s, open session %q", ev.PackageID, open)
				}
			case models.StatusStop:
				if ev.PackageID != open {
					rt.Fatalf("STOP for %s, open session %q", ev.PackageID, open)
				}
				if ev.DurationSeconds < 0 || ev.EndTime.Before(ev.StartTime) {
					rt.Fatalf("bad STOP timing: %+v", ev)
				}
				open = ""
			}
		}
		if open != "" {
			rt.Fatalf("session %s never stopped", open)
		}
	})
}

func TestEndClosesOpenSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.span(0, 32, 4, pubg)
	require.True(t, h.tracker.End())

	evs := h.sink.all()
	require.Equal(t, []models.Status{models.StatusStart, models.StatusStop}, h.sink.statuses())
	assert.Equal(t, t0.Add(28*time.Second), evs[1].EndTime)
	assert.Equal(t, int64(28), evs[1].DurationSeconds)
	assert.Equal(t, []string{"PUBG MOBILE", ""}, h.notifier.Shown())
	assert.Equal(t, Snapshot{}, h.tracker.Snapshot())

	require.True(t, h.tracker.End())
	assert.Len(t, h.sink.all(), 2)
}

func TestEndUsesPendingDeparture(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.at(0, pubg)
	h.at(20, whatsapp)
	h.at(24, whatsapp)
	require.True(t, h.tracker.End())

	evs := h.sink.all()
	require.Len(t, evs, 2)
	assert.Equal(t, t0.Add(20*time.Second), evs[1].EndTime)
	assert.Equal(t, int64(20), evs[1].DurationSeconds)
}

func TestEndThenResumeStartsFresh(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.at(0, pubg)
	require.True(t, h.tracker.End())
	h.at(300, pubg)
	h.at(360, pubg)

	evs := h.sink.all()
	require.Equal(t, []models.Status{
		models.StatusStart, models.StatusStop, models.StatusStart, models.StatusHeartbeat,
	}, h.sink.statuses())
	assert.Equal(t, t0.Add(300*time.Second), evs[2].StartTime)
	// nothing from the unmonitored gap leaks into the new session
	assert.Equal(t, int64(60), evs[3].DurationSeconds)
}
