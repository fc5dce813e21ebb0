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


// Package service wires the tracker, sync pipeline and API together and owns
// their lifecycle.
package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/ZaparooProject/playwatch/pkg/api"
	"github.com/ZaparooProject/playwatch/pkg/classifier"
	"github.com/ZaparooProject/playwatch/pkg/config"
	"github.com/ZaparooProject/playwatch/pkg/database/eventdb"
	"github.com/ZaparooProject/playwatch/pkg/foreground"
	"github.com/ZaparooProject/playwatch/pkg/helpers"
	"github.com/ZaparooProject/playwatch/pkg/helpers/command"
	"github.com/ZaparooProject/playwatch/pkg/models"
	"github.com/ZaparooProject/playwatch/pkg/overrides"
	"github.com/ZaparooProject/playwatch/pkg/service/broker"
	"github.com/ZaparooProject/playwatch/pkg/service/discovery"
	"github.com/ZaparooProject/playwatch/pkg/service/notifier"
	"github.com/ZaparooProject/playwatch/pkg/service/publishers"
	"github.com/ZaparooProject/playwatch/pkg/service/session"
	"github.com/ZaparooProject/playwatch/pkg/service/syncer"
	"github.com/ZaparooProject/playwatch/pkg/shared/httpclient"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

const notificationBuffer = 100

// Deps are the process-level dependencies. Zero values select the real
// implementations.
type Deps struct {
	Exec  command.Executor
	Fs    afero.Fs
	Clock clockwork.Clock
	// Notifier overrides the backend picked from config.
	Notifier notifier.Backend
	DataDir  string
	// APIAddr overrides the configured listen address.
	APIAddr string
}

func (d *Deps) defaults() {
	if d.Exec == nil {
		d.Exec = &command.RealExecutor{}
	}
	if d.Fs == nil {
		d.Fs = afero.NewOsFs()
	}
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.DataDir == "" {
		d.DataDir = helpers.DataDir()
	}
}

func newClassifier(cfg *config.Instance, store classifier.OverrideLookup) *classifier.Classifier {
	return classifier.New(classifier.Options{
		Overrides:     store,
		SelfPackage:   cfg.SelfPackage(),
		Ignore:        cfg.IgnoredPackages(),
		ExtraKeywords: cfg.ExtraKeywords(),
	})
}

// monitor starts and stops the tracker loop as monitor.enabled changes.
// Disabling closes any open session so time spent unmonitored is never
// counted.
type monitor struct {
	tracker *session.Tracker
	status  *notifier.Status
	cancel  context.CancelFunc
	parent  context.Context
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
}

func (m *monitor) apply(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case enabled && m.cancel == nil:
		ctx, cancel := context.WithCancel(m.parent)
		m.cancel = cancel
		m.done = make(chan struct{})
		m.status.Show("")
		m.wg.Add(1)
		go func(done chan struct{}) {
			defer m.wg.Done()
			defer close(done)
			m.tracker.Run(ctx)
		}(m.done)
		log.Info().Msg("monitoring started")
	case !enabled && m.cancel != nil:
		m.cancel()
		m.cancel = nil
		<-m.done
		m.tracker.End()
		m.status.Pause()
		log.Info().Msg("monitoring stopped")
	}
}

func (m *monitor) wait() {
	m.wg.Wait()
}

//nolint:gocritic // deps are copied so defaults can be filled in
func Start(cfg *config.Instance, deps Deps) (stop func() error, done <-chan struct{}, err error) {
	log.Info().Msgf("version: %s", config.AppVersion)
	deps.defaults()

	ctx, cancel := context.WithCancel(context.Background())
	cleanup := func(closers ...func() error) {
		cancel()
		for _, c := range closers {
			if closeErr := c(); closeErr != nil {
				log.Warn().Err(closeErr).Msg("error during startup cleanup")
			}
		}
	}

	if mkErr := os.MkdirAll(deps.DataDir, 0o750); mkErr != nil {
		cancel()
		return nil, nil, fmt.Errorf("failed to create data directory: %w", mkErr)
	}

	log.Info().Msg("opening databases")
	edb, err := eventdb.OpenEventDB(ctx, filepath.Join(deps.DataDir, config.EventsDbFile))
	if err != nil {
		cleanup(edb.Close)
		return nil, nil, fmt.Errorf("failed to open event database: %w", err)
	}
	store, err := overrides.Open(filepath.Join(deps.DataDir, config.OverridesDbFile))
	if err != nil {
		cleanup(edb.Close)
		return nil, nil, fmt.Errorf("failed to open override store: %w", err)
	}

	src, err := foreground.NewSource(cfg, deps.Exec, deps.Fs)
	if err != nil {
		cleanup(store.Close, edb.Close)
		return nil, nil, fmt.Errorf("failed to create foreground source: %w", err)
	}
	log.Info().Str("source", src.Name()).Msg("foreground source ready")

	ns := make(chan models.Notification, notificationBuffer)
	notifBroker := broker.NewBroker(ctx, ns)
	notifBroker.Start()

	pipeline := syncer.New(syncer.Options{
		Store:         edb,
		Sender:        httpclient.NewCollector(cfg, cfg.SyncTimeout()),
		Identity:      cfg,
		Notifications: ns,
		Workers:       cfg.SyncWorkers(),
		QueueSize:     cfg.SyncQueueSize(),
		FlushBatch:    cfg.FlushBatch(),
		FlushRate:     cfg.FlushRate(),
		Timeout:       cfg.SyncTimeout(),
	})

	backend := deps.Notifier
	if backend == nil {
		backend = notifier.NewBackend(cfg.DesktopNotifications())
	}
	status := notifier.New(backend)

	var cls atomic.Pointer[classifier.Classifier]
	cls.Store(newClassifier(cfg, store))

	tracker := session.New(session.Options{
		Oracle:        src,
		Resolver:      src,
		Classifier:    cls.Load(),
		Sink:          pipeline,
		Notifier:      status,
		Timings:       cfg,
		Clock:         deps.Clock,
		Notifications: ns,
	})

	mon := &monitor{tracker: tracker, status: status, parent: ctx}
	mon.apply(cfg.MonitorEnabled())

	if watchErr := cfg.Watch(ctx, func() {
		c := newClassifier(cfg, store)
		cls.Store(c)
		tracker.SetClassifier(c)
		mon.apply(cfg.MonitorEnabled())
	}); watchErr != nil {
		log.Warn().Err(watchErr).Msg("config watcher not started, changes need a restart")
	}

	if cfg.FlushOnStart() {
		go func() {
			if _, flushErr := pipeline.Flush(ctx); flushErr != nil {
				log.Warn().Err(flushErr).Msg("startup flush failed")
			}
		}()
	}

	log.Info().Msg("starting publishers")
	activePublishers := publishers.StartMQTTPublishers(cfg.GetMQTTPublishers(), cfg.DeviceID(), notifBroker)

	log.Info().Msg("starting API service")
	server := api.NewServer(api.Deps{
		Config:        cfg,
		Tracker:       tracker,
		Syncer:        pipeline,
		Overrides:     store,
		Resolver:      src,
		Events:        edb,
		Classifier:    func() api.Classifier { return cls.Load() },
		Notifications: ns,
		Broker:        notifBroker,
		Clock:         deps.Clock,
	})
	addr := deps.APIAddr
	if addr == "" {
		addr = cfg.APIListen()
	}
	apiDone := make(chan struct{})
	go func() {
		defer close(apiDone)
		if serveErr := server.ListenAndServe(ctx, addr); serveErr != nil {
			log.Error().Err(serveErr).Msg("api server stopped")
		}
	}()

	disc := discovery.New(cfg, deps.Clock)
	if discErr := disc.Start(ctx); discErr != nil {
		log.Error().Err(discErr).Msg("mDNS discovery failed to start (continuing without discovery)")
	}

	doneCh := make(chan struct{})
	go func() {
		<-ctx.Done()
		log.Info().Msg("service context cancelled, running cleanup")

		disc.Stop()
		mon.wait()
		<-apiDone
		pipeline.Stop()
		for _, p := range activePublishers {
			p.Stop()
		}
		<-notifBroker.Done()

		if closeErr := status.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("error closing notifier")
		}
		if closeErr := store.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("error closing override store")
		}
		if closeErr := edb.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("error closing event database")
		}

		log.Info().Msg("service cleanup completed")
		close(doneCh)
	}()

	stop = func() error {
		cancel()
		<-doneCh
		return nil
	}
	return stop, doneCh, nil
}
