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

// Package syncer delivers game events to the collector without ever
// blocking the session tracker. Every event is written to the local log
// before delivery is attempted, so anything that fails to send is picked up
// by a later flush.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ZaparooProject/playwatch/pkg/database"
	"github.com/ZaparooProject/playwatch/pkg/helpers/syncutil"
	"github.com/ZaparooProject/playwatch/pkg/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	DefaultWorkers   = 2
	DefaultQueueSize = 64
	DefaultBatch     = 20
	DefaultTimeout   = 10 * time.Second

	flushKey = "flush"
)

// Sender makes one delivery attempt to the collector.
type Sender interface {
	Send(ctx context.Context, ev models.GameEvent) error
}

// Identity supplies the user and device stamped on each event. It is read
// per event so config reloads apply immediately.
type Identity interface {
	SyncUserID() string
	SyncDeviceID() string
}

type Options struct {
	Store    database.EventStore
	Sender   Sender
	Identity Identity
	// Notifications receives sync.flushed messages. Sends never block.
	Notifications chan<- models.Notification
	Workers       int
	QueueSize     int
	FlushBatch    int
	// FlushRate caps backlog deliveries per second. Zero or less disables
	// pacing.
	FlushRate float64
	Timeout   time.Duration
}

// FlushResult reports what a single flush did.
type FlushResult struct {
	Attempted int `json:"attempted"`
	Delivered int `json:"delivered"`
}

type Pipeline struct {
	store    database.EventStore
	sender   Sender
	identity Identity
	notifCh  chan<- models.Notification
	queue    chan models.GameEvent
	group    *errgroup.Group
	limiter  *rate.Limiter
	inflight map[int64]struct{}
	flushCtx context.Context
	cancel   context.CancelFunc
	flights  singleflight.Group
	batch    int
	timeout  time.Duration
	// claimMu covers insert+claim in a worker so a concurrent flush can't
	// pick up a record between the two.
	claimMu syncutil.Mutex
	qMu     syncutil.RWMutex
	// side holds overflow writes and flush runs; both are only added to
	// under qMu while not stopped
	side    sync.WaitGroup
	stopped bool
	stopOne sync.Once
}

// New starts the worker pool. Call Stop to drain it.
//
//nolint:gocritic // options struct is read once
func New(opts Options) *Pipeline {
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	qSize := opts.QueueSize
	if qSize <= 0 {
		qSize = DefaultQueueSize
	}
	batch := opts.FlushBatch
	if batch <= 0 {
		batch = DefaultBatch
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	limit := rate.Inf
	if opts.FlushRate > 0 {
		limit = rate.Limit(opts.FlushRate)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		store:    opts.Store,
		sender:   opts.Sender,
		identity: opts.Identity,
		notifCh:  opts.Notifications,
		queue:    make(chan models.GameEvent, qSize),
		group:    &errgroup.Group{},
		limiter:  rate.NewLimiter(limit, 1),
		inflight: make(map[int64]struct{}),
		flushCtx: ctx,
		cancel:   cancel,
		batch:    batch,
		timeout:  timeout,
	}

	log.Info().Int("workers", workers).Int("queue", qSize).Msg("syncer: starting worker pool")
	for i := range workers {
		p.group.Go(func() error {
			p.worker(i)
			return nil
		})
	}
	return p
}

// Submit hands ev to the pipeline and returns immediately. When the queue
// is full the event is written to the local log unsynced in the background
// instead of waiting for a worker. After Stop the write happens inline.
//
//nolint:gocritic // event passed by value to keep it immutable
func (p *Pipeline) Submit(ev models.GameEvent) {
	ev = p.stamp(ev)

	p.qMu.RLock()
	if !p.stopped {
		select {
		case p.queue <- ev:
			p.qMu.RUnlock()
			return
		default:
		}
		p.side.Add(1)
		p.qMu.RUnlock()
		go func() {
			defer p.side.Done()
			p.spill(ev)
		}()
		return
	}
	p.qMu.RUnlock()

	p.spill(ev)
}

//nolint:gocritic // event passed by value to keep it immutable
func (p *Pipeline) spill(ev models.GameEvent) {
	log.Warn().Str("package", ev.PackageID).Str("status", string(ev.Status)).
		Msg("syncer: queue unavailable, storing event for later flush")
	rec := database.RecordFromEvent(ev)
	if _, err := p.store.AddEvent(&rec); err != nil {
		log.Error().Err(err).Msg("syncer: failed to persist overflow event")
	}
}

//nolint:gocritic // event passed by value to keep it immutable
func (p *Pipeline) stamp(ev models.GameEvent) models.GameEvent {
	if p.identity == nil {
		return ev
	}
	if ev.UserID == "" {
		ev.UserID = p.identity.SyncUserID()
	}
	if ev.DeviceID == "" {
		ev.DeviceID = p.identity.SyncDeviceID()
	}
	return ev
}

func (p *Pipeline) worker(id int) {
	log.Debug().Int("worker_id", id).Msg("syncer: worker started")
	for ev := range p.queue {
		p.process(ev)
	}
	log.Debug().Int("worker_id", id).Msg("syncer: worker stopped")
}

//nolint:gocritic // event passed by value to keep it immutable
func (p *Pipeline) process(ev models.GameEvent) {
	rec := database.RecordFromEvent(ev)

	p.claimMu.Lock()
	dbid, err := p.store.AddEvent(&rec)
	persisted := err == nil
	if persisted {
		p.inflight[dbid] = struct{}{}
	}
	p.claimMu.Unlock()

	if !persisted {
		// still deliver; the event only lives in memory now
		log.Error().Err(err).Str("package", ev.PackageID).Msg("syncer: failed to persist event")
	}

	delivered := p.deliver(ev)
	if persisted {
		if delivered {
			p.markSynced(dbid)
		}
		p.release(dbid)
	}

	if delivered {
		if _, err := p.Flush(p.flushCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Msg("syncer: backlog flush failed")
		}
	}
}

//nolint:gocritic // event passed by value to keep it immutable
func (p *Pipeline) deliver(ev models.GameEvent) bool {
	// detached from shutdown so an attempt already started is never cut short
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.sender.Send(ctx, ev); err != nil {
		log.Warn().Err(err).
			Str("package", ev.PackageID).
			Str("status", string(ev.Status)).
			Msg("syncer: delivery failed, leaving event unsynced")
		return false
	}
	log.Debug().Str("package", ev.PackageID).Str("status", string(ev.Status)).Msg("syncer: event delivered")
	return true
}

func (p *Pipeline) markSynced(dbid int64) {
	changed, err := p.store.MarkSynced(dbid)
	if err != nil {
		log.Error().Err(err).Int64("id", dbid).Msg("syncer: failed to mark event synced")
		return
	}
	if !changed {
		log.Debug().Int64("id", dbid).Msg("syncer: event was already synced")
	}
}

func (p *Pipeline) claim(dbid int64) bool {
	p.claimMu.Lock()
	defer p.claimMu.Unlock()
	if _, ok := p.inflight[dbid]; ok {
		return false
	}
	p.inflight[dbid] = struct{}{}
	return true
}

func (p *Pipeline) release(dbid int64) {
	p.claimMu.Lock()
	delete(p.inflight, dbid)
	p.claimMu.Unlock()
}

// Flush delivers up to one batch of unsynced records. Concurrent callers
// share a single run, which belongs to the pipeline: cancelling ctx only
// stops this caller from waiting for it.
func (p *Pipeline) Flush(ctx context.Context) (FlushResult, error) {
	if err := ctx.Err(); err != nil {
		return FlushResult{}, err //nolint:wrapcheck // context error
	}

	ch := p.flights.DoChan(flushKey, func() (any, error) {
		p.qMu.RLock()
		if p.stopped {
			p.qMu.RUnlock()
			return FlushResult{}, context.Canceled
		}
		p.side.Add(1)
		p.qMu.RUnlock()
		defer p.side.Done()
		return p.runFlush(p.flushCtx)
	})

	select {
	case <-ctx.Done():
		return FlushResult{}, ctx.Err() //nolint:wrapcheck // context error
	case r := <-ch:
		res, _ := r.Val.(FlushResult)
		return res, r.Err //nolint:wrapcheck // wrapped by runFlush
	}
}

func (p *Pipeline) runFlush(ctx context.Context) (FlushResult, error) {
	var res FlushResult

	recs, err := p.store.GetUnsynced(p.batch)
	if err != nil {
		return res, fmt.Errorf("failed to read backlog: %w", err)
	}

	for i := range recs {
		rec := &recs[i]
		if !p.claim(rec.DBID) {
			continue
		}
		if err := p.limiter.Wait(ctx); err != nil {
			p.release(rec.DBID)
			p.notifyFlushed(res)
			return res, err //nolint:wrapcheck // context error
		}

		res.Attempted++
		if p.deliver(rec.Event()) {
			res.Delivered++
			p.markSynced(rec.DBID)
		}
		p.release(rec.DBID)
	}

	if res.Attempted > 0 {
		log.Info().Int("attempted", res.Attempted).Int("delivered", res.Delivered).
			Msg("syncer: flushed backlog")
	}
	p.notifyFlushed(res)
	return res, nil
}

func (p *Pipeline) notifyFlushed(res FlushResult) {
	if p.notifCh == nil || res.Attempted == 0 {
		return
	}
	n, err := models.NewNotification(models.NotificationSyncFlushed, models.SyncFlushedParams{
		Attempted: res.Attempted,
		Delivered: res.Delivered,
	})
	if err != nil {
		log.Error().Err(err).Msg("syncer: failed to build flush notification")
		return
	}
	select {
	case p.notifCh <- n:
	default:
		log.Debug().Msg("syncer: notification channel full, dropping flush notification")
	}
}

// Pending returns how many records are still waiting for delivery.
func (p *Pipeline) Pending() (int, error) {
	n, err := p.store.CountUnsynced()
	if err != nil {
		return 0, fmt.Errorf("failed to count backlog: %w", err)
	}
	return n, nil
}

// Stop drains the queue, cancels any in-progress backlog flush and waits
// for the workers and background writes to finish. Events submitted after
// Stop are stored for a later flush.
func (p *Pipeline) Stop() {
	p.stopOne.Do(func() {
		p.qMu.Lock()
		p.stopped = true
		close(p.queue)
		p.qMu.Unlock()

		p.cancel()
		_ = p.group.Wait()
		p.side.Wait()
		log.Info().Msg("syncer: stopped")
	})
}
