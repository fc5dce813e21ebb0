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

// Package broker fans tracker and pipeline notifications out to any number
// of consumers (websocket clients, MQTT publishers). A slow consumer only
// loses its own messages.
package broker

import (
	"context"
	"slices"
	"sync/atomic"

	"github.com/ZaparooProject/playwatch/pkg/helpers/syncutil"
	"github.com/ZaparooProject/playwatch/pkg/models"
	"github.com/rs/zerolog/log"
)

type subscriber struct {
	ch      chan models.Notification
	methods []string
}

func (s *subscriber) wants(method string) bool {
	return len(s.methods) == 0 || slices.Contains(s.methods, method)
}

type Broker struct {
	ctx     context.Context
	source  <-chan models.Notification
	subs    map[int]*subscriber
	done    chan struct{}
	dropped atomic.Uint64
	mu      syncutil.RWMutex
	nextID  int
	closed  bool
}

// NewBroker reads from source once Start is called.
func NewBroker(ctx context.Context, source <-chan models.Notification) *Broker {
	return &Broker{
		ctx:    ctx,
		source: source,
		subs:   make(map[int]*subscriber),
		done:   make(chan struct{}),
	}
}

// Start runs the fan-out loop until source closes or ctx is cancelled.
// Every subscriber channel is closed on exit.
func (b *Broker) Start() {
	go func() {
		defer close(b.done)
		defer b.closeAll()
		for {
			select {
			case n, ok := <-b.source:
				if !ok {
					log.Debug().Msg("broker: source closed")
					return
				}
				b.broadcast(n)
			case <-b.ctx.Done():
				log.Debug().Msg("broker: context cancelled")
				return
			}
		}
	}()
}

// Done is closed once the fan-out loop has exited.
func (b *Broker) Done() <-chan struct{} {
	return b.done
}

// Dropped counts deliveries skipped because a subscriber was full.
func (b *Broker) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *Broker) broadcast(n models.Notification) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, s := range b.subs {
		if !s.wants(n.Method) {
			continue
		}
		select {
		case s.ch <- n:
		default:
			b.dropped.Add(1)
			log.Warn().Int("subscriber_id", id).Str("method", n.Method).
				Msg("broker: subscriber full, dropping notification")
		}
	}
}

// Subscribe registers a consumer. With no methods it receives everything;
// otherwise only the listed notification methods. Subscribing after the
// broker has shut down returns an already closed channel.
func (b *Broker) Subscribe(bufferSize int, methods ...string) (<-chan models.Notification, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan models.Notification, bufferSize)
	id := b.nextID
	b.nextID++
	if b.closed {
		close(ch)
		return ch, id
	}

	b.subs[id] = &subscriber{ch: ch, methods: slices.Clone(methods)}
	log.Debug().Int("subscriber_id", id).Int("buffer", bufferSize).Strs("methods", methods).
		Msg("broker: subscriber added")
	return ch, id
}

// Unsubscribe closes the consumer's channel. Unknown ids are ignored.
func (b *Broker) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(s.ch)
	log.Debug().Int("subscriber_id", id).Msg("broker: subscriber removed")
}

func (b *Broker) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, s := range b.subs {
		close(s.ch)
		delete(b.subs, id)
	}
	b.closed = true
}
