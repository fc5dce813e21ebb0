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

// Package api serves the local HTTP interface used by companion UIs: read
// the tracker and backlog state, manage overrides, trigger a flush and
// follow live notifications over a websocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ZaparooProject/playwatch/pkg/api/middleware"
	"github.com/ZaparooProject/playwatch/pkg/classifier"
	"github.com/ZaparooProject/playwatch/pkg/config"
	"github.com/ZaparooProject/playwatch/pkg/database"
	"github.com/ZaparooProject/playwatch/pkg/models"
	"github.com/ZaparooProject/playwatch/pkg/overrides"
	"github.com/ZaparooProject/playwatch/pkg/service/session"
	"github.com/ZaparooProject/playwatch/pkg/service/syncer"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jonboulle/clockwork"
	"github.com/olahol/melody"
	"github.com/rs/zerolog/log"
)

const (
	wsBuffer        = 32
	shutdownTimeout = 5 * time.Second
)

var defaultOrigins = []string{"http://localhost:*", "http://127.0.0.1:*"}

type Tracker interface {
	Snapshot() session.Snapshot
}

type Syncer interface {
	Pending() (int, error)
	Flush(ctx context.Context) (syncer.FlushResult, error)
}

type OverrideStore interface {
	Get(pkg string) (overrides.Value, bool, error)
	Set(pkg string, value overrides.Value) error
	Clear(pkg string) error
	List() ([]overrides.Entry, error)
}

type Classifier interface {
	IsIgnored(pkg string) bool
	Classify(app models.AppInfo) classifier.Result
	Heuristic(app models.AppInfo) classifier.Result
}

type Resolver interface {
	Resolve(ctx context.Context, pkg string) (models.AppInfo, error)
}

type EventLog interface {
	GetEvents(lastID, limit int) ([]database.EventRecord, error)
}

type Subscriber interface {
	Subscribe(bufferSize int, methods ...string) (<-chan models.Notification, int)
	Unsubscribe(id int)
}

type Deps struct {
	Config    *config.Instance
	Tracker   Tracker
	Syncer    Syncer
	Overrides OverrideStore
	Resolver  Resolver
	Events    EventLog
	// Classifier returns the classifier currently in use; it is replaced
	// on config reload.
	Classifier func() Classifier
	// Notifications receives overrides.changed. Sends never block.
	Notifications chan<- models.Notification
	// Broker feeds the websocket. Optional.
	Broker Subscriber
	Clock  clockwork.Clock
}

type Server struct {
	deps    Deps
	ws      *melody.Melody
	limiter *middleware.IPRateLimiter
	guard   *middleware.WriteGuard
	router  chi.Router
}

//nolint:gocritic // deps struct is read once
func NewServer(d Deps) *Server {
	s := &Server{
		deps:    d,
		ws:      melody.New(),
		limiter: middleware.NewIPRateLimiter(d.Clock),
		guard:   middleware.NewWriteGuard(d.Config.AllowedIPs()),
	}
	s.ws.HandleMessage(handleWSMessage)
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	origins := s.deps.Config.AllowedOrigins()
	if len(origins) == 0 {
		origins = defaultOrigins
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.NoCache)
	r.Use(s.limiter.Middleware)
	r.Use(s.guard.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "PUT", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/api/ws", func(w http.ResponseWriter, r *http.Request) {
		if err := s.ws.HandleRequest(w, r); err != nil {
			log.Error().Err(err).Msg("api: websocket upgrade failed")
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(config.APIRequestTimeout))
		r.Get("/api/status", s.handleStatus)
		r.Get("/api/events", s.handleEvents)
		r.Get("/api/overrides", s.handleListOverrides)
		r.Get("/api/overrides/{package}", s.handleGetOverride)
		r.Put("/api/overrides/{package}", s.handleSetOverride)
		r.Delete("/api/overrides/{package}", s.handleClearOverride)
		r.Get("/api/classify/{package}", s.handleClassify)
		r.Post("/api/sync/flush", s.handleFlush)
	})

	return r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func handleWSMessage(session *melody.Session, msg []byte) {
	if string(msg) == "ping" {
		if err := session.Write([]byte("pong")); err != nil {
			log.Debug().Err(err).Msg("api: failed to send pong")
		}
	}
}

type wsMessage struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func (s *Server) broadcast(ctx context.Context, notifs <-chan models.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notifs:
			if !ok {
				return
			}
			data, err := json.Marshal(wsMessage{Method: n.Method, Params: n.Params})
			if err != nil {
				log.Error().Err(err).Msg("api: failed to marshal notification")
				continue
			}
			if err := s.ws.Broadcast(data); err != nil {
				log.Debug().Err(err).Msg("api: websocket broadcast failed")
			}
		}
	}
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.limiter.StartCleanup(ctx)
	if s.deps.Broker != nil {
		notifs, id := s.deps.Broker.Subscribe(wsBuffer)
		defer s.deps.Broker.Unsubscribe(id)
		go s.broadcast(ctx, notifs)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("api: listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.ws.Close(); err != nil {
		log.Debug().Err(err).Msg("api: error closing websockets")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown failed: %w", err)
	}
	log.Info().Msg("api: stopped")
	return nil
}
