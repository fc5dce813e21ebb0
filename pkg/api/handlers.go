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

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/ZaparooProject/playwatch/pkg/api/validation"
	"github.com/ZaparooProject/playwatch/pkg/config"
	"github.com/ZaparooProject/playwatch/pkg/database"
	"github.com/ZaparooProject/playwatch/pkg/models"
	"github.com/ZaparooProject/playwatch/pkg/overrides"
	"github.com/ZaparooProject/playwatch/pkg/service/session"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 4 << 10

type ErrorResponse struct {
	Error  string                  `json:"error"`
	Fields []validation.FieldError `json:"fields,omitempty"`
}

type StatusResponse struct {
	Session    session.Snapshot `json:"session"`
	Version    string           `json:"version"`
	Source     string           `json:"source"`
	Pending    int              `json:"pending"`
	Monitoring bool             `json:"monitoring"`
}

type EventsResponse struct {
	Events []database.EventRecord `json:"events"`
}

type OverrideRequest struct {
	Value string `json:"value" validate:"required,oneof=game app"`
}

type ClassifyResponse struct {
	Package    string `json:"package"`
	Label      string `json:"label"`
	Category   string `json:"category"`
	Override   string `json:"override,omitempty"`
	Reason     string `json:"reason"`
	AutoIsGame bool   `json:"autoIsGame"`
	IsGame     bool   `json:"isGame"`
	Ignored    bool   `json:"ignored"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("api: failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := ErrorResponse{Error: err.Error()}
	var verr *validation.Error
	if errors.As(err, &verr) {
		resp.Fields = verr.Fields
	}
	writeJSON(w, status, resp)
}

func pathPackage(w http.ResponseWriter, r *http.Request) (string, bool) {
	pkg := chi.URLParam(r, "package")
	if err := validation.DefaultValidator.Package(pkg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return "", false
	}
	return pkg, true
}

func (s *Server) notify(method string, params any) {
	if s.deps.Notifications == nil {
		return
	}
	n, err := models.NewNotification(method, params)
	if err != nil {
		log.Error().Err(err).Str("method", method).Msg("api: failed to build notification")
		return
	}
	select {
	case s.deps.Notifications <- n:
	default:
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	pending, err := s.deps.Syncer.Pending()
	if err != nil {
		log.Error().Err(err).Msg("api: failed to count pending events")
		pending = -1
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		Version:    config.AppVersion,
		Source:     s.deps.Config.MonitorSource(),
		Monitoring: s.deps.Config.MonitorEnabled(),
		Session:    s.deps.Tracker.Snapshot(),
		Pending:    pending,
	})
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return n, nil
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	lastID, err := queryInt(r, "lastId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	events, err := s.deps.Events.GetEvents(lastID, limit)
	if err != nil {
		log.Error().Err(err).Msg("api: failed to read events")
		writeError(w, http.StatusInternalServerError, errors.New("failed to read events"))
		return
	}
	if events == nil {
		events = []database.EventRecord{}
	}
	writeJSON(w, http.StatusOK, EventsResponse{Events: events})
}

func (s *Server) handleListOverrides(w http.ResponseWriter, _ *http.Request) {
	entries, err := s.deps.Overrides.List()
	if err != nil {
		log.Error().Err(err).Msg("api: failed to list overrides")
		writeError(w, http.StatusInternalServerError, errors.New("failed to list overrides"))
		return
	}
	if entries == nil {
		entries = []overrides.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleGetOverride(w http.ResponseWriter, r *http.Request) {
	pkg, ok := pathPackage(w, r)
	if !ok {
		return
	}
	v, found, err := s.deps.Overrides.Get(pkg)
	if err != nil {
		log.Error().Err(err).Str("package", pkg).Msg("api: failed to read override")
		writeError(w, http.StatusInternalServerError, errors.New("failed to read override"))
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, errors.New("no override for "+pkg))
		return
	}
	writeJSON(w, http.StatusOK, models.OverrideParams{Package: pkg, Value: string(v)})
}

func (s *Server) handleSetOverride(w http.ResponseWriter, r *http.Request) {
	pkg, ok := pathPackage(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, validation.ErrInvalidBody)
		return
	}
	var req OverrideRequest
	if err := validation.DecodeAndValidate(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	v, err := overrides.ParseValue(req.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.deps.Overrides.Set(pkg, v); err != nil {
		log.Error().Err(err).Str("package", pkg).Msg("api: failed to set override")
		writeError(w, http.StatusInternalServerError, errors.New("failed to set override"))
		return
	}

	params := models.OverrideParams{Package: pkg, Value: string(v)}
	s.notify(models.NotificationOverrideSet, params)
	writeJSON(w, http.StatusOK, params)
}

func (s *Server) handleClearOverride(w http.ResponseWriter, r *http.Request) {
	pkg, ok := pathPackage(w, r)
	if !ok {
		return
	}
	if err := s.deps.Overrides.Clear(pkg); err != nil {
		log.Error().Err(err).Str("package", pkg).Msg("api: failed to clear override")
		writeError(w, http.StatusInternalServerError, errors.New("failed to clear override"))
		return
	}
	s.notify(models.NotificationOverrideSet, models.OverrideParams{Package: pkg})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	pkg, ok := pathPackage(w, r)
	if !ok {
		return
	}

	app, err := s.deps.Resolver.Resolve(r.Context(), pkg)
	if err != nil {
		log.Debug().Err(err).Str("package", pkg).Msg("api: app lookup failed, classifying by id")
		app = models.AppInfo{Package: pkg, Label: pkg}
	}

	cls := s.deps.Classifier()
	res := cls.Classify(app)
	resp := ClassifyResponse{
		Package:    pkg,
		Label:      app.Label,
		Category:   app.Category.String(),
		Reason:     string(res.Reason),
		AutoIsGame: cls.Heuristic(app).IsGame(),
		IsGame:     res.IsGame(),
		Ignored:    cls.IsIgnored(pkg),
	}
	if v, found, err := s.deps.Overrides.Get(pkg); err == nil && found {
		resp.Override = string(v)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Syncer.Flush(r.Context())
	if err != nil {
		log.Warn().Err(err).Msg("api: flush failed")
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
