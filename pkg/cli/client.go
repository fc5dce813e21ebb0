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


package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/ZaparooProject/playwatch/pkg/api"
	"github.com/ZaparooProject/playwatch/pkg/config"
	"github.com/ZaparooProject/playwatch/pkg/database/eventdb"
	"github.com/ZaparooProject/playwatch/pkg/overrides"
	"github.com/ZaparooProject/playwatch/pkg/service/syncer"
	"github.com/ZaparooProject/playwatch/pkg/shared/httpclient"
)

const probeTimeout = 2 * time.Second

// Client performs the one-shot CLI actions, either against a running
// service or directly on the data files.
type Client interface {
	Pending(ctx context.Context) (int, error)
	Flush(ctx context.Context) (syncer.FlushResult, error)
	SetOverride(ctx context.Context, pkg string, v overrides.Value) error
	ClearOverride(ctx context.Context, pkg string) error
}

// APIClient talks to the local service over its HTTP API.
type APIClient struct {
	http    *http.Client
	baseURL string
}

// NewAPIClient targets the configured listen address. Wildcard hosts are
// reached on loopback.
func NewAPIClient(cfg *config.Instance) *APIClient {
	return &APIClient{
		baseURL: "http://" + dialAddr(cfg.APIListen()),
		http:    &http.Client{Timeout: config.APIRequestTimeout},
	}
}

func dialAddr(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

func (c *APIClient) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		var e api.ErrorResponse
		if decErr := json.NewDecoder(resp.Body).Decode(&e); decErr == nil && e.Error != "" {
			return fmt.Errorf("service returned %d: %s", resp.StatusCode, e.Error)
		}
		return fmt.Errorf("service returned %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Available reports whether the service is answering.
func (c *APIClient) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return c.do(ctx, http.MethodGet, "/api/status", nil, nil) == nil
}

func (c *APIClient) Status(ctx context.Context) (api.StatusResponse, error) {
	var resp api.StatusResponse
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &resp)
	return resp, err
}

func (c *APIClient) Pending(ctx context.Context) (int, error) {
	resp, err := c.Status(ctx)
	if err != nil {
		return 0, err
	}
	if resp.Pending < 0 {
		return 0, errors.New("service could not count pending events")
	}
	return resp.Pending, nil
}

func (c *APIClient) Flush(ctx context.Context) (syncer.FlushResult, error) {
	var res syncer.FlushResult
	err := c.do(ctx, http.MethodPost, "/api/sync/flush", nil, &res)
	return res, err
}

func (c *APIClient) SetOverride(ctx context.Context, pkg string, v overrides.Value) error {
	body, err := json.Marshal(api.OverrideRequest{Value: string(v)})
	if err != nil {
		return fmt.Errorf("failed to encode override: %w", err)
	}
	return c.do(ctx, http.MethodPut, "/api/overrides/"+pkg, strings.NewReader(string(body)), nil)
}

func (c *APIClient) ClearOverride(ctx context.Context, pkg string) error {
	return c.do(ctx, http.MethodDelete, "/api/overrides/"+pkg, nil, nil)
}

// LocalClient works on the data files directly. It must not be used while
// the service is running; bbolt holds an exclusive lock.
type LocalClient struct {
	cfg     *config.Instance
	dataDir string
}

func NewLocalClient(cfg *config.Instance, dataDir string) *LocalClient {
	return &LocalClient{cfg: cfg, dataDir: dataDir}
}

func (c *LocalClient) withEvents(ctx context.Context, fn func(*eventdb.EventDB) error) error {
	edb, err := eventdb.OpenEventDB(ctx, filepath.Join(c.dataDir, config.EventsDbFile))
	if err != nil {
		_ = edb.Close()
		return fmt.Errorf("failed to open event database: %w", err)
	}
	defer func() { _ = edb.Close() }()
	return fn(edb)
}

func (c *LocalClient) withOverrides(fn func(*overrides.Store) error) error {
	store, err := overrides.Open(filepath.Join(c.dataDir, config.OverridesDbFile))
	if err != nil {
		return fmt.Errorf("failed to open override store: %w", err)
	}
	defer func() { _ = store.Close() }()
	return fn(store)
}

func (c *LocalClient) Pending(ctx context.Context) (int, error) {
	var n int
	err := c.withEvents(ctx, func(edb *eventdb.EventDB) error {
		var countErr error
		n, countErr = edb.CountUnsynced()
		return countErr
	})
	return n, err
}

// Flush runs a one-off pipeline over the backlog.
func (c *LocalClient) Flush(ctx context.Context) (syncer.FlushResult, error) {
	var res syncer.FlushResult
	err := c.withEvents(ctx, func(edb *eventdb.EventDB) error {
		p := syncer.New(syncer.Options{
			Store:      edb,
			Sender:     httpclient.NewCollector(c.cfg, c.cfg.SyncTimeout()),
			Identity:   c.cfg,
			Workers:    1,
			FlushBatch: c.cfg.FlushBatch(),
			FlushRate:  c.cfg.FlushRate(),
			Timeout:    c.cfg.SyncTimeout(),
		})
		defer p.Stop()
		var flushErr error
		res, flushErr = p.Flush(ctx)
		return flushErr
	})
	return res, err
}

func (c *LocalClient) SetOverride(_ context.Context, pkg string, v overrides.Value) error {
	return c.withOverrides(func(s *overrides.Store) error { return s.Set(pkg, v) })
}

func (c *LocalClient) ClearOverride(_ context.Context, pkg string) error {
	return c.withOverrides(func(s *overrides.Store) error { return s.Clear(pkg) })
}
