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

package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/ZaparooProject/playwatch/pkg/models"
	"github.com/rs/zerolog/log"
)

const (
	APIKeyHeader = "X-API-KEY"

	// DefaultTimeout bounds a single delivery attempt.
	DefaultTimeout = 10 * time.Second
)

var (
	ErrUnexpectedStatus = errors.New("collector returned unexpected status")
	ErrNoCollector      = errors.New("collector url not configured")
)

// Credentials supplies the collector endpoint and key at request time so
// config reloads apply to the next delivery.
type Credentials interface {
	CollectorURL() string
	CollectorAPIKey() string
}

// APIKeyTransport adds the collector API key to every request.
type APIKeyTransport struct {
	Base http.RoundTripper
	Key  func() string
}

func (t *APIKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	if t.Key != nil {
		if key := t.Key(); key != "" {
			req = req.Clone(req.Context())
			req.Header.Set(APIKeyHeader, key)
		}
	}

	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, fmt.Errorf("failed to perform HTTP round trip: %w", err)
	}
	return resp, nil
}

// DefaultTransport pools connections to the collector with short dial and
// handshake timeouts.
var DefaultTransport = &http.Transport{
	DialContext: (&net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	ResponseHeaderTimeout: 10 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	MaxIdleConns:          20,
	MaxIdleConnsPerHost:   4,
	IdleConnTimeout:       90 * time.Second,
}

// Payload is the JSON body the collector accepts. Times are Unix
// milliseconds and duration is in whole minutes.
type Payload struct {
	UserID        string `json:"user_id"`
	ChildDeviceID string `json:"childdeviceid"`
	Status        string `json:"status"`
	PackageName   string `json:"package_name"`
	GameName      string `json:"game_name"`
	Duration      int64  `json:"duration"`
	StartTime     int64  `json:"start_time"`
	EndTime       int64  `json:"end_time"`
	Timestamp     int64  `json:"timestamp"`
}

// NewPayload converts ev to its wire form.
//
//nolint:gocritic // event passed by value to keep it immutable
func NewPayload(ev models.GameEvent) Payload {
	return Payload{
		UserID:        ev.UserID,
		ChildDeviceID: ev.DeviceID,
		Status:        string(ev.Status),
		PackageName:   ev.PackageID,
		GameName:      ev.DisplayName,
		Duration:      models.WireMinutes(ev.Status, ev.DurationSeconds),
		StartTime:     ev.StartTime.UnixMilli(),
		EndTime:       ev.EndTime.UnixMilli(),
		Timestamp:     ev.EndTime.UnixMilli(),
	}
}

// Collector posts events to the remote collector.
type Collector struct {
	client *http.Client
	creds  Credentials
}

// NewCollector returns a collector client whose requests time out after
// timeout. A non-positive timeout uses DefaultTimeout.
func NewCollector(creds Credentials, timeout time.Duration) *Collector {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Collector{
		creds: creds,
		client: &http.Client{
			Transport: &APIKeyTransport{
				Base: DefaultTransport,
				Key:  creds.CollectorAPIKey,
			},
			Timeout: timeout,
		},
	}
}

// Send makes one delivery attempt. Only 200 and 201 count as delivered.
//
//nolint:gocritic // event passed by value to keep it immutable
func (c *Collector) Send(ctx context.Context, ev models.GameEvent) error {
	url := c.creds.CollectorURL()
	if url == "" {
		return ErrNoCollector
	}

	body, err := json.Marshal(NewPayload(ev))
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("error posting event: %w", err)
	}
	defer func() {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("error closing response body")
		}
	}()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
}
