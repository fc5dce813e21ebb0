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


package discovery

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSettings struct {
	listen  string
	name    string
	enabled bool
}

func (s staticSettings) DiscoveryEnabled() bool { return s.enabled }
func (s staticSettings) DiscoveryName() string  { return s.name }
func (staticSettings) DeviceID() string         { return "0123456789abcdef" }
func (s staticSettings) APIListen() string      { return s.listen }

type fakeServer struct {
	shutdowns int
	mu        sync.Mutex
}

func (f *fakeServer) Shutdown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdowns++
}

type registration struct {
	instance string
	text     []string
	port     int
}

type fakeRegistrar struct {
	srv      *fakeServer
	calls    []registration
	failures int
	mu       sync.Mutex
}

func (f *fakeRegistrar) register(
	instance, _, _ string,
	port int,
	text []string,
	_ []net.Interface,
) (server, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, registration{instance: instance, port: port, text: text})
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("network down")
	}
	return f.srv, nil
}

func (f *fakeRegistrar) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

var lanIface = net.Interface{Name: "wlan0", Flags: net.FlagUp | net.FlagMulticast}

func newTestService(settings Settings, clock clockwork.Clock, reg *fakeRegistrar) *Service {
	s := New(settings, clock)
	s.register = reg.register
	s.interfaces = func() ([]net.Interface, error) { return []net.Interface{lanIface}, nil }
	return s
}

func TestFilterInterfaces(t *testing.T) {
	t.Parallel()

	ifaces := []net.Interface{
		lanIface,
		{Name: "lo", Flags: net.FlagUp | net.FlagLoopback | net.FlagMulticast},
		{Name: "eth1", Flags: net.FlagMulticast},
		{Name: "tun0", Flags: net.FlagUp},
		{Name: "docker0", Flags: net.FlagUp | net.FlagMulticast},
		{Name: "WG0", Flags: net.FlagUp | net.FlagMulticast},
	}

	got := filterInterfaces(ifaces)
	require.Len(t, got, 1)
	assert.Equal(t, "wlan0", got[0].Name)
}

func TestAdvertisedPort(t *testing.T) {
	t.Parallel()

	tests := []struct {
		listen string
		port   int
		ok     bool
	}{
		{listen: "0.0.0.0:7580", port: 7580, ok: true},
		{listen: ":7580", port: 7580, ok: true},
		{listen: "192.168.1.5:9000", port: 9000, ok: true},
		{listen: "127.0.0.1:7580"},
		{listen: "[::1]:7580"},
		{listen: "localhost:7580"},
		{listen: "0.0.0.0:http"},
		{listen: "garbage"},
	}
	for _, tt := range tests {
		t.Run(tt.listen, func(t *testing.T) {
			t.Parallel()
			port, ok := advertisedPort(tt.listen)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.port, port)
		})
	}
}

func TestStart_Skips(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		settings staticSettings
	}{
		{name: "disabled", settings: staticSettings{listen: "0.0.0.0:7580"}},
		{name: "loopback", settings: staticSettings{listen: "127.0.0.1:7580", enabled: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			reg := &fakeRegistrar{srv: &fakeServer{}}
			s := newTestService(tt.settings, clockwork.NewFakeClock(), reg)

			require.NoError(t, s.Start(context.Background()))
			assert.Zero(t, reg.count())
		})
	}
}

func TestStart_Registers(t *testing.T) {
	t.Parallel()

	reg := &fakeRegistrar{srv: &fakeServer{}}
	s := newTestService(staticSettings{listen: "0.0.0.0:7580", name: "den-tablet", enabled: true},
		clockwork.NewFakeClock(), reg)

	require.NoError(t, s.Start(context.Background()))
	require.Equal(t, 1, reg.count())
	assert.Equal(t, "den-tablet", reg.calls[0].instance)
	assert.Equal(t, 7580, reg.calls[0].port)
	assert.Contains(t, reg.calls[0].text, "id=0123456789abcdef")
	assert.Equal(t, "den-tablet", s.InstanceName())

	s.Stop()
	s.Stop()
	assert.Equal(t, 1, reg.srv.shutdowns)
}

func TestStart_RetriesUntilRegistered(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	reg := &fakeRegistrar{srv: &fakeServer{}, failures: 2}
	s := newTestService(staticSettings{listen: ":7580", enabled: true}, clock, reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	assert.Equal(t, 1, reg.count())

	for want := 2; want <= 3; want++ {
		// retry ticker plus the give-up timer
		require.NoError(t, clock.BlockUntilContext(ctx, 2))
		clock.Advance(retryInterval)
		require.Eventually(t, func() bool { return reg.count() == want }, time.Second, time.Millisecond)
	}

	s.Stop()
	assert.Equal(t, 1, reg.srv.shutdowns)
}

func TestStopBeforeStart(t *testing.T) {
	t.Parallel()

	s := New(staticSettings{}, nil)
	s.Stop()
	s.Stop()
	assert.Nil(t, s.server)
}
