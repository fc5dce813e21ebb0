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


// Package discovery advertises the local API over mDNS so a companion app on
// the same network can find the device.
package discovery

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ZaparooProject/playwatch/pkg/config"
	"github.com/ZaparooProject/playwatch/pkg/helpers/syncutil"
	"github.com/grandcat/zeroconf"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	ServiceType = "_playwatch._tcp"

	retryInterval    = 30 * time.Second
	maxRetryDuration = 5 * time.Minute
)

var virtualInterfacePrefixes = []string{
	"docker", "br-", "veth", "virbr", "lxc", "lxd",
	"cni", "flannel", "cali", "tunl", "wg",
}

type Settings interface {
	DiscoveryEnabled() bool
	DiscoveryName() string
	DeviceID() string
	APIListen() string
}

type server interface {
	Shutdown()
}

type registerFunc func(
	instance, service, domain string,
	port int,
	text []string,
	ifaces []net.Interface,
) (server, error)

func zeroconfRegister(
	instance, service, domain string,
	port int,
	text []string,
	ifaces []net.Interface,
) (server, error) {
	s, err := zeroconf.Register(instance, service, domain, port, text, ifaces)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}
	return s, nil
}

func filterInterfaces(ifaces []net.Interface) []net.Interface {
	var preferred []net.Interface
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 ||
			iface.Flags&net.FlagLoopback != 0 ||
			iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		if isVirtualInterface(iface.Name) {
			continue
		}
		preferred = append(preferred, iface)
	}
	return preferred
}

func isVirtualInterface(name string) bool {
	lowerName := strings.ToLower(name)
	for _, prefix := range virtualInterfacePrefixes {
		if strings.HasPrefix(lowerName, prefix) {
			return true
		}
	}
	return false
}

// advertisedPort returns the API port when the listen address is reachable
// from other hosts.
func advertisedPort(listen string) (int, bool) {
	host, portStr, err := net.SplitHostPort(listen)
	if err != nil {
		return 0, false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return 0, false
	}
	if host == "localhost" {
		return 0, false
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return 0, false
	}
	return port, true
}

type Service struct {
	settings     Settings
	clock        clockwork.Clock
	register     registerFunc
	interfaces   func() ([]net.Interface, error)
	server       server
	cancel       context.CancelFunc
	instanceName string
	mu           syncutil.Mutex
	stopped      bool
}

func New(settings Settings, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		settings:   settings,
		clock:      clock,
		register:   zeroconfRegister,
		interfaces: net.Interfaces,
	}
}

// Start registers the service, retrying in the background for a while if
// the network is not ready yet.
func (s *Service) Start(ctx context.Context) error {
	if !s.settings.DiscoveryEnabled() {
		log.Debug().Msg("discovery: disabled by configuration")
		return nil
	}
	port, ok := advertisedPort(s.settings.APIListen())
	if !ok {
		log.Info().Str("listen", s.settings.APIListen()).
			Msg("discovery: api is loopback only, not advertising")
		return nil
	}

	s.instanceName = s.resolveInstanceName()
	if s.tryRegister(port) {
		return nil
	}

	log.Info().Dur("retryInterval", retryInterval).
		Msg("discovery: registration failed, retrying in background")

	retryCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	go s.retryLoop(retryCtx, port)
	return nil
}

func (s *Service) tryRegister(port int) bool {
	all, err := s.interfaces()
	if err != nil {
		log.Debug().Err(err).Msg("discovery: failed to list interfaces")
		return false
	}
	ifaces := filterInterfaces(all)
	if len(ifaces) == 0 {
		log.Debug().Msg("discovery: no suitable interfaces")
		return false
	}

	txt := []string{
		"id=" + s.settings.DeviceID(),
		"version=" + config.AppVersion,
	}
	srv, err := s.register(s.instanceName, ServiceType, "local.", port, txt, ifaces)
	if err != nil {
		log.Debug().Err(err).Msg("discovery: registration attempt failed")
		return false
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		srv.Shutdown()
		return false
	}
	s.server = srv
	s.mu.Unlock()

	log.Info().Str("instance", s.instanceName).Int("port", port).
		Msg("discovery: advertising api")
	return true
}

func (s *Service) retryLoop(ctx context.Context, port int) {
	ticker := s.clock.NewTicker(retryInterval)
	defer ticker.Stop()
	deadline := s.clock.After(maxRetryDuration)

	for {
		select {
		case <-ticker.Chan():
			if s.tryRegister(port) {
				return
			}
		case <-deadline:
			log.Warn().Msg("discovery: giving up on registration")
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop withdraws the advertisement. It is safe to call more than once.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.server != nil {
		s.server.Shutdown()
		s.server = nil
	}
}

func (s *Service) InstanceName() string {
	return s.instanceName
}

func (s *Service) resolveInstanceName() string {
	if name := s.settings.DiscoveryName(); name != "" {
		return name
	}
	hostname, err := os.Hostname()
	if err == nil && hostname != "" {
		return "playwatch-" + hostname
	}
	if id := s.settings.DeviceID(); len(id) >= 8 {
		return "playwatch-" + id[:8]
	}
	return config.AppName
}
