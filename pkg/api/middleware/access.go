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

package middleware

import (
	"net"
	"net/http"

	"github.com/rs/zerolog/log"
)

// ParseRemoteIP extracts the IP from an "ip:port" RemoteAddr.
func ParseRemoteIP(remoteAddr string) net.IP {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	return net.ParseIP(host)
}

// WriteGuard lets anyone who can reach the API read from it, but limits
// requests that change state to loopback and an explicit allowlist of IPs
// and CIDRs.
type WriteGuard struct {
	nets  []*net.IPNet
	addrs []net.IP
}

func NewWriteGuard(allowed []string) *WriteGuard {
	g := &WriteGuard{}
	for _, s := range allowed {
		if host, _, err := net.SplitHostPort(s); err == nil {
			s = host
		}
		if _, n, err := net.ParseCIDR(s); err == nil {
			g.nets = append(g.nets, n)
			continue
		}
		if ip := net.ParseIP(s); ip != nil {
			g.addrs = append(g.addrs, ip)
			continue
		}
		log.Warn().Str("ip", s).Msg("api: invalid entry in allowed_ips, skipping")
	}
	return g
}

// CanWrite reports whether remoteAddr may issue mutating requests.
func (g *WriteGuard) CanWrite(remoteAddr string) bool {
	ip := ParseRemoteIP(remoteAddr)
	if ip == nil {
		return false
	}
	if ip.IsLoopback() {
		return true
	}
	for _, a := range g.addrs {
		if ip.Equal(a) {
			return true
		}
	}
	for _, n := range g.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func isRead(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

func (g *WriteGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isRead(r.Method) && !g.CanWrite(r.RemoteAddr) {
			log.Warn().
				Str("addr", r.RemoteAddr).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Msg("api: write from non-local address rejected")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
