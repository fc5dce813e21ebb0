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
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ZaparooProject/playwatch/internal/telemetry"
	"github.com/ZaparooProject/playwatch/pkg/api/validation"
	"github.com/ZaparooProject/playwatch/pkg/config"
	"github.com/ZaparooProject/playwatch/pkg/helpers"
	"github.com/ZaparooProject/playwatch/pkg/overrides"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrMissingValue = errors.New("flag requires a value")

type Flags struct {
	Override      *string
	ClearOverride *string
	Service       *string
	Version       *bool
	Flush         *bool
	Pending       *bool
	Daemon        *bool
}

func SetupFlags() *Flags {
	return &Flags{
		Version: flag.Bool(
			"version",
			false,
			"print version and exit",
		),
		Daemon: flag.Bool(
			"daemon",
			false,
			"run the service in the foreground",
		),
		Service: flag.String(
			"service",
			"",
			"manage the background service: start, stop, restart, status",
		),
		Flush: flag.Bool(
			"flush",
			false,
			"send unsynced events to the collector now",
		),
		Pending: flag.Bool(
			"pending",
			false,
			"print the number of unsynced events",
		),
		Override: flag.String(
			"override",
			"",
			"pin a package classification, e.g. com.example.app=game or =app",
		),
		ClearOverride: flag.String(
			"clear-override",
			"",
			"remove the override for a package",
		),
	}
}

func isFlagPassed(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// Pre parses flags and handles the ones that need no setup. Add any custom
// flags before running this.
func (f *Flags) Pre() {
	flag.Parse()

	if *f.Version {
		_, _ = fmt.Printf("Playwatch v%s\n", config.AppVersion)
		os.Exit(0)
	}
}

// ParseOverride splits a "package=game|app" argument.
func ParseOverride(arg string) (string, overrides.Value, error) {
	pkg, value, ok := strings.Cut(arg, "=")
	if !ok {
		return "", "", fmt.Errorf("expected package=game|app, got %q", arg)
	}
	pkg = strings.TrimSpace(pkg)
	if err := validation.DefaultValidator.Package(pkg); err != nil {
		return "", "", fmt.Errorf("invalid package: %w", err)
	}
	v, err := overrides.ParseValue(strings.ToLower(strings.TrimSpace(value)))
	if err != nil {
		return "", "", err //nolint:wrapcheck // already names the bad value
	}
	return pkg, v, nil
}

// Dispatch runs whichever one-shot action flag was given. handled is false
// when none was, so the caller carries on with normal startup.
func (f *Flags) Dispatch(ctx context.Context, c Client, out io.Writer) (handled bool, err error) {
	switch {
	case isFlagPassed("override"):
		return true, RunOverride(ctx, c, *f.Override, out)
	case isFlagPassed("clear-override"):
		return true, RunClearOverride(ctx, c, *f.ClearOverride, out)
	case *f.Flush:
		return true, RunFlush(ctx, c, out)
	case *f.Pending:
		return true, RunPending(ctx, c, out)
	}
	return false, nil
}

// NeedsClient reports whether an action flag was passed.
func (f *Flags) NeedsClient() bool {
	return isFlagPassed("override") || isFlagPassed("clear-override") || *f.Flush || *f.Pending
}

func RunOverride(ctx context.Context, c Client, arg string, out io.Writer) error {
	if arg == "" {
		return fmt.Errorf("override: %w", ErrMissingValue)
	}
	pkg, v, err := ParseOverride(arg)
	if err != nil {
		return err
	}
	if err := c.SetOverride(ctx, pkg, v); err != nil {
		return fmt.Errorf("failed to set override: %w", err)
	}
	_, _ = fmt.Fprintf(out, "%s is now always treated as %s\n", pkg, v)
	return nil
}

func RunClearOverride(ctx context.Context, c Client, pkg string, out io.Writer) error {
	if pkg == "" {
		return fmt.Errorf("clear-override: %w", ErrMissingValue)
	}
	if err := validation.DefaultValidator.Package(pkg); err != nil {
		return fmt.Errorf("invalid package: %w", err)
	}
	if err := c.ClearOverride(ctx, pkg); err != nil {
		return fmt.Errorf("failed to clear override: %w", err)
	}
	_, _ = fmt.Fprintf(out, "override for %s cleared\n", pkg)
	return nil
}

func RunFlush(ctx context.Context, c Client, out io.Writer) error {
	res, err := c.Flush(ctx)
	if err != nil {
		return fmt.Errorf("flush failed: %w", err)
	}
	_, _ = fmt.Fprintf(out, "delivered %d of %d events\n", res.Delivered, res.Attempted)
	return nil
}

func RunPending(ctx context.Context, c Client, out io.Writer) error {
	n, err := c.Pending(ctx)
	if err != nil {
		return fmt.Errorf("failed to count pending events: %w", err)
	}
	_, _ = fmt.Fprintln(out, n)
	return nil
}

// SelectClient prefers a running service and falls back to the data files.
func SelectClient(ctx context.Context, cfg *config.Instance) Client {
	apiClient := NewAPIClient(cfg)
	if apiClient.Available(ctx) {
		return apiClient
	}
	log.Debug().Msg("service not reachable, using data files directly")
	return NewLocalClient(cfg, helpers.DataDir())
}

// Setup initializes logging and the user config.
//
//nolint:gocritic // config struct copied for immutability
func Setup(defaultConfig config.Values, writers []io.Writer) (*config.Instance, error) {
	if err := helpers.InitLogging(writers); err != nil {
		return nil, fmt.Errorf("error initializing logging: %w", err)
	}

	cfg, err := config.NewConfig(helpers.ConfigDir(), defaultConfig)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}

	if cfg.DebugLogging() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if err := telemetry.Init(cfg.ErrorReporting(), cfg.DeviceID(), config.AppVersion); err != nil {
		log.Warn().Err(err).Msg("failed to initialize error reporting")
	}

	return cfg, nil
}
