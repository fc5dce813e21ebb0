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


package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ZaparooProject/playwatch/internal/telemetry"
	"github.com/ZaparooProject/playwatch/pkg/cli"
	"github.com/ZaparooProject/playwatch/pkg/config"
	"github.com/ZaparooProject/playwatch/pkg/helpers"
	"github.com/ZaparooProject/playwatch/pkg/service"
	"github.com/ZaparooProject/playwatch/pkg/service/daemon"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run() (returnErr error) {
	flags := cli.SetupFlags()
	flags.Pre()

	if os.Geteuid() == 0 {
		return errors.New("playwatch cannot be run as root")
	}

	var logWriters []io.Writer
	if *flags.Daemon {
		logWriters = []io.Writer{os.Stderr}
	}

	cfg, err := cli.Setup(config.BaseDefaults, logWriters)
	if err != nil {
		return err //nolint:wrapcheck // already descriptive
	}
	defer telemetry.Close()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Msgf("panic recovered: %v", r)
			telemetry.Flush()
			returnErr = fmt.Errorf("panic: %v", r)
		}
	}()

	ctx := context.Background()

	if flags.NeedsClient() {
		_, err := flags.Dispatch(ctx, cli.SelectClient(ctx, cfg), os.Stdout)
		return err //nolint:wrapcheck // already descriptive
	}

	svc, err := daemon.NewService(daemon.ServiceArgs{
		TempDir: helpers.TempDir(),
		Entry: func() (func() error, <-chan struct{}, error) {
			return service.Start(cfg, service.Deps{})
		},
	})
	if err != nil {
		return fmt.Errorf("error creating service: %w", err)
	}

	if *flags.Service != "" {
		return svc.ServiceHandler(ctx, *flags.Service) //nolint:wrapcheck // already descriptive
	}

	log.Info().Msg("started in daemon mode")
	if err := svc.Run(ctx); err != nil {
		log.Error().Err(err).Msg("service exited with error")
		return err //nolint:wrapcheck // already descriptive
	}
	return nil
}
