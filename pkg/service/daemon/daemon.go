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


// Package daemon manages the long-running service process: a pid file in the
// temp dir, detached start, and stop by signal.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ZaparooProject/playwatch/pkg/config"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/process"
)

const (
	startWait    = 5 * time.Second
	stopWait     = 10 * time.Second
	pollInterval = 250 * time.Millisecond
)

var (
	ErrAlreadyRunning = errors.New("service already running")
	ErrNotRunning     = errors.New("service not running")
)

// ServiceEntry starts the service. stop blocks until shutdown completes;
// done closes if the service exits on its own.
type ServiceEntry func() (stop func() error, done <-chan struct{}, err error)

type Service struct {
	start   ServiceEntry
	tempDir string
}

type ServiceArgs struct {
	Entry   ServiceEntry
	TempDir string
}

func NewService(args ServiceArgs) (*Service, error) {
	if err := os.MkdirAll(args.TempDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	return &Service{start: args.Entry, tempDir: args.TempDir}, nil
}

func (s *Service) pidPath() string {
	return filepath.Join(s.tempDir, config.PidFile)
}

func (s *Service) createPidFile() error {
	err := os.WriteFile(s.pidPath(), []byte(strconv.Itoa(os.Getpid())), 0o600)
	if err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

func (s *Service) removePidFile() error {
	err := os.Remove(s.pidPath())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	return nil
}

// Pid returns the recorded service pid, or 0 if there is no pid file.
func (s *Service) Pid() (int, error) {
	data, err := os.ReadFile(s.pidPath())
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("error reading pid file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("error parsing pid: %w", err)
	}
	return pid, nil
}

func (s *Service) Running() bool {
	pid, err := s.Pid()
	if err != nil || pid <= 0 {
		return false
	}
	exists, err := process.PidExists(int32(pid)) //nolint:gosec // pids fit in int32
	if err != nil {
		log.Debug().Err(err).Int("pid", pid).Msg("daemon: pid lookup failed")
		return false
	}
	return exists
}

// Run starts the service in this process and blocks until it is stopped by
// SIGINT/SIGTERM or exits on its own.
func (s *Service) Run(ctx context.Context) error {
	if s.Running() {
		return ErrAlreadyRunning
	}

	log.Info().Msg("daemon: starting service")
	if err := s.createPidFile(); err != nil {
		return err
	}
	defer func() {
		if err := s.removePidFile(); err != nil {
			log.Error().Err(err).Msg("daemon: error removing pid file")
		}
	}()

	stop, done, err := s.start()
	if err != nil {
		return fmt.Errorf("error starting service: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	select {
	case <-done:
		log.Info().Msg("daemon: service shut down internally")
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("daemon: stopping service")
	if err := stop(); err != nil {
		return fmt.Errorf("error stopping service: %w", err)
	}
	return nil
}

// Start launches a detached copy of this binary running the service.
func (s *Service) Start() error {
	if s.Running() {
		return ErrAlreadyRunning
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("error getting binary path: %w", err)
	}

	//nolint:gosec // exe is from os.Executable()
	cmd := exec.CommandContext(context.Background(), exe, "-service", "exec")
	cmd.Env = os.Environ()
	if cfgPath := os.Getenv(config.CfgEnv); cfgPath != "" {
		cmd.Env = append(cmd.Env, config.CfgEnv+"="+cfgPath)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("error starting service: %w", err)
	}
	if err := cmd.Process.Release(); err != nil {
		return fmt.Errorf("error releasing service process: %w", err)
	}

	deadline := time.Now().Add(startWait)
	for !s.Running() {
		if time.Now().After(deadline) {
			return errors.New("service did not write a pid file in time")
		}
		time.Sleep(pollInterval)
	}

	pid, _ := s.Pid()
	log.Info().Int("pid", pid).Msg("daemon: service process started")
	return nil
}

// Stop signals the running service and waits for it to exit.
func (s *Service) Stop() error {
	if !s.Running() {
		return ErrNotRunning
	}

	pid, err := s.Pid()
	if err != nil {
		return err
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send SIGTERM to process: %w", err)
	}

	deadline := time.Now().Add(stopWait)
	for s.Running() {
		if time.Now().After(deadline) {
			return errors.New("timeout waiting for service to stop")
		}
		time.Sleep(pollInterval)
	}
	return nil
}

// ServiceHandler runs one of the -service subcommands. status reports on
// stdout and returns ErrNotRunning when stopped.
func (s *Service) ServiceHandler(ctx context.Context, cmd string) error {
	switch cmd {
	case "exec":
		return s.Run(ctx)
	case "start":
		return s.Start()
	case "stop":
		return s.Stop()
	case "restart":
		if s.Running() {
			if err := s.Stop(); err != nil {
				return err
			}
		}
		return s.Start()
	case "status":
		if s.Running() {
			_, _ = fmt.Println("started")
			return nil
		}
		_, _ = fmt.Println("stopped")
		return ErrNotRunning
	case "":
		return nil
	default:
		return fmt.Errorf("unknown service argument: %s", cmd)
	}
}
