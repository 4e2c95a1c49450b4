/*
Copyright 2025 YANDEX LLC.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package supervisor runs the user command as a subreaper-backed process
// group leader and enforces a bounded shutdown of its process tree.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-logr/logr"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sys/unix"
	"k8s.io/utils/clock"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/wal-g/reaper/internal/config"
	"github.com/wal-g/reaper/internal/util/proc"
	"github.com/wal-g/reaper/pkg/version"
)

// GroupController is the process group surface the supervisor relies on.
type GroupController interface {
	Broadcaster
	EchoFilter
	BecomeGroupLeader() error
	IsGroupLeader() bool
}

type Registrar interface {
	Register() error
}

// subreaperChecker is implemented by registrars able to read the flag back.
type subreaperChecker interface {
	IsSubreaper() (bool, error)
}

type Spawner interface {
	Spawn(ctx context.Context, argv []string) (int, error)
}

// Supervisor wires the process primitives together for one run.
type Supervisor struct {
	Config    config.Config
	Group     GroupController
	Registrar Registrar
	Spawner   Spawner
	Waiter    Waiter
	Clock     clock.WithDelayedExecution
	Raw       *proc.RawWriter
	Exit      func(code int)
}

// New returns a supervisor backed by the real operating system primitives.
func New(cfg config.Config) *Supervisor {
	return &Supervisor{
		Config:    cfg,
		Group:     proc.NewGroupController(),
		Registrar: proc.Registrar{},
		Spawner:   proc.NewLauncher().WithEnv(cfg.Env),
		Waiter:    proc.ChildWaiter{},
		Clock:     clock.RealClock{},
		Raw:       proc.NewRawWriter(unix.Stderr, "reaper: "),
		Exit:      os.Exit,
	}
}

// Run sets the supervisor up, spawns the command and supervises it. It
// returns the exit status the process should end with; a non-nil error
// means startup failed before or while launching the command.
func (s *Supervisor) Run(ctx context.Context) (int, error) {
	logger := logr.FromContextOrDiscard(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.Config.Validate(); err != nil {
		return ExitFailure, err
	}

	if err := s.Group.BecomeGroupLeader(); err != nil {
		return ExitFailure, fmt.Errorf("failed to become process group leader: %w", err)
	}

	if err := s.Registrar.Register(); err != nil {
		if !s.Config.FaultTolerant {
			return ExitFailure, fmt.Errorf("failed to register as subreaper: %w", err)
		}
		logger.Error(err, "Failed to register as subreaper, continuing in degraded mode")
		logger.Info("Note: Will not adopt orphans.")
	}

	machine := NewShutdownMachine(ShutdownOptions{
		SelfPID: s.Group.PID(),
		Timeout: s.Config.ShutdownTimeout,
		Group:   s.Group,
		Clock:   s.Clock,
		Raw:     s.Raw,
		Exit:    s.Exit,
		Logger:  logger.WithName("Shutdown"),
	})
	state := NewState(machine)

	pump := &SignalPump{Machine: machine, Echoes: s.Group}
	pump.Notify()
	go func() {
		_ = pump.Start(ctx)
	}()

	logger.V(1).Info("Starting reaper",
		"pid", os.Getpid(), "parent", os.Getppid(), "pgrp", unix.Getpgrp(),
		"groupLeader", s.Group.IsGroupLeader())
	if checker, ok := s.Registrar.(subreaperChecker); ok {
		if isSubreaper, err := checker.IsSubreaper(); err == nil {
			logger.V(1).Info("Subreaper state", "subreaper", isSubreaper)
		}
	}

	pid, err := s.Spawner.Spawn(ctx, s.Config.Command)
	if err != nil {
		return ExitFailure, err
	}
	if err := state.SetCommandPID(pid); err != nil {
		return ExitFailure, err
	}

	if !s.Config.ReapEnabled {
		return s.runWithoutReaping(ctx, machine), nil
	}

	loop := &ReapLoop{
		Config: s.Config,
		State:  state,
		Waiter: s.Waiter,
		Clock:  s.Clock,
	}
	return loop.Run(ctx), nil
}

// runWithoutReaping is the diagnostic mode: nothing is reaped. With the
// Forever policy it blocks until a shutdown request has been broadcast,
// otherwise it returns right away. Children are never waited for here, so the
// status is success in both cases.
func (s *Supervisor) runWithoutReaping(ctx context.Context, machine *ShutdownMachine) int {
	logger := logr.FromContextOrDiscard(ctx)
	logger.Info("Reaping is disabled, orphans will not be collected")
	if s.Config.WaitPolicy != config.Forever {
		return ExitSuccess
	}
	select {
	case <-machine.Done():
	case <-ctx.Done():
	}
	return ExitSuccess
}

// NewLogger builds the zap backed logger used by the reaper. Verbose mode
// enables V(1) diagnostics.
func NewLogger(cfg config.Config) logr.Logger {
	return newLogger(cfg, os.Stderr)
}

func newLogger(cfg config.Config, dest io.Writer) logr.Logger {
	opts := zap.Options{
		DestWriter:  dest,
		Development: version.IsDevelopment(),
		Level:       zapcore.InfoLevel,
		// Stack traces only for panics.
		StacktraceLevel: zapcore.DPanicLevel,
	}
	if cfg.Verbose {
		opts.Level = zapcore.DebugLevel
	}
	return zap.New(zap.UseFlagOptions(&opts))
}

// Start supervises cfg.Command and returns an *ExitError when the reaper has
// to exit with a non-zero status.
func Start(ctx context.Context, cfg config.Config) error {
	logger := NewLogger(cfg).WithName("reaper")
	ctx = logr.NewContext(ctx, logger)

	code, err := New(cfg).Run(ctx)
	if err != nil {
		logger.Error(err, "Startup failed")
		if errors.Is(err, config.ErrMissingCommand) {
			return err
		}
		return &ExitError{Code: code}
	}
	if code != ExitSuccess {
		return &ExitError{Code: code}
	}
	return nil
}
