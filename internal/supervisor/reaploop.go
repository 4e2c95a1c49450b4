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

package supervisor

import (
	"context"
	"errors"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sys/unix"
	"k8s.io/utils/clock"

	"github.com/wal-g/reaper/internal/config"
	"github.com/wal-g/reaper/internal/util/proc"
)

// waitErrorPause keeps an unexpected, persistent wait4 failure from spinning.
const waitErrorPause = 100 * time.Millisecond

// Waiter blocks until a descendant terminates.
type Waiter interface {
	Wait() (proc.ChildOutcome, error)
}

// ReapLoop is the supervisor's main control loop: it reaps every descendant,
// recognises the tracked command and applies the wait policy.
type ReapLoop struct {
	Config config.Config
	State  *State
	Waiter Waiter
	Clock  clock.Clock
}

// Run blocks until the wait policy allows the supervisor to exit and
// returns the exit status derived from the command's outcome.
func (r *ReapLoop) Run(ctx context.Context) int {
	logger := logr.FromContextOrDiscard(ctx).WithName("ReapLoop")
	clk := r.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	shutdown := r.State.Shutdown()

	var command *proc.ChildOutcome
	for {
		outcome, err := r.Waiter.Wait()
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.ECHILD):
			logger.V(1).Info("All child processes terminated")
			if command == nil {
				logger.Info("No children left but the command was never reaped")
				return ExitFailure
			}
			if r.Config.WaitPolicy == config.Forever {
				logger.V(1).Info("Waiting for a shutdown request")
				select {
				case <-shutdown.Done():
				case <-ctx.Done():
				}
			}
			return r.exitCode(logger, *command)
		case err != nil:
			logger.Error(err, "wait4 failed")
			clk.Sleep(waitErrorPause)
			continue
		}

		if !outcome.Terminated() {
			continue
		}
		logger.V(1).Info("Reaped child", "pid", outcome.Pid(), "result", outcome.String())
		if outcome.Pid() != r.State.CommandPID() {
			continue
		}

		command = &outcome
		logger.V(1).Info("Command finished", "command", r.Config.Command[0], "result", outcome.String())
		if r.Config.TerminateAfterCommand {
			shutdown.CommandFinished()
		}
		if r.Config.WaitPolicy == config.CommandOnly {
			return r.exitCode(logger, outcome)
		}
	}
}

func (r *ReapLoop) exitCode(logger logr.Logger, outcome proc.ChildOutcome) int {
	code := ExitCodeFor(outcome)
	logger.V(1).Info("Returning", "code", code)
	return code
}
