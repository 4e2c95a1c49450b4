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
	"errors"
	"fmt"
	"sync/atomic"
)

var ErrCommandPIDAlreadySet = errors.New("command pid is already set")

// State is the process-wide supervisor state shared by the reap loop, the
// signal pump and the shutdown timer. It is built once per run.
type State struct {
	// commandPID is 0 until the command is spawned, then never changes.
	commandPID atomic.Int64
	shutdown   *ShutdownMachine
}

func NewState(shutdown *ShutdownMachine) *State {
	return &State{shutdown: shutdown}
}

// SetCommandPID records the pid of the tracked command. It succeeds only once.
func (s *State) SetCommandPID(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid command pid %d", pid)
	}
	if !s.commandPID.CompareAndSwap(0, int64(pid)) {
		return fmt.Errorf("%w: %d", ErrCommandPIDAlreadySet, s.commandPID.Load())
	}
	return nil
}

// CommandPID returns the tracked command pid, or 0 before spawn.
func (s *State) CommandPID() int {
	return int(s.commandPID.Load())
}

func (s *State) Shutdown() *ShutdownMachine {
	return s.shutdown
}
