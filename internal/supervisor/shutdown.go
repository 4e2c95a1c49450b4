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
	"os"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sys/unix"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/utils/clock"

	"github.com/wal-g/reaper/internal/util/proc"
)

// ShutdownState is the position of the shutdown ratchet.
type ShutdownState int32

const (
	StateIdle ShutdownState = iota
	StateTerminatingChildren
	StateTimedOut
)

func (s ShutdownState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateTerminatingChildren:
		return "TerminatingChildren"
	case StateTimedOut:
		return "TimedOut"
	default:
		return "Unknown"
	}
}

// shutdownSignals are the conventional "please stop" requests.
var shutdownSignals = sets.New(unix.SIGTERM, unix.SIGINT, unix.SIGQUIT)

// timeoutSignal is handled like an expiry of the shutdown timer.
const timeoutSignal = unix.SIGALRM

// Request is a delivered signal together with the pid of its sender, or 0 when unknown.
type Request struct {
	Signal    unix.Signal
	SenderPID int
}

// Broadcaster delivers a signal to the supervisor's whole process group.
type Broadcaster interface {
	Broadcast(sig unix.Signal) error
}

// ShutdownOptions configures a ShutdownMachine.
type ShutdownOptions struct {
	// SelfPID is used to discard signals the supervisor sent to itself.
	SelfPID int
	Timeout time.Duration
	Group   Broadcaster
	Clock   clock.WithDelayedExecution
	// Raw receives the last line written before a forced exit.
	Raw    *proc.RawWriter
	Exit   func(code int)
	Logger logr.Logger
}

// ShutdownMachine drives the bounded shutdown sequence:
// Idle -> TerminatingChildren -> TimedOut. Transitions are compare-and-swap
// on an atomic, so the signal pump, the shutdown timer and the reap loop can
// race on it freely. Only the winner of the Idle -> TerminatingChildren
// transition broadcasts and arms the timer.
type ShutdownMachine struct {
	opts ShutdownOptions

	state     atomic.Int32
	deadline  atomic.Int64
	requested chan struct{}
}

func NewShutdownMachine(opts ShutdownOptions) *ShutdownMachine {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Exit == nil {
		opts.Exit = os.Exit
	}
	return &ShutdownMachine{
		opts:      opts,
		requested: make(chan struct{}),
	}
}

func (m *ShutdownMachine) State() ShutdownState {
	return ShutdownState(m.state.Load())
}

// Deadline returns the time after which the supervisor terminates itself, or
// the zero time while no shutdown is in progress.
func (m *ShutdownMachine) Deadline() time.Time {
	nanos := m.deadline.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

// Done is closed once a shutdown has been requested.
func (m *ShutdownMachine) Done() <-chan struct{} {
	return m.requested
}

// HandleSignal applies a delivered signal to the state machine.
func (m *ShutdownMachine) HandleSignal(req Request) {
	logger := m.opts.Logger
	if req.SenderPID != 0 && req.SenderPID == m.opts.SelfPID {
		logger.V(1).Info("Ignoring expected echo of own broadcast", "signal", req.Signal.String())
		return
	}
	if m.opts.Raw != nil {
		m.opts.Raw.LineNum("Signal: ", uint64(req.Signal))
	}
	logger.V(1).Info("Signal", "signal", req.Signal.String(), "sender", req.SenderPID)

	switch {
	case shutdownSignals.Has(req.Signal):
		m.RequestShutdown()
	case req.Signal == timeoutSignal:
		m.HandleTimeout()
	}
}

// CommandFinished starts the same shutdown sequence as a termination signal.
func (m *ShutdownMachine) CommandFinished() bool {
	return m.RequestShutdown()
}

// RequestShutdown moves Idle to TerminatingChildren, broadcasts SIGTERM to
// the process group and only then arms the timeout. It reports whether this
// call started the shutdown; later calls are no-ops.
func (m *ShutdownMachine) RequestShutdown() bool {
	logger := m.opts.Logger
	if !m.state.CompareAndSwap(int32(StateIdle), int32(StateTerminatingChildren)) {
		logger.V(1).Info("Shutdown already in progress")
		return false
	}
	m.deadline.Store(m.opts.Clock.Now().Add(m.opts.Timeout).UnixNano())
	close(m.requested)

	logger.Info("Terminating children...")
	if err := m.opts.Group.Broadcast(unix.SIGTERM); err != nil {
		logger.Error(err, "Failed to signal process group")
	}

	logger.V(1).Info("tick tock...", "timeout", m.opts.Timeout.String())
	m.opts.Clock.AfterFunc(m.opts.Timeout, m.HandleTimeout)
	return true
}

// HandleTimeout terminates the supervisor if a shutdown is in progress.
// In any other state it does nothing.
func (m *ShutdownMachine) HandleTimeout() {
	if !m.state.CompareAndSwap(int32(StateTerminatingChildren), int32(StateTimedOut)) {
		return
	}
	if m.opts.Raw != nil {
		m.opts.Raw.Line("Shutdown timeout. Terminating.")
	}
	m.opts.Exit(ExitFailure)
}
