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

package proc

import (
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// ErrNotGroupLeader is returned by Broadcast when the calling process no
// longer leads its process group.
var ErrNotGroupLeader = errors.New("process is not the leader of its process group")

// maxSignal bounds the echo bookkeeping; Linux real-time signals end at 64.
const maxSignal = 65

// GroupController makes the supervisor its own process group leader and
// delivers signals to the whole group.
//
// Signalling the group also signals the supervisor itself. Every Broadcast
// therefore records one expected echo per signal, which the receiving side
// consumes with ConsumeEcho to recognise signals it sent to itself.
type GroupController struct {
	pid    int
	echoes [maxSignal]atomic.Int32

	getpgrp func() int
	setpgid func(pid, pgid int) error
	kill    func(pid int, sig unix.Signal) error
}

func NewGroupController() *GroupController {
	return &GroupController{
		pid:     unix.Getpid(),
		getpgrp: unix.Getpgrp,
		setpgid: unix.Setpgid,
		kill:    unix.Kill,
	}
}

// PID returns the pid of the supervisor process.
func (g *GroupController) PID() int {
	return g.pid
}

func (g *GroupController) IsGroupLeader() bool {
	return g.getpgrp() == g.pid
}

// BecomeGroupLeader moves the calling process into a new process group whose
// id equals its pid. Children started afterwards inherit the group.
func (g *GroupController) BecomeGroupLeader() error {
	if g.IsGroupLeader() {
		// Already leading, e.g. as pid 1 or a session leader where setpgid fails with EPERM.
		return nil
	}
	if err := g.setpgid(0, 0); err != nil {
		return fmt.Errorf("setpgid failed: %w", err)
	}
	return nil
}

// Broadcast sends sig to every process in the supervisor's group, the
// supervisor included. Nothing is sent unless the supervisor is still the
// group leader.
func (g *GroupController) Broadcast(sig unix.Signal) error {
	if !g.IsGroupLeader() {
		return ErrNotGroupLeader
	}
	slot := g.slot(sig)
	if slot != nil {
		slot.Add(1)
	}
	if err := g.kill(0, sig); err != nil {
		if slot != nil {
			slot.Add(-1)
		}
		return fmt.Errorf("kill(0, %s) failed: %w", sig, err)
	}
	return nil
}

// ConsumeEcho reports whether an echo of a previous Broadcast of sig was
// still outstanding, and consumes it if so.
func (g *GroupController) ConsumeEcho(sig unix.Signal) bool {
	slot := g.slot(sig)
	if slot == nil {
		return false
	}
	for {
		pending := slot.Load()
		if pending <= 0 {
			return false
		}
		if slot.CompareAndSwap(pending, pending-1) {
			return true
		}
	}
}

func (g *GroupController) slot(sig unix.Signal) *atomic.Int32 {
	if sig <= 0 || int(sig) >= maxSignal {
		return nil
	}
	return &g.echoes[sig]
}
