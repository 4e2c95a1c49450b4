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
	"strconv"

	"golang.org/x/sys/unix"
)

// ChildOutcome stores information about a reaped descendant, as reported by wait4.
type ChildOutcome struct {
	pid    int             // The process's id.
	status unix.WaitStatus // System-dependent status info.
}

// NewChildOutcome wraps a raw wait status returned for pid.
func NewChildOutcome(pid int, status unix.WaitStatus) ChildOutcome {
	return ChildOutcome{pid: pid, status: status}
}

// ExitedWith builds the outcome of a process which exited normally with code.
// The status uses the traditional wait layout (code in the second byte).
func ExitedWith(pid int, code int) ChildOutcome {
	return ChildOutcome{pid: pid, status: unix.WaitStatus((code & 0xff) << 8)}
}

// KilledBy builds the outcome of a process terminated by sig.
func KilledBy(pid int, sig unix.Signal) ChildOutcome {
	return ChildOutcome{pid: pid, status: unix.WaitStatus(sig & 0x7f)}
}

// Pid returns the process id of the reaped process.
func (o ChildOutcome) Pid() int {
	return o.pid
}

func (o ChildOutcome) Exited() bool {
	return o.status.Exited()
}

func (o ChildOutcome) Signaled() bool {
	return o.status.Signaled()
}

// Terminated reports whether the process is gone, either by exiting or by
// being killed. Stop and continue notifications are not terminations.
func (o ChildOutcome) Terminated() bool {
	return o.status.Exited() || o.status.Signaled()
}

// Signal returns the signal which terminated the process, or -1.
func (o ChildOutcome) Signal() unix.Signal {
	if !o.status.Signaled() {
		return -1
	}
	return o.status.Signal()
}

func (o ChildOutcome) Success() bool {
	return o.status.Exited() && o.status.ExitStatus() == 0
}

// ExitCode returns the exit code of the exited process, or -1
// if the process hasn't exited or was terminated by a signal.
func (o ChildOutcome) ExitCode() int {
	return o.status.ExitStatus()
}

func (o ChildOutcome) String() string {
	status := o.status
	res := ""
	switch {
	case status.Exited():
		res = "exited with " + strconv.Itoa(status.ExitStatus())
	case status.Signaled():
		res = "terminated with signal " + strconv.Itoa(int(status.Signal())) + " (" + status.Signal().String() + ")"
	case status.Stopped():
		res = "stopped by signal " + status.StopSignal().String()
	case status.Continued():
		res = "continued"
	}
	if status.CoreDump() {
		res += " (core dumped)"
	}
	return res
}
