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

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/sys/unix"
)

var _ = Describe("GroupController", func() {
	type killCall struct {
		pid int
		sig unix.Signal
	}

	var (
		pgrp      int
		killCalls []killCall
		killErr   error
		setpgids  int
		group     *GroupController
	)

	BeforeEach(func() {
		pgrp = 100
		killCalls = nil
		killErr = nil
		setpgids = 0
		group = &GroupController{
			pid:     100,
			getpgrp: func() int { return pgrp },
			setpgid: func(pid, pgid int) error {
				setpgids++
				pgrp = 100
				return nil
			},
			kill: func(pid int, sig unix.Signal) error {
				killCalls = append(killCalls, killCall{pid: pid, sig: sig})
				return killErr
			},
		}
	})

	Describe("BecomeGroupLeader", func() {
		It("does nothing when already leading the group", func() {
			Expect(group.BecomeGroupLeader()).To(Succeed())
			Expect(setpgids).To(Equal(0))
		})

		It("creates a new group otherwise", func() {
			pgrp = 1
			Expect(group.IsGroupLeader()).To(BeFalse())
			Expect(group.BecomeGroupLeader()).To(Succeed())
			Expect(setpgids).To(Equal(1))
			Expect(group.IsGroupLeader()).To(BeTrue())
		})

		It("wraps setpgid failures", func() {
			pgrp = 1
			group.setpgid = func(int, int) error { return unix.EPERM }
			err := group.BecomeGroupLeader()
			Expect(errors.Is(err, unix.EPERM)).To(BeTrue())
		})
	})

	Describe("Broadcast", func() {
		It("signals the whole group through kill(0, sig)", func() {
			Expect(group.Broadcast(unix.SIGTERM)).To(Succeed())
			Expect(killCalls).To(Equal([]killCall{{pid: 0, sig: unix.SIGTERM}}))
		})

		It("refuses to signal when no longer leading the group", func() {
			pgrp = 1
			Expect(group.Broadcast(unix.SIGTERM)).To(MatchError(ErrNotGroupLeader))
			Expect(killCalls).To(BeEmpty())
			Expect(group.ConsumeEcho(unix.SIGTERM)).To(BeFalse())
		})

		It("records exactly one echo per broadcast", func() {
			Expect(group.Broadcast(unix.SIGTERM)).To(Succeed())
			Expect(group.ConsumeEcho(unix.SIGINT)).To(BeFalse())
			Expect(group.ConsumeEcho(unix.SIGTERM)).To(BeTrue())
			Expect(group.ConsumeEcho(unix.SIGTERM)).To(BeFalse())
		})

		It("drops the echo when kill fails", func() {
			killErr = unix.ESRCH
			err := group.Broadcast(unix.SIGTERM)
			Expect(errors.Is(err, unix.ESRCH)).To(BeTrue())
			Expect(group.ConsumeEcho(unix.SIGTERM)).To(BeFalse())
		})

		It("ignores out of range signals for echo bookkeeping", func() {
			Expect(group.ConsumeEcho(unix.Signal(0))).To(BeFalse())
			Expect(group.ConsumeEcho(unix.Signal(maxSignal))).To(BeFalse())
		})
	})

	It("reports the current process by default", func() {
		current := NewGroupController()
		Expect(current.PID()).To(Equal(unix.Getpid()))
		Expect(current.IsGroupLeader()).To(Equal(unix.Getpgrp() == unix.Getpid()))
	})
})
