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

package cmd

import (
	"bytes"
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/viper"

	"github.com/wal-g/reaper/internal/config"
	"github.com/wal-g/reaper/internal/supervisor"
)

var _ = Describe("Root command", func() {
	var (
		started  []config.Config
		runErr   error
		output   *bytes.Buffer
		original func(context.Context, config.Config) error
	)

	BeforeEach(func() {
		// Reset viper values before each test
		viper.Reset()
		started = nil
		runErr = nil
		output = &bytes.Buffer{}

		original = runFunc
		runFunc = func(_ context.Context, cfg config.Config) error {
			started = append(started, cfg)
			return runErr
		}
	})

	AfterEach(func() {
		runFunc = original
	})

	execute := func(args ...string) error {
		root := NewRootCmd()
		root.SetOut(output)
		root.SetErr(output)
		root.SetArgs(args)
		return root.ExecuteContext(context.Background())
	}

	It("runs the command with default settings", func() {
		Expect(execute("/bin/sleep", "10")).To(Succeed())
		Expect(started).To(HaveLen(1))

		cfg := started[0]
		Expect(cfg.Command).To(Equal([]string{"/bin/sleep", "10"}))
		Expect(cfg.Verbose).To(BeFalse())
		Expect(cfg.FaultTolerant).To(BeFalse())
		Expect(cfg.ReapEnabled).To(BeTrue())
		Expect(cfg.TerminateAfterCommand).To(BeFalse())
		Expect(cfg.WaitPolicy).To(Equal(config.CommandOnly))
		Expect(cfg.ShutdownTimeout).To(Equal(config.DefaultShutdownTimeout))
		Expect(cfg.Env).To(BeEmpty())
	})

	It("collects extra environment for the command", func() {
		Expect(execute("-e", "REAPER_TEST_A=1", "--env", "REAPER_TEST_B=two", "/bin/true")).To(Succeed())
		Expect(started[0].Env).To(Equal(map[string]string{
			"REAPER_TEST_A": "1",
			"REAPER_TEST_B": "two",
		}))
		Expect(started[0].Command).To(Equal([]string{"/bin/true"}))
	})

	It("accepts combined short flags", func() {
		Expect(execute("-vwtf", "/bin/true")).To(Succeed())
		cfg := started[0]
		Expect(cfg.Verbose).To(BeTrue())
		Expect(cfg.WaitPolicy).To(Equal(config.AllDescendants))
		Expect(cfg.TerminateAfterCommand).To(BeTrue())
		Expect(cfg.FaultTolerant).To(BeTrue())
	})

	It("leaves the flags of the supervised command alone", func() {
		Expect(execute("-v", "/bin/ls", "-v", "--all")).To(Succeed())
		Expect(started[0].Command).To(Equal([]string{"/bin/ls", "-v", "--all"}))
	})

	DescribeTable("selects the wait policy",
		func(args []string, expected config.WaitPolicy) {
			Expect(execute(append(args, "/bin/true")...)).To(Succeed())
			Expect(started[0].WaitPolicy).To(Equal(expected))
		},
		Entry("default", []string{}, config.CommandOnly),
		Entry("-w", []string{"-w"}, config.AllDescendants),
		Entry("-F", []string{"-F"}, config.Forever),
		Entry("--wait-policy=all", []string{"--wait-policy=all"}, config.AllDescendants),
		Entry("--wait-policy=forever", []string{"--wait-policy=forever"}, config.Forever),
		Entry("-w with matching --wait-policy", []string{"-w", "--wait-policy=all"}, config.AllDescendants),
	)

	It("rejects contradicting wait policy flags", func() {
		err := execute("-w", "-F", "/bin/true")
		Expect(errors.Is(err, ErrConflictingWaitPolicies)).To(BeTrue())

		err = execute("-F", "--wait-policy=all", "/bin/true")
		Expect(errors.Is(err, ErrConflictingWaitPolicies)).To(BeTrue())
		Expect(started).To(BeEmpty())
	})

	It("rejects an unknown wait policy", func() {
		err := execute("--wait-policy=sometimes", "/bin/true")
		Expect(errors.Is(err, config.ErrUnknownWaitPolicy)).To(BeTrue())
		Expect(started).To(BeEmpty())
	})

	It("disables reaping with -n", func() {
		Expect(execute("-n", "/bin/true")).To(Succeed())
		Expect(started[0].ReapEnabled).To(BeFalse())
	})

	It("fails with usage when the command is missing", func() {
		err := execute("-v")
		Expect(err).To(MatchError(config.ErrMissingCommand))
		Expect(started).To(BeEmpty())
		Expect(output.String()).To(ContainSubstring("Usage:"))
	})

	It("fails with usage on unknown flags", func() {
		err := execute("-x", "/bin/true")
		Expect(err).To(HaveOccurred())
		Expect(started).To(BeEmpty())
		Expect(output.String()).To(ContainSubstring("Usage:"))
	})

	It("prints the version", func() {
		Expect(execute("-V")).To(Succeed())
		Expect(started).To(BeEmpty())
		Expect(output.String()).To(ContainSubstring("Version: "))
	})

	It("reads settings from the environment", func() {
		GinkgoT().Setenv("REAPER_VERBOSE", "true")
		GinkgoT().Setenv("REAPER_WAIT_POLICY", "forever")
		GinkgoT().Setenv("REAPER_TERMINATE_AFTER_COMMAND", "1")
		GinkgoT().Setenv("REAPER_SHUTDOWN_TIMEOUT", "750ms")

		Expect(execute("/bin/true")).To(Succeed())
		cfg := started[0]
		Expect(cfg.Verbose).To(BeTrue())
		Expect(cfg.WaitPolicy).To(Equal(config.Forever))
		Expect(cfg.TerminateAfterCommand).To(BeTrue())
		Expect(cfg.ShutdownTimeout).To(Equal(750 * time.Millisecond))
	})

	It("returns the supervisor's exit error", func() {
		runErr = &supervisor.ExitError{Code: 3}
		err := execute("/bin/false")

		var exitErr *supervisor.ExitError
		Expect(errors.As(err, &exitErr)).To(BeTrue())
		Expect(exitErr.Code).To(Equal(3))
	})
})
