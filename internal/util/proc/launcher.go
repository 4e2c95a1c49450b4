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

// Package proc contains the process-level primitives of the reaper: process
// group control, subreaper registration, command launching and waiting for
// descendants.
package proc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/go-logr/logr"
	"github.com/samber/lo"
)

// Launcher starts the supervised command. The child inherits the stdio,
// environment and process group of the supervisor.
type Launcher struct {
	envMap map[string]string
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// NewLauncher returns a launcher wired to the supervisor's own stdio.
func NewLauncher() Launcher {
	return Launcher{
		envMap: make(map[string]string, 0),
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
}

// WithEnv returns new Launcher with added environment variables for command
// Added variables override existing env values with same name
func (l Launcher) WithEnv(envMap map[string]string) Launcher {
	merged := make(map[string]string, len(l.envMap)+len(envMap))
	for key, value := range l.envMap {
		merged[key] = value
	}
	for key, value := range envMap {
		merged[key] = value
	}
	l.envMap = merged
	return l
}

// WithStdio returns new Launcher with the given standard streams. Pass
// *os.File values (or nil for /dev/null): other readers and writers are
// copied by goroutines that os/exec only finishes in Cmd.Wait, which the
// launcher never calls.
func (l Launcher) WithStdio(stdin io.Reader, stdout, stderr io.Writer) Launcher {
	l.stdin = stdin
	l.stdout = stdout
	l.stderr = stderr
	return l
}

// envsList returns list of user-specified env variables according to exec.Cmd.Env structure
func (l Launcher) envsList() []string {
	return lo.MapToSlice(l.envMap, func(key string, value string) string {
		return fmt.Sprintf("%s=%s", key, value)
	})
}

// Spawn starts argv and returns its pid. The command is looked up in PATH
// when argv[0] has no slash. The process is never waited for here: the
// caller is expected to reap it together with every other descendant.
func (l Launcher) Spawn(ctx context.Context, argv []string) (int, error) {
	if len(argv) == 0 {
		return 0, errors.New("empty command")
	}
	logger := logr.FromContextOrDiscard(ctx).WithValues("entrypoint", argv[0], "args", argv[1:])

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), l.envsList()...)
	cmd.Stdin = l.stdin
	cmd.Stdout = l.stdout
	cmd.Stderr = l.stderr

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to exec %q: %w", argv[0], err)
	}
	pid := cmd.Process.Pid
	logger.V(1).Info("Started command", "pid", pid)

	// Drop the os.Process handle; the exit status is collected by wait4(-1).
	if err := cmd.Process.Release(); err != nil {
		logger.V(1).Info("Failed to release process handle", "pid", pid, "error", err.Error())
	}
	return pid, nil
}
