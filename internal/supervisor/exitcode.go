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
	"fmt"

	"github.com/wal-g/reaper/internal/util/proc"
)

const (
	ExitSuccess = 0
	// ExitFailure is used for every failure that has no exit code of its
	// own: signal-terminated command, startup errors, shutdown timeout.
	ExitFailure = 255
)

// ExitError carries a non-zero exit status of a supervised run up to main.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("reaper exiting with status %d", e.Code)
}

// ExitCodeFor mirrors the command's own exit code on normal exit and
// collapses a signal termination to ExitFailure.
func ExitCodeFor(outcome proc.ChildOutcome) int {
	if outcome.Exited() {
		return outcome.ExitCode()
	}
	return ExitFailure
}
