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

package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/wal-g/reaper/internal/cmd"
	"github.com/wal-g/reaper/internal/supervisor"
)

func main() {
	// The reaper owns SIGTERM/SIGINT handling itself, so the context carries no signal handler.
	rootCmd := cmd.NewRootCmd()

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		var exitErr *supervisor.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, "reaper:", err)
		os.Exit(supervisor.ExitFailure)
	}
}
