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
	"golang.org/x/sys/unix"
)

// ChildWaiter blocks until any child of the calling process terminates.
type ChildWaiter struct{}

// Wait reaps one child. It returns unix.ECHILD when no children are left and
// unix.EINTR when interrupted by a signal; callers decide how to proceed.
func (ChildWaiter) Wait() (ChildOutcome, error) {
	var wstatus unix.WaitStatus
	pid, err := unix.Wait4(-1, &wstatus, 0, nil)
	if err != nil {
		return ChildOutcome{}, err
	}
	return NewChildOutcome(pid, wstatus), nil
}
