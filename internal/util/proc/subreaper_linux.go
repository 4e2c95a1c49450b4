//go:build linux

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
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Register sets PR_SET_CHILD_SUBREAPER on the calling process.
func (Registrar) Register() error {
	if err := unix.Prctl(unix.PR_SET_CHILD_SUBREAPER, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("failed to set child subreaper state: %w", err)
	}
	return nil
}

func (Registrar) IsSubreaper() (bool, error) {
	var flag int32
	if err := unix.Prctl(unix.PR_GET_CHILD_SUBREAPER, uintptr(unsafe.Pointer(&flag)), 0, 0, 0); err != nil {
		return false, fmt.Errorf("failed to get child subreaper state: %w", err)
	}
	return flag != 0, nil
}
