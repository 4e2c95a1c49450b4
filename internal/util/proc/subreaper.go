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

import "errors"

// ErrSubreaperUnsupported is returned where the platform has no child subreaper facility.
var ErrSubreaperUnsupported = errors.New("child subreaper is not supported on this platform")

// Registrar marks the calling process as the reaper of its descendants, so
// orphans are re-parented to it rather than to the namespace init.
type Registrar struct{}
