// Copyright 2025 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package toolset

import "time"

// Events provides a [Manager] with optional callbacks to monitor tool
// contention.
//
// See [Manager.SetEvents].
type Events struct {
	OnAcquired func(holder string, names []string, waited time.Duration)
	OnReleased func(holder string, name string)
	OnTimeout  func(holder string, names []string, waited time.Duration)
}

func (e *Events) doAcquired(holder string, names []string, waited time.Duration) {
	if e != nil && e.OnAcquired != nil {
		e.OnAcquired(holder, names, waited)
	}
}

func (e *Events) doReleased(holder string, name string) {
	if e != nil && e.OnReleased != nil {
		e.OnReleased(holder, name)
	}
}

func (e *Events) doTimeout(holder string, names []string, waited time.Duration) {
	if e != nil && e.OnTimeout != nil {
		e.OnTimeout(holder, names, waited)
	}
}
