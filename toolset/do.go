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

import (
	"context"
	"fmt"
	"time"
)

// Do acquires the named tools, invokes the callback, and then releases
// the tools, even if the callback panics. If the tools cannot be
// acquired before the timeout, [ErrAcquireTimeout] is returned and the
// callback is not invoked.
func (m *Manager) Do(
	ctx context.Context,
	holder string,
	names []string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	ok, err := m.AcquireAll(ctx, holder, names, timeout)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAcquireTimeout
	}
	defer func() { _ = m.ReleaseAll(holder, names) }()
	return tryCall(ctx, fn)
}

// tryCall invokes the function with a panic handler.
func tryCall(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	// Install panic handler before executing user code.
	defer func() {
		x := recover()
		switch t := x.(type) {
		case nil:
		// Success.
		case error:
			err = t
		default:
			err = fmt.Errorf("panic while holding tools: %v", t)
		}
	}()

	return fn(ctx)
}
