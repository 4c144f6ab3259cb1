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

// Package cond contains a condition variable whose waits can be
// abandoned through a [context.Context].
package cond

import (
	"context"
	"sync"
)

// A Var is a condition variable associated with a [sync.Locker]. Unlike
// [sync.Cond], a call to [Var.Wait] returns early if its context is
// canceled.
//
// All methods must be called while holding the associated lock. A Var
// should not be copied after it has been created.
type Var struct {
	l       sync.Locker
	waiters []chan struct{} // FIFO; a channel is closed to wake its waiter.
}

// New constructs a Var that is guarded by the given lock.
func New(l sync.Locker) *Var {
	return &Var{l: l}
}

// Broadcast wakes every goroutine waiting on the Var.
func (v *Var) Broadcast() {
	for _, ch := range v.waiters {
		close(ch)
	}
	v.waiters = nil
}

// Len returns the number of goroutines currently blocked in Wait.
func (v *Var) Len() int {
	return len(v.waiters)
}

// Signal wakes the longest-waiting goroutine, if any.
func (v *Var) Signal() {
	if len(v.waiters) == 0 {
		return
	}
	close(v.waiters[0])
	v.waiters[0] = nil
	v.waiters = v.waiters[1:]
}

// Wait atomically unlocks the associated lock and suspends the calling
// goroutine until it is woken by Signal or Broadcast, or until the
// context is done. The lock is re-acquired before Wait returns.
//
// The return value is nil after a wakeup or [context.Cause] if the
// context ended the wait. Callers must re-test their condition in a
// loop, since a wakeup does not imply that the condition holds.
//
// If the waiter is signaled while its context is being canceled, the
// wakeup is handed to the next waiter so that it is not lost.
func (v *Var) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return context.Cause(ctx)
	}
	ch := make(chan struct{})
	v.waiters = append(v.waiters, ch)
	v.l.Unlock()

	select {
	case <-ch:
		v.l.Lock()
		return nil
	case <-ctx.Done():
		v.l.Lock()
		if !v.remove(ch) {
			v.Signal()
		}
		return context.Cause(ctx)
	}
}

// remove deletes the channel from the wait list, returning false if it
// had already been signaled.
func (v *Var) remove(ch chan struct{}) bool {
	for idx, w := range v.waiters {
		if w == ch {
			v.waiters = append(v.waiters[:idx], v.waiters[idx+1:]...)
			return true
		}
	}
	return false
}
