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

/*
Package toolset controls exclusive access to a fixed pool of
interchangeable physical resources, such as ovens or fryers.

A class of tools is identified by name and may be backed by several
units. A worker acquires one unit of every class it needs in a single
call:

	tools, _ := toolset.New(map[string]int{"oven": 3, "fryer": 1})

	ok, err := tools.AcquireAll(ctx, "cook-1", []string{"oven", "fryer"}, 2*time.Second)
	if err != nil {
		return err // Canceled.
	}
	if !ok {
		// Timed out. Nothing is held; try again later.
	}
	defer tools.ReleaseAll("cook-1", []string{"oven", "fryer"})

Deadlocks between workers are avoided in two ways. Every request is
sorted into the same canonical order before any unit is taken, so no two
workers can each hold a tool that the other is waiting for. Every step
is also bounded by the request's timeout; if it expires, the units taken
so far are released before AcquireAll returns.
*/
package toolset
