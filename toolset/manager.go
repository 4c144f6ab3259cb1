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
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/field-eng-monitors/internal/cond"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrAcquireTimeout will be returned from [context.Cause] while a
	// step of [Manager.AcquireAll] is waiting, and from [Manager.Do]
	// if the tools could not be acquired in time.
	ErrAcquireTimeout = fmt.Errorf("%w: tool acquisition timed out", context.DeadlineExceeded)
	// ErrNoHolder is returned if a holder identity is not supplied.
	ErrNoHolder = errors.New("holder must not be empty")
	// ErrUnknownTool is returned if a request names a tool class that
	// is not in the pool.
	ErrUnknownTool = errors.New("unknown tool")
)

// Manager hands out exclusive ownership of tool units.
//
// A Manager is internally synchronized and is safe for concurrent use.
// A Manager should not be copied after it has been created.
type Manager struct {
	events *Events

	mu struct {
		sync.Mutex
		// Holder of each unit, indexed by class. Empty means free.
		units map[string][]string
		// Signaled once per freed unit of a class.
		freed map[string]*cond.Var
	}
}

// New constructs a Manager for the pool. The keys of the map name the
// tool classes and the values are the number of interchangeable units
// of each class.
func New(pool map[string]int) (*Manager, error) {
	if len(pool) == 0 {
		return nil, errors.New("tool pool must not be empty")
	}
	m := &Manager{}
	m.mu.units = make(map[string][]string, len(pool))
	m.mu.freed = make(map[string]*cond.Var, len(pool))
	for name, count := range pool {
		if name == "" {
			return nil, errors.New("tool class name must not be empty")
		}
		if count <= 0 {
			return nil, fmt.Errorf("tool class %q must have at least one unit: %d", name, count)
		}
		m.mu.units[name] = make([]string, count)
		m.mu.freed[name] = cond.New(&m.mu)
	}
	return m, nil
}

// AcquireAll attempts to take one unit of every named tool class on
// behalf of the holder. It returns true only if every class was
// acquired before the timeout elapsed. On timeout it returns false and
// a nil error; if the context is canceled it returns false and the
// cancellation cause. In both cases every unit taken during the call
// has been released before AcquireAll returns.
//
// Duplicate names are ignored. A timeout that is not positive makes a
// single, non-blocking attempt.
func (m *Manager) AcquireAll(
	ctx context.Context, holder string, names []string, timeout time.Duration,
) (bool, error) {
	if holder == "" {
		return false, ErrNoHolder
	}
	order := canonical(names)
	if err := m.validate(order); err != nil {
		return false, err
	}

	start := time.Now()
	ctx, cancel := context.WithTimeoutCause(ctx, timeout, ErrAcquireTimeout)
	defer cancel()

	for idx, name := range order {
		if err := m.acquire(ctx, holder, name); err != nil {
			// Unwind in reverse order.
			for i := idx - 1; i >= 0; i-- {
				if m.release(holder, order[i]) {
					m.events.doReleased(holder, order[i])
				}
			}
			if errors.Is(err, ErrAcquireTimeout) {
				log.WithFields(log.Fields{
					"holder":  holder,
					"tools":   order,
					"blocked": name,
				}).Debug("tool acquisition timed out")
				m.events.doTimeout(holder, order, time.Since(start))
				return false, nil
			}
			return false, err
		}
	}
	m.events.doAcquired(holder, order, time.Since(start))
	return true, nil
}

// Available returns the number of free units of the named class.
func (m *Manager) Available(name string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	units, ok := m.mu.units[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	free := 0
	for _, h := range units {
		if h == "" {
			free++
		}
	}
	return free, nil
}

// Classes returns the tool class names in canonical order.
func (m *Manager) Classes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ret := make([]string, 0, len(m.mu.units))
	for name := range m.mu.units {
		ret = append(ret, name)
	}
	slices.Sort(ret)
	return ret
}

// Held returns the canonically-ordered classes of which the holder
// currently owns at least one unit.
func (m *Manager) Held(holder string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ret []string
	for name, units := range m.mu.units {
		if slices.Contains(units, holder) {
			ret = append(ret, name)
		}
	}
	slices.Sort(ret)
	return ret
}

// ReleaseAll returns one unit of each named class owned by the holder.
// Classes for which the holder owns nothing are skipped, so a
// ReleaseAll may safely follow a failed or partial acquisition. An
// error is returned, and nothing is released, if any name is unknown.
func (m *Manager) ReleaseAll(holder string, names []string) error {
	if holder == "" {
		return ErrNoHolder
	}
	order := canonical(names)
	if err := m.validate(order); err != nil {
		return err
	}
	for i := len(order) - 1; i >= 0; i-- {
		if m.release(holder, order[i]) {
			m.events.doReleased(holder, order[i])
		}
	}
	return nil
}

// SetEvents allows monitoring callbacks to be injected into the
// Manager. This method should be called before the Manager is shared.
func (m *Manager) SetEvents(events *Events) {
	m.events = events
}

// acquire takes the first free unit of the class, waiting until one is
// freed or the context ends.
func (m *Manager) acquire(ctx context.Context, holder, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	units := m.mu.units[name]
	for {
		for idx := range units {
			if units[idx] == "" {
				units[idx] = holder
				return nil
			}
		}
		if err := m.mu.freed[name].Wait(ctx); err != nil {
			return err
		}
	}
}

// release frees a unit of the class that is owned by the holder. It
// returns false if the holder did not own a unit.
func (m *Manager) release(holder, name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	units := m.mu.units[name]
	idx := slices.Index(units, holder)
	if idx < 0 {
		log.WithFields(log.Fields{
			"holder": holder,
			"tool":   name,
		}).Trace("ignoring release of tool that is not held")
		return false
	}
	units[idx] = ""
	m.mu.freed[name].Signal()
	return true
}

func (m *Manager) validate(names []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, name := range names {
		if _, ok := m.mu.units[name]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownTool, name)
		}
	}
	return nil
}

// canonical returns a sorted, deduplicated copy of the names. Every
// caller acquires in this order.
func canonical(names []string) []string {
	ret := slices.Clone(names)
	slices.Sort(ret)
	return slices.Compact(ret)
}
