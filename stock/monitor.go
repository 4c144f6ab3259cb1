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

// Package stock contains an inventory monitor that hands out
// ingredients all-or-nothing and restocks itself in the background when
// supplies run low.
package stock

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/cockroachdb/field-eng-monitors/internal/cond"
	"github.com/cockroachdb/field-eng-powertools/notify"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrInvalidQuantity is returned if a request asks for a negative
	// amount of an ingredient.
	ErrInvalidQuantity = errors.New("invalid quantity")
	// ErrUnknownIngredient is returned if a request names an ingredient
	// that the monitor does not stock.
	ErrUnknownIngredient = errors.New("unknown ingredient")
)

// Config describes the initial contents of a [Monitor] and its
// restocking policy.
type Config struct {
	// Initial quantities, keyed by ingredient name. The set of keys is
	// fixed for the lifetime of the Monitor.
	Initial map[string]int
	// An ingredient is low when its quantity is strictly below this.
	LowWater int
	// The quantity added to every ingredient by [Monitor.Replenish].
	RestockAmount int
	// The time that the replenisher spends waiting for a delivery.
	RestockDelay time.Duration
}

// Monitor is a ledger of ingredient quantities. Quantities never become
// negative and a multi-ingredient request either succeeds for every
// ingredient or changes nothing.
//
// A Monitor is internally synchronized and is safe for concurrent use.
// A Monitor should not be copied after it has been created.
type Monitor struct {
	cfg      Config
	restocks *notify.Var[int]

	mu struct {
		sync.Mutex
		stock    map[string]int
		shortage bool      // A request failed since the last restock.
		cycles   int       // Completed calls to Replenish.
		low      *cond.Var // The replenisher waits here.
		supplied *cond.Var // Blocked consumers wait here.
	}
}

// New constructs a Monitor.
func New(cfg Config) (*Monitor, error) {
	if len(cfg.Initial) == 0 {
		return nil, errors.New("at least one ingredient is required")
	}
	if cfg.LowWater < 0 {
		return nil, fmt.Errorf("low-water mark must not be negative: %d", cfg.LowWater)
	}
	if cfg.RestockAmount <= 0 {
		return nil, fmt.Errorf("restock amount must be positive: %d", cfg.RestockAmount)
	}
	if cfg.RestockDelay < 0 {
		return nil, fmt.Errorf("restock delay must not be negative: %s", cfg.RestockDelay)
	}
	for name, qty := range cfg.Initial {
		if qty < 0 {
			return nil, fmt.Errorf("%w: %s=%d", ErrInvalidQuantity, name, qty)
		}
	}

	m := &Monitor{
		cfg:      cfg,
		restocks: notify.VarOf(0),
	}
	m.cfg.Initial = maps.Clone(cfg.Initial)
	m.mu.stock = maps.Clone(cfg.Initial)
	m.mu.low = cond.New(&m.mu)
	m.mu.supplied = cond.New(&m.mu)
	return m, nil
}

// Consume blocks until every requirement can be satisfied at once and
// then decrements the ledger. Each shortfall signals the replenisher.
// If the context is canceled while waiting, the ledger is untouched
// and [context.Cause] is returned.
func (m *Monitor) Consume(ctx context.Context, req map[string]int) error {
	if err := m.validate(req); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for !m.consumeLocked(req) {
		if err := m.mu.supplied.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// IsLow returns true if any ingredient is below the low-water mark.
func (m *Monitor) IsLow() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isLowLocked()
}

// Level returns the quantity of the ingredient.
func (m *Monitor) Level(name string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	qty, ok := m.mu.stock[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownIngredient, name)
	}
	return qty, nil
}

// Replenish adds the restock amount to every ingredient and wakes every
// blocked consumer.
func (m *Monitor) Replenish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name := range m.mu.stock {
		m.mu.stock[name] += m.cfg.RestockAmount
	}
	m.mu.shortage = false
	m.mu.cycles++
	m.restocks.Set(m.mu.cycles)
	// Waiting consumers may each need different ingredients.
	m.mu.supplied.Broadcast()
}

// Restocks returns the number of completed calls to [Monitor.Replenish]
// and a channel that will be closed when the value changes.
func (m *Monitor) Restocks() (int, <-chan struct{}) {
	return m.restocks.Get()
}

// Snapshot returns a copy of the ledger.
func (m *Monitor) Snapshot() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.mu.stock)
}

// TryConsume decrements every requested ingredient if all of them are
// available in sufficient quantity and returns true. Otherwise, it
// changes nothing, signals the replenisher, and returns false.
func (m *Monitor) TryConsume(req map[string]int) (bool, error) {
	if err := m.validate(req); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consumeLocked(req), nil
}

// WaitLow blocks until the ledger needs restocking: some ingredient is
// below the low-water mark, or a request could not be satisfied since
// the last restock.
func (m *Monitor) WaitLow(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for !m.needsRestockLocked() {
		if err := m.mu.low.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (m *Monitor) consumeLocked(req map[string]int) bool {
	for name, qty := range req {
		if m.mu.stock[name] < qty {
			m.mu.shortage = true
			m.mu.low.Broadcast()
			log.WithFields(log.Fields{
				"ingredient": name,
				"want":       qty,
				"have":       m.mu.stock[name],
			}).Trace("insufficient stock")
			return false
		}
	}
	for name, qty := range req {
		m.mu.stock[name] -= qty
	}
	if m.isLowLocked() {
		m.mu.low.Broadcast()
	}
	return true
}

func (m *Monitor) isLowLocked() bool {
	for _, qty := range m.mu.stock {
		if qty < m.cfg.LowWater {
			return true
		}
	}
	return false
}

func (m *Monitor) needsRestockLocked() bool {
	return m.mu.shortage || m.isLowLocked()
}

// validate checks the request against the fixed set of ingredients.
// The key set never changes, so the lock is not required.
func (m *Monitor) validate(req map[string]int) error {
	for name, qty := range req {
		if qty < 0 {
			return fmt.Errorf("%w: %s=%d", ErrInvalidQuantity, name, qty)
		}
		if _, ok := m.cfg.Initial[name]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownIngredient, name)
		}
	}
	return nil
}
