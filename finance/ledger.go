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

// Package finance records payments taken from departing customers.
package finance

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// ErrInvalidAmount is returned for payments that are negative or not
// finite.
var ErrInvalidAmount = errors.New("invalid payment amount")

// Stats is a snapshot of a [Ledger].
type Stats struct {
	Revenue   float64
	Customers int
}

// Average returns the mean payment, or zero if there have been none.
func (s Stats) Average() float64 {
	if s.Customers == 0 {
		return 0
	}
	return s.Revenue / float64(s.Customers)
}

func (s Stats) String() string {
	return fmt.Sprintf("revenue %.2f from %d customers (avg %.2f)",
		s.Revenue, s.Customers, s.Average())
}

// A Ledger accumulates payments.
//
// A Ledger is internally synchronized and is safe for concurrent use.
type Ledger struct {
	mu struct {
		sync.Mutex
		stats Stats
	}
}

// NewLedger constructs an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// ProcessPayment records a payment from one customer.
func (l *Ledger) ProcessPayment(amount float64) error {
	if amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mu.stats.Revenue += amount
	l.mu.stats.Customers++
	return nil
}

// CustomersServed returns the number of recorded payments.
func (l *Ledger) CustomersServed() int {
	return l.Stats().Customers
}

// Revenue returns the sum of recorded payments.
func (l *Ledger) Revenue() float64 {
	return l.Stats().Revenue
}

// Stats returns a snapshot of the Ledger.
func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mu.stats
}
