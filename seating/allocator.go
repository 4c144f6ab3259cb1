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

// Package seating contains a two-tier seat allocator.
//
// Priority callers first try to reserve one of a small number of
// reserved seats, waiting no longer than a configured timeout. If none
// becomes free in that window, they join everyone else waiting for the
// shared pool.
//
// The shared pool wakes every waiter when a seat is released and lets
// each of them re-check for a free seat. It does not serve waiters in
// arrival order; a waiter may be overtaken by a later arrival.
package seating

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/field-eng-monitors/internal/cond"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrNotOccupied is returned when releasing a seat that is not
	// currently allocated.
	ErrNotOccupied = errors.New("seat is not occupied")
	// ErrUnknownSeat is returned when releasing a seat that does not
	// belong to the Allocator.
	ErrUnknownSeat = errors.New("unknown seat")
)

// Class distinguishes reserved seats from shared seats.
type Class int

// The seat classes.
const (
	Shared Class = iota
	Reserved
)

func (c Class) String() string {
	switch c {
	case Shared:
		return "shared"
	case Reserved:
		return "reserved"
	default:
		return fmt.Sprintf("Class(%d)", int(c))
	}
}

// A Seat identifies an allocated seat.
type Seat struct {
	ID    int
	Class Class
}

func (s Seat) String() string {
	return fmt.Sprintf("%s-%d", s.Class, s.ID)
}

// Availability is a snapshot of the number of free seats.
type Availability struct {
	Reserved, Shared int
}

// Config describes the seats managed by an [Allocator].
type Config struct {
	Reserved       int           // Number of reserved seats.
	Shared         int           // Number of shared seats.
	ReserveTimeout time.Duration // Priority callers wait this long for a reserved seat.
}

// An Allocator hands out seats.
//
// An Allocator is internally synchronized and is safe for concurrent
// use. An Allocator should not be copied after it has been created.
type Allocator struct {
	reserveTimeout time.Duration

	mu struct {
		sync.Mutex
		reserved      []bool    // Occupancy of reserved seats.
		shared        []bool    // Occupancy of shared seats.
		sharedFree    int       // Number of false entries in shared.
		reservedFreed *cond.Var // Signaled once per freed reserved seat.
		sharedFreed   *cond.Var // Broadcast when a shared seat is freed.
	}
}

// New constructs an Allocator. Reserved seats are numbered after the
// shared seats.
func New(cfg Config) (*Allocator, error) {
	if cfg.Reserved < 0 || cfg.Shared < 0 {
		return nil, fmt.Errorf("seat counts must not be negative: %+v", cfg)
	}
	if cfg.Shared == 0 {
		return nil, errors.New("at least one shared seat is required")
	}
	if cfg.ReserveTimeout < 0 {
		return nil, fmt.Errorf("reserve timeout must not be negative: %s", cfg.ReserveTimeout)
	}
	a := &Allocator{reserveTimeout: cfg.ReserveTimeout}
	a.mu.reserved = make([]bool, cfg.Reserved)
	a.mu.shared = make([]bool, cfg.Shared)
	a.mu.sharedFree = cfg.Shared
	a.mu.reservedFreed = cond.New(&a.mu)
	a.mu.sharedFreed = cond.New(&a.mu)
	return a, nil
}

// Acquire allocates a seat. A priority caller waits up to the reserve
// timeout for a reserved seat and then falls back to the shared pool.
// Waiting for the shared pool is bounded only by the context; if it is
// canceled, no seat is held and [context.Cause] is returned.
func (a *Allocator) Acquire(ctx context.Context, priority bool) (Seat, error) {
	if priority {
		seat, ok, err := a.tryReserve(ctx)
		if err != nil || ok {
			return seat, err
		}
		log.WithField("timeout", a.reserveTimeout).Debug(
			"no reserved seat became free; falling back to shared pool")
	}
	return a.acquireShared(ctx)
}

// Available returns the number of free seats of each class.
func (a *Allocator) Available() Availability {
	a.mu.Lock()
	defer a.mu.Unlock()
	ret := Availability{Shared: a.mu.sharedFree}
	for _, occupied := range a.mu.reserved {
		if !occupied {
			ret.Reserved++
		}
	}
	return ret
}

// Capacity returns the total number of seats of each class.
func (a *Allocator) Capacity() Availability {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Availability{Reserved: len(a.mu.reserved), Shared: len(a.mu.shared)}
}

// Release returns the seat to the Allocator. Releasing a seat that is
// not occupied is an error and changes nothing.
func (a *Allocator) Release(seat Seat) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch seat.Class {
	case Reserved:
		idx := seat.ID - len(a.mu.shared)
		if idx < 0 || idx >= len(a.mu.reserved) {
			return fmt.Errorf("%w: %s", ErrUnknownSeat, seat)
		}
		if !a.mu.reserved[idx] {
			return fmt.Errorf("%w: %s", ErrNotOccupied, seat)
		}
		a.mu.reserved[idx] = false
		a.mu.reservedFreed.Signal()

	case Shared:
		if seat.ID < 0 || seat.ID >= len(a.mu.shared) {
			return fmt.Errorf("%w: %s", ErrUnknownSeat, seat)
		}
		if !a.mu.shared[seat.ID] {
			return fmt.Errorf("%w: %s", ErrNotOccupied, seat)
		}
		a.mu.shared[seat.ID] = false
		a.mu.sharedFree++
		a.mu.sharedFreed.Broadcast()

	default:
		return fmt.Errorf("%w: %s", ErrUnknownSeat, seat)
	}
	return nil
}

func (a *Allocator) acquireShared(ctx context.Context) (Seat, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for a.mu.sharedFree == 0 {
		if err := a.mu.sharedFreed.Wait(ctx); err != nil {
			return Seat{}, err
		}
	}
	for idx, occupied := range a.mu.shared {
		if !occupied {
			a.mu.shared[idx] = true
			a.mu.sharedFree--
			return Seat{ID: idx, Class: Shared}, nil
		}
	}
	// The free count and the occupancy flags disagree.
	panic(fmt.Sprintf("shared seat count %d with no free seat", a.mu.sharedFree))
}

// tryReserve waits up to the reserve timeout for a reserved seat. It
// returns false with a nil error if the timeout elapsed or there are no
// reserved seats at all.
func (a *Allocator) tryReserve(ctx context.Context) (Seat, bool, error) {
	ctx, cancel := context.WithTimeoutCause(ctx, a.reserveTimeout, errReserveTimeout)
	defer cancel()

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.mu.reserved) == 0 {
		return Seat{}, false, nil
	}
	for {
		for idx, occupied := range a.mu.reserved {
			if !occupied {
				a.mu.reserved[idx] = true
				return Seat{ID: len(a.mu.shared) + idx, Class: Reserved}, true, nil
			}
		}
		if err := a.mu.reservedFreed.Wait(ctx); err != nil {
			if errors.Is(err, errReserveTimeout) {
				return Seat{}, false, nil
			}
			return Seat{}, false, err
		}
	}
}

var errReserveTimeout = fmt.Errorf("%w: reserved seat timeout", context.DeadlineExceeded)
