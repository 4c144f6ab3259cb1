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

package seating

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestNewValidation(t *testing.T) {
	a := assert.New(t)
	_, err := New(Config{Reserved: -1, Shared: 1})
	a.Error(err)
	_, err = New(Config{Reserved: 1, Shared: 0})
	a.Error(err)
	_, err = New(Config{Shared: 1, ReserveTimeout: -time.Second})
	a.Error(err)

	alloc, err := New(Config{Reserved: 2, Shared: 3})
	a.NoError(err)
	a.Equal(Availability{Reserved: 2, Shared: 3}, alloc.Capacity())
	a.Equal(Availability{Reserved: 2, Shared: 3}, alloc.Available())
}

func TestPriorityGetsReservedSeat(t *testing.T) {
	r := require.New(t)
	alloc, err := New(Config{Reserved: 1, Shared: 1, ReserveTimeout: time.Second})
	r.NoError(err)

	seat, err := alloc.Acquire(context.Background(), true)
	r.NoError(err)
	r.Equal(Seat{ID: 1, Class: Reserved}, seat)
	r.Equal(Availability{Reserved: 0, Shared: 1}, alloc.Available())

	r.NoError(alloc.Release(seat))
	r.Equal(Availability{Reserved: 1, Shared: 1}, alloc.Available())
}

func TestPriorityFallsBackToShared(t *testing.T) {
	r := require.New(t)
	alloc, err := New(Config{Reserved: 1, Shared: 2, ReserveTimeout: 20 * time.Millisecond})
	r.NoError(err)

	first, err := alloc.Acquire(context.Background(), true)
	r.NoError(err)
	r.Equal(Reserved, first.Class)

	start := time.Now()
	second, err := alloc.Acquire(context.Background(), true)
	r.NoError(err)
	r.Equal(Shared, second.Class)
	r.GreaterOrEqual(time.Since(start), 20*time.Millisecond)
}

func TestPriorityWithoutReservedSeats(t *testing.T) {
	r := require.New(t)
	alloc, err := New(Config{Reserved: 0, Shared: 1, ReserveTimeout: time.Minute})
	r.NoError(err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	start := time.Now()
	seat, err := alloc.Acquire(ctx, true)
	r.NoError(err)
	r.Equal(Seat{ID: 0, Class: Shared}, seat)
	r.Less(time.Since(start), time.Second)
}

func TestPriorityWaitsForReservedRelease(t *testing.T) {
	r := require.New(t)
	alloc, err := New(Config{Reserved: 1, Shared: 1, ReserveTimeout: 5 * time.Second})
	r.NoError(err)

	held, err := alloc.Acquire(context.Background(), true)
	r.NoError(err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = alloc.Release(held)
	}()
	seat, err := alloc.Acquire(context.Background(), true)
	r.NoError(err)
	r.Equal(held, seat)
}

func TestNonPriorityNeverGetsReserved(t *testing.T) {
	r := require.New(t)
	alloc, err := New(Config{Reserved: 3, Shared: 1})
	r.NoError(err)

	seat, err := alloc.Acquire(context.Background(), false)
	r.NoError(err)
	r.Equal(Shared, seat.Class)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = alloc.Acquire(ctx, false)
	r.ErrorIs(err, context.DeadlineExceeded)
	r.Equal(Availability{Reserved: 3, Shared: 0}, alloc.Available())
}

func TestReleaseErrors(t *testing.T) {
	r := require.New(t)
	alloc, err := New(Config{Reserved: 1, Shared: 1})
	r.NoError(err)

	r.ErrorIs(alloc.Release(Seat{ID: 0, Class: Shared}), ErrNotOccupied)
	r.ErrorIs(alloc.Release(Seat{ID: 1, Class: Reserved}), ErrNotOccupied)
	r.ErrorIs(alloc.Release(Seat{ID: 5, Class: Shared}), ErrUnknownSeat)
	r.ErrorIs(alloc.Release(Seat{ID: 0, Class: Reserved}), ErrUnknownSeat)
	r.ErrorIs(alloc.Release(Seat{ID: 0, Class: Class(7)}), ErrUnknownSeat)

	seat, err := alloc.Acquire(context.Background(), false)
	r.NoError(err)
	r.NoError(alloc.Release(seat))
	r.ErrorIs(alloc.Release(seat), ErrNotOccupied)
	r.Equal(Availability{Reserved: 1, Shared: 1}, alloc.Available())
}

// On a saturated pool, each release admits exactly one waiter.
func TestReleaseAdmitsOneWaiter(t *testing.T) {
	const numWaiters = 4
	r := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	alloc, err := New(Config{Shared: 1})
	r.NoError(err)
	held, err := alloc.Acquire(ctx, false)
	r.NoError(err)

	seats := make(chan Seat, numWaiters)
	for i := 0; i < numWaiters; i++ {
		go func() {
			seat, err := alloc.Acquire(ctx, false)
			if err == nil {
				seats <- seat
			}
		}()
	}
	r.Eventually(func() bool {
		alloc.mu.Lock()
		defer alloc.mu.Unlock()
		return alloc.mu.sharedFreed.Len() == numWaiters
	}, 5*time.Second, time.Millisecond)

	for i := 0; i < numWaiters; i++ {
		r.NoError(alloc.Release(held))
		select {
		case held = <-seats:
		case <-ctx.Done():
			r.FailNow("waiter was not admitted")
		}
		// No other waiter may sneak in.
		select {
		case extra := <-seats:
			r.Failf("two waiters admitted", "extra: %s", extra)
		case <-time.After(10 * time.Millisecond):
		}
		r.Equal(0, alloc.Available().Shared)
	}
}

// Never hand out more seats than exist.
func TestSmoke(t *testing.T) {
	const reserved = 2
	const shared = 3
	const numClients = 32
	r := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	alloc, err := New(Config{Reserved: reserved, Shared: shared, ReserveTimeout: 5 * time.Millisecond})
	r.NoError(err)

	var mu sync.Mutex
	occupied := make(map[Seat]bool)
	var maxSeated, seated atomic.Int32

	eg, egCtx := errgroup.WithContext(ctx)
	for i := 0; i < numClients; i++ {
		priority := i%3 == 0
		eg.Go(func() error {
			for j := 0; j < 16; j++ {
				seat, err := alloc.Acquire(egCtx, priority)
				if err != nil {
					return err
				}
				mu.Lock()
				if occupied[seat] {
					mu.Unlock()
					return assert.AnError
				}
				occupied[seat] = true
				mu.Unlock()

				n := seated.Add(1)
				for {
					cur := maxSeated.Load()
					if n <= cur || maxSeated.CompareAndSwap(cur, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				seated.Add(-1)

				mu.Lock()
				delete(occupied, seat)
				mu.Unlock()
				if err := alloc.Release(seat); err != nil {
					return err
				}
			}
			return nil
		})
	}
	r.NoError(eg.Wait())
	r.LessOrEqual(maxSeated.Load(), int32(reserved+shared))
	r.Equal(Availability{Reserved: reserved, Shared: shared}, alloc.Available())
}
