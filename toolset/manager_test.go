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
	"math"
	"math/rand"
	"runtime"
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

	_, err := New(nil)
	a.Error(err)
	_, err = New(map[string]int{"oven": 0})
	a.Error(err)
	_, err = New(map[string]int{"": 1})
	a.Error(err)

	m, err := New(map[string]int{"oven": 3, "fryer": 1, "grill": 2})
	a.NoError(err)
	a.Equal([]string{"fryer", "grill", "oven"}, m.Classes())
}

func TestCanonical(t *testing.T) {
	r := require.New(t)

	src := []string{"oven", "fryer", "grill", "fryer", "oven"}
	cpy := append([]string(nil), src...)

	r.Equal([]string{"fryer", "grill", "oven"}, canonical(src))
	// Ensure that the source was not modified.
	r.Equal(src, cpy)
	r.Empty(canonical(nil))
}

func TestUnknownTool(t *testing.T) {
	r := require.New(t)
	m, err := New(map[string]int{"oven": 1})
	r.NoError(err)

	ok, err := m.AcquireAll(context.Background(), "a", []string{"oven", "wok"}, time.Second)
	r.ErrorIs(err, ErrUnknownTool)
	r.False(ok)
	free, err := m.Available("oven")
	r.NoError(err)
	r.Equal(1, free)

	r.ErrorIs(m.ReleaseAll("a", []string{"wok"}), ErrUnknownTool)
	_, err = m.Available("wok")
	r.ErrorIs(err, ErrUnknownTool)

	_, err = m.AcquireAll(context.Background(), "", []string{"oven"}, time.Second)
	r.ErrorIs(err, ErrNoHolder)
}

func TestInterchangeableUnits(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	m, err := New(map[string]int{"oven": 3})
	r.NoError(err)

	for i := 0; i < 3; i++ {
		ok, err := m.AcquireAll(ctx, fmt.Sprintf("cook-%d", i), []string{"oven"}, 0)
		r.NoError(err)
		r.True(ok)
	}
	free, err := m.Available("oven")
	r.NoError(err)
	r.Zero(free)

	// All units are busy, so a non-blocking attempt fails.
	ok, err := m.AcquireAll(ctx, "cook-3", []string{"oven"}, 0)
	r.NoError(err)
	r.False(ok)

	r.NoError(m.ReleaseAll("cook-1", []string{"oven"}))
	ok, err = m.AcquireAll(ctx, "cook-3", []string{"oven"}, 0)
	r.NoError(err)
	r.True(ok)
	r.Equal([]string{"oven"}, m.Held("cook-3"))
	r.Empty(m.Held("cook-1"))
}

func TestDoubleReleaseIsNoop(t *testing.T) {
	r := require.New(t)
	m, err := New(map[string]int{"oven": 1, "fryer": 1})
	r.NoError(err)

	ok, err := m.AcquireAll(context.Background(), "a", []string{"oven"}, time.Second)
	r.NoError(err)
	r.True(ok)

	// Releasing a class that was never acquired is harmless.
	r.NoError(m.ReleaseAll("a", []string{"oven", "fryer"}))
	r.NoError(m.ReleaseAll("a", []string{"oven", "fryer"}))

	// Another holder cannot release a unit it does not own.
	ok, err = m.AcquireAll(context.Background(), "a", []string{"oven"}, time.Second)
	r.NoError(err)
	r.True(ok)
	r.NoError(m.ReleaseAll("b", []string{"oven"}))
	free, err := m.Available("oven")
	r.NoError(err)
	r.Zero(free)
}

// A timed-out request must not leave any of its tools held.
func TestTimeoutUnwinds(t *testing.T) {
	r := require.New(t)
	m, err := New(map[string]int{"fryer": 1, "grill": 1, "oven": 1})
	r.NoError(err)

	var timeouts atomic.Int32
	var released atomic.Int32
	m.SetEvents(&Events{
		OnTimeout: func(string, []string, time.Duration) { timeouts.Add(1) },
		OnReleased: func(holder, _ string) {
			if holder == "b" {
				released.Add(1)
			}
		},
	})

	// Block the last tool in canonical order.
	ok, err := m.AcquireAll(context.Background(), "a", []string{"oven"}, time.Second)
	r.NoError(err)
	r.True(ok)

	start := time.Now()
	ok, err = m.AcquireAll(context.Background(), "b", []string{"oven", "grill", "fryer"}, 50*time.Millisecond)
	r.NoError(err)
	r.False(ok)
	r.GreaterOrEqual(time.Since(start), 50*time.Millisecond)

	for _, name := range []string{"fryer", "grill"} {
		free, err := m.Available(name)
		r.NoError(err)
		r.Equal(1, free, name)
	}
	r.Empty(m.Held("b"))
	r.Equal(int32(1), timeouts.Load())
	r.Equal(int32(2), released.Load())
}

func TestCancel(t *testing.T) {
	r := require.New(t)
	m, err := New(map[string]int{"fryer": 1, "oven": 1})
	r.NoError(err)

	ok, err := m.AcquireAll(context.Background(), "a", []string{"oven"}, time.Second)
	r.NoError(err)
	r.True(ok)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	ok, err = m.AcquireAll(ctx, "b", []string{"fryer", "oven"}, time.Minute)
	r.ErrorIs(err, context.Canceled)
	r.NotErrorIs(err, ErrAcquireTimeout)
	r.False(ok)

	free, err := m.Available("fryer")
	r.NoError(err)
	r.Equal(1, free)
}

// Two workers request the same tools in opposite orders. Neither may
// hang; exactly one holds both tools at a time.
func TestOppositeOrders(t *testing.T) {
	const timeout = 2 * time.Second
	r := require.New(t)
	m, err := New(map[string]int{"Oven": 1, "Fryer": 1})
	r.NoError(err)

	var inside atomic.Int32
	work := func(holder string, names []string) (bool, error) {
		ok, err := m.AcquireAll(context.Background(), holder, names, timeout)
		if err != nil || !ok {
			return ok, err
		}
		defer func() { _ = m.ReleaseAll(holder, names) }()
		if inside.Add(1) != 1 {
			return false, errors.New("both workers hold the tools")
		}
		time.Sleep(20 * time.Millisecond)
		inside.Add(-1)
		return true, nil
	}

	start := time.Now()
	var results [2]bool
	eg := errgroup.Group{}
	eg.Go(func() (err error) {
		results[0], err = work("A", []string{"Oven", "Fryer"})
		return err
	})
	eg.Go(func() (err error) {
		results[1], err = work("B", []string{"Fryer", "Oven"})
		return err
	})
	r.NoError(eg.Wait())
	r.Less(time.Since(start), 2*timeout)
	r.Equal([2]bool{true, true}, results)
}

// Use random tool sets to ensure that no unit is ever shared and that
// every call returns within twice its timeout.
func TestSmoke(t *testing.T) {
	const numClasses = 16
	const numWorkers = 64
	const iterations = 32
	const timeout = 250 * time.Millisecond
	r := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool := make(map[string]int, numClasses)
	names := make([]string, numClasses)
	for i := range names {
		names[i] = fmt.Sprintf("tool-%02d", i)
		pool[names[i]] = 1
	}
	m, err := New(pool)
	r.NoError(err)

	// The checker toggles the values between 0 and a nonce to look for
	// collisions.
	resources := make(map[string]*atomic.Int64, numClasses)
	for _, name := range names {
		resources[name] = &atomic.Int64{}
	}
	checker := func(keys []string) error {
		nonce := rand.Int63n(math.MaxInt64-1) + 1
		fail := false
		for _, k := range keys {
			if !resources[k].CompareAndSwap(0, nonce) {
				fail = true
			}
		}
		// Create goroutine scheduling jitter.
		runtime.Gosched()
		for _, k := range keys {
			if !resources[k].CompareAndSwap(nonce, 0) {
				fail = true
			}
		}
		if fail {
			return errors.New("collision detected")
		}
		return nil
	}

	var successes, timeouts atomic.Int32
	eg, egCtx := errgroup.WithContext(ctx)
	for w := 0; w < numWorkers; w++ {
		holder := fmt.Sprintf("worker-%d", w)
		eg.Go(func() error {
			for i := 0; i < iterations; i++ {
				// Intentionally include duplicates.
				count := rand.Intn(4) + 1
				keys := make([]string, count)
				for idx := range keys {
					keys[idx] = names[rand.Intn(numClasses)]
				}
				start := time.Now()
				err := m.Do(egCtx, holder, keys, timeout, func(context.Context) error {
					return checker(canonical(keys))
				})
				if elapsed := time.Since(start); elapsed > 2*timeout+time.Second {
					return fmt.Errorf("call took %s", elapsed)
				}
				switch {
				case err == nil:
					successes.Add(1)
				case errors.Is(err, ErrAcquireTimeout):
					timeouts.Add(1)
				default:
					return err
				}
			}
			return nil
		})
	}
	r.NoError(eg.Wait())
	r.Equal(int32(numWorkers*iterations), successes.Load()+timeouts.Load())
	r.Positive(successes.Load())

	for _, name := range names {
		free, err := m.Available(name)
		r.NoError(err)
		r.Equal(1, free, name)
	}
}

func TestPanic(t *testing.T) {
	r := require.New(t)
	m, err := New(map[string]int{"oven": 1})
	r.NoError(err)

	err = m.Do(context.Background(), "a", []string{"oven"}, time.Second, func(context.Context) error {
		panic("boom")
	})
	r.ErrorContains(err, "boom")

	err = m.Do(context.Background(), "a", []string{"oven"}, time.Second, func(context.Context) error {
		panic(errors.New("boom"))
	})
	r.ErrorContains(err, "boom")

	free, err := m.Available("oven")
	r.NoError(err)
	r.Equal(1, free)
}

func TestPhilosophers(t *testing.T) {
	r := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// The usual dining-philosophers constraints: five actors, five
	// "forks" labeled a-e.
	m, err := New(map[string]int{"a": 1, "b": 1, "c": 1, "d": 1, "e": 1})
	r.NoError(err)

	var mu sync.Mutex
	meals := make(map[string]int)
	dine := func(holder string) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			meals[holder]++
			return nil
		}
	}

	seats := map[string][]string{
		"alice": {"a", "b"},
		"bob":   {"b", "c"},
		"carol": {"c", "d"},
		"dave":  {"d", "e"},
		"eve":   {"e", "a"},
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for holder, forks := range seats {
		eg.Go(func() error {
			for i := 0; i < 100; i++ {
				if err := m.Do(egCtx, holder, forks, 5*time.Second, dine(holder)); err != nil {
					return err
				}
			}
			return nil
		})
	}
	r.NoError(eg.Wait())
	for holder := range seats {
		r.Equal(100, meals[holder], holder)
	}
}
