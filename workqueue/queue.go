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

// Package workqueue contains a capacity-bounded priority queue with
// blocking producer and consumer operations.
package workqueue

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/field-eng-monitors/internal/cond"
	log "github.com/sirupsen/logrus"
)

// ErrInvalidPriority is returned by [Queue.Enqueue] if the priority is
// outside of the range of configured priority classes.
var ErrInvalidPriority = errors.New("invalid priority")

// An Item is a value that has passed through a [Queue]. Items with a
// lower Priority are more urgent. Seq records the order in which
// [Queue.Enqueue] was called and breaks ties within a priority class.
type Item[T any] struct {
	Value    T
	Priority int
	Seq      uint64
}

// Less orders items lexicographically on (Priority, Seq).
func (i Item[T]) Less(o Item[T]) bool {
	if i.Priority != o.Priority {
		return i.Priority < o.Priority
	}
	return i.Seq < o.Seq
}

// A Queue holds at most a fixed number of items and hands them out in
// priority order. Producers block while the Queue is full and consumers
// block while it is empty.
//
// Priorities are in the range [1, classes].
//
// A Queue is internally synchronized and is safe for concurrent use. A
// Queue should not be copied after it has been created.
type Queue[T any] struct {
	capacity int
	classes  int
	nextSeq  atomic.Uint64

	mu struct {
		sync.Mutex
		items    itemHeap[T]
		notEmpty *cond.Var // Consumers wait here.
		notFull  *cond.Var // Producers wait here.
	}
}

// New constructs a Queue with the given capacity and number of priority
// classes.
func New[T any](capacity, classes int) (*Queue[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("capacity must be positive: %d", capacity)
	}
	if classes <= 0 {
		return nil, fmt.Errorf("priority classes must be positive: %d", classes)
	}
	q := &Queue[T]{
		capacity: capacity,
		classes:  classes,
	}
	q.mu.items = make(itemHeap[T], 0, capacity)
	q.mu.notEmpty = cond.New(&q.mu)
	q.mu.notFull = cond.New(&q.mu)
	return q, nil
}

// Capacity returns the maximum number of items the Queue will hold.
func (q *Queue[T]) Capacity() int {
	return q.capacity
}

// Dequeue removes and returns the most urgent item, blocking while the
// Queue is empty. If the context is canceled while waiting, the zero
// Item and [context.Cause] are returned.
func (q *Queue[T]) Dequeue(ctx context.Context) (Item[T], error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.mu.items) == 0 {
		if err := q.mu.notEmpty.Wait(ctx); err != nil {
			return Item[T]{}, err
		}
	}

	item := heap.Pop(&q.mu.items).(Item[T])
	// Exactly one slot was freed, so exactly one producer may proceed.
	q.mu.notFull.Signal()
	return item, nil
}

// Enqueue adds the value to the Queue, blocking while the Queue is at
// capacity. The returned Item records the sequence number assigned to
// the value. If the context is canceled while waiting, the value is not
// enqueued and [context.Cause] is returned.
func (q *Queue[T]) Enqueue(ctx context.Context, value T, priority int) (Item[T], error) {
	if priority < 1 || priority > q.classes {
		return Item[T]{}, fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidPriority, priority, q.classes)
	}
	item := Item[T]{
		Value:    value,
		Priority: priority,
		Seq:      q.nextSeq.Add(1),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.mu.items) >= q.capacity {
		log.WithFields(log.Fields{
			"priority": priority,
			"seq":      item.Seq,
		}).Trace("work queue full; producer waiting")
		if err := q.mu.notFull.Wait(ctx); err != nil {
			return Item[T]{}, err
		}
	}

	heap.Push(&q.mu.items, item)
	q.mu.notEmpty.Signal()
	return item, nil
}

// IsEmpty returns true if there are no items in the Queue.
func (q *Queue[T]) IsEmpty() bool {
	return q.Size() == 0
}

// Size returns the number of items in the Queue.
func (q *Queue[T]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.mu.items)
}

// itemHeap implements [heap.Interface].
type itemHeap[T any] []Item[T]

var _ heap.Interface = (*itemHeap[int])(nil)

func (h itemHeap[T]) Len() int           { return len(h) }
func (h itemHeap[T]) Less(i, j int) bool { return h[i].Less(h[j]) }
func (h itemHeap[T]) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *itemHeap[T]) Push(x any) {
	*h = append(*h, x.(Item[T]))
}

func (h *itemHeap[T]) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = Item[T]{}
	*h = old[:n-1]
	return item
}
