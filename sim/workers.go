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

package sim

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/cockroachdb/field-eng-monitors/config"
	"github.com/cockroachdb/field-eng-monitors/internal/tracing"
	"github.com/cockroachdb/field-eng-monitors/registry"
	"github.com/cockroachdb/field-eng-monitors/retry"
	"github.com/cockroachdb/field-eng-monitors/toolset"
	"github.com/cockroachdb/field-eng-powertools/stopper"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	gr "github.com/sethvargo/go-retry"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Simulated pacing, before the time scale is applied.
const (
	browseMin   = time.Second
	browseMax   = 2 * time.Second
	eatMin      = 3 * time.Second
	eatMax      = 5 * time.Second
	serveMin    = time.Second
	serveMax    = 3 * time.Second
	paymentMin  = 15.0
	paymentMax  = 50.0
	stockRetry  = time.Second
	stockTries  = 5
	toolsTries  = 4
	toolsBase   = 100 * time.Millisecond
	toolsMaxGap = 2 * time.Second
)

// PriorityFor maps a dish onto a queue priority class: quick dishes are
// urgent, long ones are slow. The result is clamped to the number of
// configured classes.
func PriorityFor(dish config.Dish, classes int) int {
	var p int
	switch {
	case dish.PrepTime <= 500*time.Millisecond:
		p = 1
	case dish.PrepTime <= 3*time.Second:
		p = 2
	default:
		p = 3
	}
	return min(p, classes)
}

// server takes orders at a steady pace until the run stops.
func (s *Simulation) server(ctx *stopper.Context, id int) error {
	name := fmt.Sprintf("server-%d", id)
	opCtx, cancel := untilStopping(ctx)
	defer cancel()

	for {
		if !sleep(ctx, s.scale(between(serveMin, serveMax))) {
			return nil
		}
		dish := s.cfg.Menu[rand.Intn(len(s.cfg.Menu))]
		if err := s.placeOrder(opCtx, name, dish, PriorityFor(dish, s.cfg.Queue.PriorityClasses)); err != nil {
			if opCtx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (s *Simulation) placeOrder(ctx context.Context, client string, dish config.Dish, priority int) error {
	ctx, span := s.tracer.Start(ctx, "place order", trace.WithSpanKind(trace.SpanKindProducer))
	order := registry.Order{
		ID:     uuid.NewString(),
		Client: client,
		Dish:   dish,
	}
	span.SetAttributes(
		attribute.String("order.id", order.ID),
		attribute.String("order.dish", dish.Name),
		attribute.Int("order.priority", priority),
	)
	item, err := s.reg.Orders.Enqueue(ctx, order, priority)
	tracing.End(span, err)
	if err != nil {
		return err
	}
	s.counters.placed.Add(1)
	log.WithFields(log.Fields{
		"client":   client,
		"dish":     dish.Name,
		"order":    order.ID,
		"priority": item.Priority,
	}).Debug("order placed")
	return nil
}

// cook prepares orders until the run stops.
func (s *Simulation) cook(ctx *stopper.Context, id int) error {
	name := fmt.Sprintf("cook-%d", id)
	opCtx, cancel := untilStopping(ctx)
	defer cancel()

	for {
		item, err := s.reg.Orders.Dequeue(opCtx)
		if err != nil {
			if opCtx.Err() != nil {
				return nil
			}
			return err
		}
		if err := s.prepare(ctx, name, item.Value); err != nil {
			s.counters.abandoned.Add(1)
			log.WithError(err).WithFields(log.Fields{
				"cook":  name,
				"dish":  item.Value.Dish.Name,
				"order": item.Value.ID,
			}).Warn("order abandoned")
			continue
		}
		s.counters.cooked.Add(1)
	}
}

// prepare gathers the ingredients and tools for an order and cooks it.
// Ingredients are drawn first; a kitchen that then fails to get its
// tools discards them.
func (s *Simulation) prepare(ctx *stopper.Context, cook string, order registry.Order) error {
	spanCtx, span := s.tracer.Start(ctx, "cook order", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("order.id", order.ID),
		attribute.String("order.dish", order.Dish.Name),
		attribute.String("cook", cook),
	)
	var err error
	defer func() { tracing.End(span, err) }()

	stockBackoff := gr.WithMaxRetries(stockTries, gr.NewConstant(max(s.scale(stockRetry), time.Millisecond)))
	err = retry.Retry(ctx, stockBackoff, func(*stopper.Context) error {
		ok, err := s.reg.Stock.TryConsume(order.Dish.Ingredients)
		if err != nil {
			return err
		}
		if !ok {
			span.AddEvent("waiting for ingredients")
			return errors.Wrap(retry.ErrRetriable, "insufficient ingredients")
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "ingredients")
	}

	if len(order.Dish.Tools) == 0 {
		err = s.cookFor(spanCtx, order.Dish.PrepTime)
		return err
	}

	toolsBackoff, err := retry.NewExpBackoff(toolsBase, toolsMaxGap, toolsTries)
	if err != nil {
		return err
	}
	err = retry.Retry(ctx, toolsBackoff, func(*stopper.Context) error {
		err := s.reg.Tools.Do(spanCtx, cook, order.Dish.Tools, s.cfg.Tools.Timeout,
			func(ctx context.Context) error {
				return s.cookFor(ctx, order.Dish.PrepTime)
			})
		if errors.Is(err, toolset.ErrAcquireTimeout) {
			span.AddEvent("waiting for tools")
			return fmt.Errorf("%w: %w", retry.ErrRetriable, err)
		}
		return err
	})
	if err != nil {
		err = errors.Wrap(err, "tools")
	}
	return err
}

// cookFor simulates the preparation time of a dish.
func (s *Simulation) cookFor(ctx context.Context, prep time.Duration) error {
	timer := time.NewTimer(s.scale(prep))
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// client visits once: takes a seat, orders, eats, pays, and leaves.
// Every PriorityEvery-th client is a priority guest.
func (s *Simulation) client(ctx *stopper.Context, n int) error {
	sim := s.cfg.Simulation
	name := fmt.Sprintf("client-%d", n)
	vip := sim.PriorityEvery > 0 && n%sim.PriorityEvery == 0
	opCtx, cancel := untilStopping(ctx)
	defer cancel()

	// Arrivals are spread over the first half of the run.
	if !sleep(ctx, between(0, sim.Duration/2)) {
		return nil
	}

	logger := log.WithFields(log.Fields{"client": name, "priority": vip})
	seat, err := s.reg.Seats.Acquire(opCtx, vip)
	if err != nil {
		if opCtx.Err() != nil {
			return nil
		}
		return err
	}
	s.counters.seated.Add(1)
	logger = logger.WithField("seat", seat.String())
	logger.Debug("seated")
	defer func() {
		if err := s.reg.Seats.Release(seat); err != nil {
			logger.WithError(err).Error("could not release seat")
		}
	}()

	if !sleep(ctx, s.scale(between(browseMin, browseMax))) {
		return nil
	}
	dish := s.cfg.Menu[rand.Intn(len(s.cfg.Menu))]
	priority := 2
	if vip {
		priority = 1
	}
	if err := s.placeOrder(opCtx, name, dish, min(priority, s.cfg.Queue.PriorityClasses)); err != nil {
		if opCtx.Err() != nil {
			return nil
		}
		return err
	}

	if !sleep(ctx, s.scale(between(eatMin, eatMax))) {
		return nil
	}
	amount := paymentMin + rand.Float64()*(paymentMax-paymentMin)
	if err := s.reg.Finance.ProcessPayment(amount); err != nil {
		return err
	}
	s.counters.served.Add(1)
	logger.WithField("amount", fmt.Sprintf("%.2f", amount)).Debug("paid and left")
	return nil
}

// between returns a uniformly random duration in [lo, hi).
func between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo)))
}
