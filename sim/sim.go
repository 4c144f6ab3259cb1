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

// Package sim drives the monitors with a population of restaurant
// workers: servers and clients produce orders, cooks consume them, and
// a replenisher keeps the pantry stocked.
package sim

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/field-eng-monitors/config"
	"github.com/cockroachdb/field-eng-monitors/registry"
	"github.com/cockroachdb/field-eng-powertools/stopper"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

// Report summarizes a completed run.
type Report struct {
	Final           Snapshot
	OrdersAbandoned int64 // Could not get tools or ingredients in time.
	OrdersCooked    int64
	OrdersPlaced    int64
	OrdersPending   int   // Left in the queue when the run ended.
	ClientsSeated   int64
	ClientsServed   int64 // Paid and left.
	Elapsed         time.Duration
}

// Simulation wires worker loops to a [registry.Registry].
type Simulation struct {
	cfg    *config.Config
	reg    *registry.Registry
	tracer trace.Tracer

	counters struct {
		abandoned atomic.Int64
		cooked    atomic.Int64
		placed    atomic.Int64
		seated    atomic.Int64
		served    atomic.Int64
	}
}

// New constructs a Simulation. The registry must have been built from
// the same configuration.
func New(cfg *config.Config, reg *registry.Registry, tracer trace.Tracer) *Simulation {
	return &Simulation{
		cfg:    cfg,
		reg:    reg,
		tracer: tracer,
	}
}

// Run starts every worker, lets them run for the configured duration or
// until the context is canceled, and then stops them, allowing the
// configured grace period for in-flight work to drain.
func (s *Simulation) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	sim := s.cfg.Simulation
	stop := stopper.WithContext(ctx)

	s.reg.Stock.Start(stop)
	for i := 0; i < sim.Servers; i++ {
		stop.Go(func(ctx *stopper.Context) error { return s.server(ctx, i) })
	}
	for i := 0; i < sim.Cooks; i++ {
		stop.Go(func(ctx *stopper.Context) error { return s.cook(ctx, i) })
	}
	for i := 0; i < sim.Clients; i++ {
		stop.Go(func(ctx *stopper.Context) error { return s.client(ctx, i) })
	}
	if sim.DashboardInterval > 0 {
		stop.Go(func(ctx *stopper.Context) error { return s.dashboard(ctx) })
	}

	log.WithFields(log.Fields{
		"clients":  sim.Clients,
		"cooks":    sim.Cooks,
		"duration": sim.Duration,
		"servers":  sim.Servers,
	}).Info("simulation started")

	timer := time.NewTimer(sim.Duration)
	select {
	case <-timer.C:
	case <-ctx.Done():
		timer.Stop()
	}

	log.WithField("grace", sim.GracePeriod).Info("simulation stopping")
	stop.Stop(sim.GracePeriod)
	if err := stop.Wait(); err != nil &&
		!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, errors.Wrap(err, "simulation workers")
	}

	report := &Report{
		Final:           s.Snapshot(),
		OrdersAbandoned: s.counters.abandoned.Load(),
		OrdersCooked:    s.counters.cooked.Load(),
		OrdersPlaced:    s.counters.placed.Load(),
		OrdersPending:   s.reg.Orders.Size(),
		ClientsSeated:   s.counters.seated.Load(),
		ClientsServed:   s.counters.served.Load(),
		Elapsed:         time.Since(start),
	}
	log.WithFields(log.Fields{
		"abandoned": report.OrdersAbandoned,
		"cooked":    report.OrdersCooked,
		"pending":   report.OrdersPending,
		"placed":    report.OrdersPlaced,
		"served":    report.ClientsServed,
	}).Info("simulation complete")
	return report, nil
}

// scale applies the configured time scale to a simulated duration.
func (s *Simulation) scale(d time.Duration) time.Duration {
	return time.Duration(float64(d) * s.cfg.Simulation.TimeScale)
}

// untilStopping returns a context that is canceled once the stopper
// begins to stop, so that blocking monitor calls return promptly during
// a graceful shutdown.
func untilStopping(ctx *stopper.Context) (context.Context, context.CancelFunc) {
	ret, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-ctx.Stopping():
			cancel()
		case <-ret.Done():
		}
	}()
	return ret, cancel
}

// sleep waits for the duration, returning false if the stopper began to
// stop or was canceled first.
func sleep(ctx *stopper.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Stopping():
		return false
	case <-ctx.Done():
		return false
	}
}
