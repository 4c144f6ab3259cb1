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

package stock

import (
	"context"
	"time"

	"github.com/cockroachdb/field-eng-powertools/stopper"
	log "github.com/sirupsen/logrus"
)

// Start launches the replenisher within the stopper. It runs until the
// stopper begins to stop.
func (m *Monitor) Start(ctx *stopper.Context) {
	ctx.Go(func(ctx *stopper.Context) error {
		return m.Run(ctx)
	})
}

// Run is the replenisher loop. It waits, without polling, until the
// ledger needs restocking, sleeps for the restock delay without holding
// the monitor's lock, and then calls [Monitor.Replenish]. Run returns
// nil once the stopper is stopping, or the context's error if it is
// canceled outright.
func (m *Monitor) Run(ctx *stopper.Context) error {
	// Translate a graceful stop into a canceled wait.
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-ctx.Stopping():
			cancel()
		case <-waitCtx.Done():
		}
	}()

	log.WithField("lowWater", m.cfg.LowWater).Debug("replenisher started")
	defer log.Debug("replenisher stopped")

	for {
		if err := m.WaitLow(waitCtx); err != nil {
			return stopErr(ctx)
		}

		log.WithFields(log.Fields{
			"delay": m.cfg.RestockDelay,
			"stock": m.Snapshot(),
		}).Info("low stock; ordering delivery")

		timer := time.NewTimer(m.cfg.RestockDelay)
		select {
		case <-timer.C:
		case <-waitCtx.Done():
			timer.Stop()
			return stopErr(ctx)
		}

		m.Replenish()
		cycles, _ := m.Restocks()
		log.WithFields(log.Fields{
			"cycle": cycles,
			"stock": m.Snapshot(),
		}).Info("delivery complete")
	}
}

// stopErr distinguishes a graceful stop from a hard cancellation.
func stopErr(ctx *stopper.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}
