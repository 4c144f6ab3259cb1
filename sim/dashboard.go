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
	"fmt"
	"time"

	"github.com/cockroachdb/field-eng-monitors/finance"
	"github.com/cockroachdb/field-eng-monitors/seating"
	"github.com/cockroachdb/field-eng-powertools/stopper"
	log "github.com/sirupsen/logrus"
)

// A Snapshot is a point-in-time view of every monitor. The individual
// readings are taken independently, so the view as a whole is only
// approximately consistent.
type Snapshot struct {
	At       time.Time
	Finance  finance.Stats
	Queued   int
	Seats    seating.Availability
	Stock    map[string]int
	StockLow bool
	Tools    map[string]int // Free units per class.
}

// Snapshot reads the current state of the monitors.
func (s *Simulation) Snapshot() Snapshot {
	tools := make(map[string]int)
	for _, name := range s.reg.Tools.Classes() {
		if n, err := s.reg.Tools.Available(name); err == nil {
			tools[name] = n
		}
	}
	return Snapshot{
		At:       time.Now(),
		Finance:  s.reg.Finance.Stats(),
		Queued:   s.reg.Orders.Size(),
		Seats:    s.reg.Seats.Available(),
		Stock:    s.reg.Stock.Snapshot(),
		StockLow: s.reg.Stock.IsLow(),
		Tools:    tools,
	}
}

// Fields renders the snapshot as structured log fields.
func (s Snapshot) Fields() log.Fields {
	return log.Fields{
		"finance":  s.Finance.String(),
		"queued":   s.Queued,
		"seats":    fmt.Sprintf("%d reserved, %d shared", s.Seats.Reserved, s.Seats.Shared),
		"stock":    s.Stock,
		"stockLow": s.StockLow,
		"tools":    s.Tools,
	}
}

// dashboard logs a snapshot periodically and once more on the way out.
func (s *Simulation) dashboard(ctx *stopper.Context) error {
	ticker := time.NewTicker(s.cfg.Simulation.DashboardInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			log.WithFields(s.Snapshot().Fields()).Info("dashboard")
		case <-ctx.Done():
			return nil
		case <-ctx.Stopping():
			log.WithFields(s.Snapshot().Fields()).Info("dashboard (final)")
			return nil
		}
	}
}
