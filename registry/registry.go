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

// Package registry constructs the monitors once and hands out
// references to them. It holds no locks of its own.
package registry

import (
	"github.com/cockroachdb/field-eng-monitors/config"
	"github.com/cockroachdb/field-eng-monitors/finance"
	"github.com/cockroachdb/field-eng-monitors/seating"
	"github.com/cockroachdb/field-eng-monitors/stock"
	"github.com/cockroachdb/field-eng-monitors/toolset"
	"github.com/cockroachdb/field-eng-monitors/workqueue"
	"github.com/pkg/errors"
)

// An Order is a request for a dish, passed from servers to cooks.
type Order struct {
	ID     string
	Client string
	Dish   config.Dish
}

// Registry holds the shared monitors.
type Registry struct {
	Finance *finance.Ledger
	Orders  *workqueue.Queue[Order]
	Seats   *seating.Allocator
	Stock   *stock.Monitor
	Tools   *toolset.Manager
}

// New validates the configuration and constructs every monitor.
func New(cfg *config.Config) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	orders, err := workqueue.New[Order](cfg.Queue.Capacity, cfg.Queue.PriorityClasses)
	if err != nil {
		return nil, errors.Wrap(err, "order queue")
	}
	seats, err := seating.New(seating.Config{
		Reserved:       cfg.Seating.Reserved,
		Shared:         cfg.Seating.Shared,
		ReserveTimeout: cfg.Seating.ReserveTimeout,
	})
	if err != nil {
		return nil, errors.Wrap(err, "seating")
	}
	inventory, err := stock.New(stock.Config{
		Initial:       cfg.Stock.Initial,
		LowWater:      cfg.Stock.LowWater,
		RestockAmount: cfg.Stock.RestockAmount,
		RestockDelay:  cfg.Stock.RestockDelay,
	})
	if err != nil {
		return nil, errors.Wrap(err, "stock")
	}
	tools, err := toolset.New(cfg.Tools.Pool)
	if err != nil {
		return nil, errors.Wrap(err, "tools")
	}

	return &Registry{
		Finance: finance.NewLedger(),
		Orders:  orders,
		Seats:   seats,
		Stock:   inventory,
		Tools:   tools,
	}, nil
}
