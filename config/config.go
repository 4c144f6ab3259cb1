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

// Package config contains the settings for the monitors and the
// simulation that drives them.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is a serializable representation of every tunable constant.
// The zero value is not useful; start from [Default].
type Config struct {
	Version    string           `yaml:"version"`
	Queue      QueueConfig      `yaml:"queue"`
	Seating    SeatingConfig    `yaml:"seating"`
	Tools      ToolsConfig      `yaml:"tools"`
	Stock      StockConfig      `yaml:"stock"`
	Menu       []Dish           `yaml:"menu"`
	Simulation SimulationConfig `yaml:"simulation"`
}

// QueueConfig controls the order queue.
type QueueConfig struct {
	Capacity        int `yaml:"capacity"`
	PriorityClasses int `yaml:"priorityClasses"`
}

// SeatingConfig controls the seat allocator.
type SeatingConfig struct {
	Reserved       int           `yaml:"reserved"`
	Shared         int           `yaml:"shared"`
	ReserveTimeout time.Duration `yaml:"reserveTimeout"`
}

// ToolsConfig controls the kitchen tool pool.
type ToolsConfig struct {
	Pool    map[string]int `yaml:"pool"`
	Timeout time.Duration  `yaml:"timeout"`
}

// StockConfig controls the inventory and its restocking policy.
type StockConfig struct {
	Initial       map[string]int `yaml:"initial"`
	LowWater      int            `yaml:"lowWater"`
	RestockAmount int            `yaml:"restockAmount"`
	RestockDelay  time.Duration  `yaml:"restockDelay"`
}

// A Dish is an item on the menu.
type Dish struct {
	Name        string         `yaml:"name"`
	PrepTime    time.Duration  `yaml:"prepTime"`
	Ingredients map[string]int `yaml:"ingredients"`
	Tools       []string       `yaml:"tools,omitempty"`
}

// SimulationConfig controls the worker population of a simulation run.
type SimulationConfig struct {
	Servers int `yaml:"servers"`
	Cooks   int `yaml:"cooks"`
	Clients int `yaml:"clients"`
	// Every Nth client is a priority (VIP) client. Zero disables.
	PriorityEvery     int           `yaml:"priorityEvery"`
	Duration          time.Duration `yaml:"duration"`
	DashboardInterval time.Duration `yaml:"dashboardInterval"`
	// Prep, browse, and eating times are multiplied by this factor.
	TimeScale float64 `yaml:"timeScale"`
	// Graceful drain time after the duration elapses.
	GracePeriod time.Duration `yaml:"gracePeriod"`
}

// Default returns a Config populated with the stock restaurant values.
// Callers may modify the returned struct.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Queue: QueueConfig{
			Capacity:        10,
			PriorityClasses: 3,
		},
		Seating: SeatingConfig{
			Reserved:       5,
			Shared:         10,
			ReserveTimeout: 30 * time.Second,
		},
		Tools: ToolsConfig{
			Pool:    map[string]int{"fryer": 1, "grill": 2, "oven": 3},
			Timeout: 2 * time.Second,
		},
		Stock: StockConfig{
			Initial: map[string]int{
				"cheese": 50,
				"dough":  50,
				"meat":   50,
				"milk":   50,
				"sugar":  50,
				"tomato": 50,
			},
			LowWater:      10,
			RestockAmount: 50,
			RestockDelay:  3 * time.Second,
		},
		Menu: []Dish{
			{
				Name:        "dessert",
				PrepTime:    500 * time.Millisecond,
				Ingredients: map[string]int{"milk": 1, "sugar": 1},
			},
			{
				Name:        "steak",
				PrepTime:    3 * time.Second,
				Ingredients: map[string]int{"meat": 1},
				Tools:       []string{"grill"},
			},
			{
				Name:        "pasta",
				PrepTime:    2500 * time.Millisecond,
				Ingredients: map[string]int{"dough": 1, "tomato": 1},
				Tools:       []string{"oven"},
			},
			{
				Name:        "pizza",
				PrepTime:    5 * time.Second,
				Ingredients: map[string]int{"cheese": 1, "dough": 1, "tomato": 1},
				Tools:       []string{"oven", "fryer"},
			},
		},
		Simulation: SimulationConfig{
			Servers:           4,
			Cooks:             3,
			Clients:           50,
			PriorityEvery:     5,
			Duration:          30 * time.Second,
			DashboardInterval: 5 * time.Second,
			TimeScale:         1,
			GracePeriod:       5 * time.Second,
		},
	}
}

// Load reads a YAML file on top of [Default] and validates the result.
// Unknown keys are rejected. Maps and the menu present in the file
// replace the defaults rather than extending them.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	defaults := Default()
	cfg := Default()
	// yaml.v3 decodes into existing maps, merging keys.
	cfg.Tools.Pool = nil
	cfg.Stock.Initial = nil
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if cfg.Tools.Pool == nil {
		cfg.Tools.Pool = defaults.Tools.Pool
	}
	if cfg.Stock.Initial == nil {
		cfg.Stock.Initial = defaults.Stock.Initial
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Marshal renders the Config as YAML.
func (c *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Validate returns an aggregated error describing invalid settings, or
// nil.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	if v, err := ParseVersion(c.Version); err != nil {
		errs = append(errs, err)
	} else if err := v.Compatible(); err != nil {
		errs = append(errs, err)
	}

	check(c.Queue.Capacity > 0, "queue.capacity must be > 0")
	check(c.Queue.PriorityClasses > 0, "queue.priorityClasses must be > 0")

	check(c.Seating.Reserved >= 0, "seating.reserved must be >= 0")
	check(c.Seating.Shared > 0, "seating.shared must be > 0")
	check(c.Seating.ReserveTimeout >= 0, "seating.reserveTimeout must be >= 0")

	check(len(c.Tools.Pool) > 0, "tools.pool must not be empty")
	for name, count := range c.Tools.Pool {
		check(count > 0, "tools.pool.%s must be > 0", name)
	}
	check(c.Tools.Timeout > 0, "tools.timeout must be > 0")

	check(len(c.Stock.Initial) > 0, "stock.initial must not be empty")
	for name, qty := range c.Stock.Initial {
		check(qty >= 0, "stock.initial.%s must be >= 0", name)
	}
	check(c.Stock.LowWater >= 0, "stock.lowWater must be >= 0")
	check(c.Stock.RestockAmount > 0, "stock.restockAmount must be > 0")
	check(c.Stock.RestockDelay >= 0, "stock.restockDelay must be >= 0")

	check(len(c.Menu) > 0, "menu must not be empty")
	seen := make(map[string]bool, len(c.Menu))
	for _, dish := range c.Menu {
		check(dish.Name != "", "menu entries must be named")
		check(!seen[dish.Name], "menu.%s is duplicated", dish.Name)
		seen[dish.Name] = true
		check(dish.PrepTime >= 0, "menu.%s.prepTime must be >= 0", dish.Name)
		for ingredient, qty := range dish.Ingredients {
			_, ok := c.Stock.Initial[ingredient]
			check(ok, "menu.%s uses unstocked ingredient %q", dish.Name, ingredient)
			check(qty >= 0, "menu.%s.ingredients.%s must be >= 0", dish.Name, ingredient)
		}
		for _, tool := range dish.Tools {
			_, ok := c.Tools.Pool[tool]
			check(ok, "menu.%s uses unknown tool %q", dish.Name, tool)
		}
	}

	sim := c.Simulation
	check(sim.Servers >= 0, "simulation.servers must be >= 0")
	check(sim.Cooks >= 0, "simulation.cooks must be >= 0")
	check(sim.Clients >= 0, "simulation.clients must be >= 0")
	check(sim.PriorityEvery >= 0, "simulation.priorityEvery must be >= 0")
	check(sim.Duration > 0, "simulation.duration must be > 0")
	check(sim.DashboardInterval >= 0, "simulation.dashboardInterval must be >= 0")
	check(sim.TimeScale >= 0, "simulation.timeScale must be >= 0")
	check(sim.GracePeriod >= 0, "simulation.gracePeriod must be >= 0")

	return errors.Join(errs...)
}
