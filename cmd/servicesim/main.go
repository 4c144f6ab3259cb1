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

// Command servicesim runs the restaurant simulation against the
// monitors.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/field-eng-monitors/config"
	"github.com/cockroachdb/field-eng-monitors/internal/tracing"
	"github.com/cockroachdb/field-eng-monitors/registry"
	"github.com/cockroachdb/field-eng-monitors/sim"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const serviceName = "servicesim"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:          serviceName,
		Short:        "Restaurant simulation built on context-aware monitors",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := log.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			log.SetLevel(level)
			log.SetOutput(cmd.ErrOrStderr())
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "logLevel", "info", "log verbosity (trace, debug, info, warn, error)")
	root.AddCommand(newRunCmd(), newConfigCmd(), newVersionCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var (
		configPath string
		duration   time.Duration
		tracePath  string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the simulation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				var err error
				if cfg, err = config.Load(configPath); err != nil {
					return err
				}
			}
			if duration > 0 {
				cfg.Simulation.Duration = duration
			}

			reg, err := registry.New(cfg)
			if err != nil {
				return err
			}

			provider := tracing.NoopProvider()
			if tracePath != "" {
				f, err := os.Create(tracePath)
				if err != nil {
					return errors.Wrap(err, "trace output")
				}
				defer f.Close()
				if provider, err = tracing.NewWriterProvider(serviceName, cfg.Version, f); err != nil {
					return err
				}
			}
			defer func() {
				if err := provider.Shutdown(context.Background()); err != nil {
					log.WithError(err).Warn("could not flush traces")
				}
			}()

			report, err := sim.New(cfg, reg, provider.Tracer(serviceName)).Run(cmd.Context())
			if err != nil {
				return err
			}
			return printReport(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "YAML configuration file; defaults are used when empty")
	cmd.Flags().DurationVar(&duration, "duration", 0, "override the configured run duration")
	cmd.Flags().StringVar(&tracePath, "trace", "", "write spans to this file")
	return cmd
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the default configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := config.Default().Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the configuration version this build understands",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s config %s\n", serviceName, config.CurrentVersion)
		},
	}
}

func printReport(w io.Writer, report *sim.Report) error {
	_, err := fmt.Fprintf(w, `elapsed:   %s
orders:    %d placed, %d cooked, %d abandoned, %d pending
clients:   %d seated, %d served
finance:   %s
stock:     %v
`,
		report.Elapsed.Round(time.Millisecond),
		report.OrdersPlaced, report.OrdersCooked, report.OrdersAbandoned, report.OrdersPending,
		report.ClientsSeated, report.ClientsServed,
		report.Final.Finance,
		report.Final.Stock,
	)
	return err
}
