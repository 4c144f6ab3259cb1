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

package finance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestConcurrentPayments(t *testing.T) {
	const cashiers = 10
	const payments = 100
	r := require.New(t)
	l := NewLedger()

	var eg errgroup.Group
	for i := 0; i < cashiers; i++ {
		eg.Go(func() error {
			for j := 0; j < payments; j++ {
				if err := l.ProcessPayment(10); err != nil {
					return err
				}
			}
			return nil
		})
	}
	r.NoError(eg.Wait())

	r.Equal(cashiers*payments, l.CustomersServed())
	r.InDelta(float64(cashiers*payments*10), l.Revenue(), 1e-6)
	r.InDelta(10.0, l.Stats().Average(), 1e-9)
}

func TestInvalidPayment(t *testing.T) {
	r := require.New(t)
	l := NewLedger()

	r.ErrorIs(l.ProcessPayment(-1), ErrInvalidAmount)
	r.ErrorIs(l.ProcessPayment(math.NaN()), ErrInvalidAmount)
	r.ErrorIs(l.ProcessPayment(math.Inf(1)), ErrInvalidAmount)
	r.Equal(Stats{}, l.Stats())
	r.Zero(l.Stats().Average())
	r.Equal("revenue 0.00 from 0 customers (avg 0.00)", l.Stats().String())
}
