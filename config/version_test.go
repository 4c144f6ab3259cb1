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

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name    string
		version string
		want    *Version
		wantErr bool
	}{
		{
			name:    "valid version",
			version: "v1.0.0",
			want:    &Version{version: "v1.0.0"},
		},
		{
			name:    "missing prefix",
			version: "1.2.3",
			want:    &Version{version: "v1.2.3"},
		},
		{
			name:    "short form",
			version: "v1.1",
			want:    &Version{version: "v1.1.0"},
		},
		{
			name:    "valid pre-release",
			version: "v1.1.0-alpha.1",
			want:    &Version{version: "v1.1.0-alpha.1"},
		},
		{
			name:    "invalid version",
			version: "one",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := assert.New(t)
			got, err := ParseVersion(tt.version)
			if tt.wantErr {
				a.Error(err)
				return
			}
			a.NoError(err)
			a.Equal(tt.want, got)
		})
	}
}

func TestMinVersion(t *testing.T) {
	tests := []struct {
		name       string
		version    string
		minVersion string
		want       bool
	}{
		{"equal versions", "v1.0.0", "v1.0.0", true},
		{"greater version", "v1.0.1", "v1.0.0", true},
		{"lesser version", "v1.0.0", "v1.0.1", false},
		{"pre-release less than release", "v1.1.0-alpha.1", "v1.1.0", false},
		{"release greater than pre-release", "v1.1.0", "v1.1.0-alpha.1", true},
		{"major version greater", "v2.0.0", "v1.9.9", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := MustVersion(tt.version)
			if got := v.MinVersion(MustVersion(tt.minVersion)); got != tt.want {
				t.Errorf("Version.MinVersion() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompatible(t *testing.T) {
	a := assert.New(t)
	a.NoError(MustVersion(CurrentVersion).Compatible())
	a.NoError(MustVersion("v1.0.0").Compatible())
	a.ErrorContains(MustVersion("v0.9.0").Compatible(), "older than")
	a.ErrorContains(MustVersion("v2.0.0").Compatible(), "not supported")
	a.Panics(func() { MustVersion("nope") })
}
