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
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// CurrentVersion is the configuration layout written by this build.
const CurrentVersion = "v1.1.0"

// minVersion is the oldest configuration layout that can be loaded.
var minVersion = MustVersion("v1.0.0")

// Version holds the semantic version of a configuration file's layout.
type Version struct {
	version string
}

// ParseVersion validates a semantic version string. The leading "v"
// is optional.
func ParseVersion(version string) (*Version, error) {
	if !strings.HasPrefix(version, "v") {
		version = "v" + version
	}
	if !semver.IsValid(version) {
		return nil, fmt.Errorf("not a semver: %q", version)
	}
	return &Version{version: semver.Canonical(version)}, nil
}

// MustVersion panics if the version string is not a valid semantic
// version.
func MustVersion(version string) *Version {
	v, err := ParseVersion(version)
	if err != nil {
		panic(err)
	}
	return v
}

// Compatible returns an error if a file with this layout cannot be
// loaded: it is older than the minimum supported layout, or from a
// newer major version.
func (v *Version) Compatible() error {
	if !v.MinVersion(minVersion) {
		return fmt.Errorf("configuration version %s is older than %s", v, minVersion)
	}
	if semver.Major(v.version) != semver.Major(CurrentVersion) {
		return fmt.Errorf("configuration version %s is not supported by %s", v, CurrentVersion)
	}
	return nil
}

// MinVersion returns true if the version is at least the specified
// minimum.
func (v *Version) MinVersion(minVersion *Version) bool {
	return semver.Compare(v.version, minVersion.version) >= 0
}

// String implements the Stringer interface.
func (v *Version) String() string {
	return v.version
}
