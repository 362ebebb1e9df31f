// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
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

// Package version parses the loosely semver-shaped version strings the
// Kubernetes node API reports: kubelet versions like "v1.29.3-eks-3025e55"
// and CRI versions like "containerd://1.7.2". Comparisons respect precision,
// so "1.7" matches any 1.7.x.
package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrEmptyVersion      = errors.New("version string is empty")
	ErrTooManyComponents = errors.New("version has more than 3 components")
	ErrNonNumeric        = errors.New("version component is not numeric")
	ErrNegativeComponent = errors.New("version component cannot be negative")
)

// Version is a parsed version number. Precision records how many components
// were present in the source string (1, 2, or 3); comparisons only consider
// significant components. Extras preserves build metadata such as
// "-eks-3025e55" without interpreting it.
type Version struct {
	Major int `json:"major,omitempty" yaml:"major,omitempty"`
	Minor int `json:"minor,omitempty" yaml:"minor,omitempty"`
	Patch int `json:"patch,omitempty" yaml:"patch,omitempty"`

	Precision int    `json:"precision,omitempty" yaml:"precision,omitempty"`
	Extras    string `json:"extras,omitempty" yaml:"extras,omitempty"`
}

// String renders the significant components only; Extras are not included.
func (v Version) String() string {
	switch v.Precision {
	case 1:
		return fmt.Sprintf("%d", v.Major)
	case 2:
		return fmt.Sprintf("%d.%d", v.Major, v.Minor)
	default:
		return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	}
}

// Parse parses a version string. Supported forms: "1", "1.2", "1.2.3", with
// an optional "v" prefix, and trailing metadata after "-" or "+" which is
// preserved in Extras.
func Parse(s string) (Version, error) {
	if s == "" {
		return Version{}, ErrEmptyVersion
	}

	s = strings.TrimPrefix(s, "v")
	var v Version

	// Extras start at the first "-" or "+" that follows a digit; a leading
	// dash would be a malformed (negative) component, not metadata.
	mainPart := s
	for i, ch := range s {
		if (ch == '-' || ch == '+') && i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
			mainPart = s[:i]
			v.Extras = s[i:]
			break
		}
	}

	parts := strings.Split(mainPart, ".")
	if len(parts) > 3 {
		return Version{}, ErrTooManyComponents
	}

	for i, part := range parts {
		if part == "" {
			return Version{}, fmt.Errorf("%w: empty component", ErrNonNumeric)
		}
		num, err := strconv.Atoi(part)
		if err != nil {
			return Version{}, fmt.Errorf("%w: %q", ErrNonNumeric, part)
		}
		if num < 0 {
			return Version{}, fmt.Errorf("%w: %d", ErrNegativeComponent, num)
		}

		switch i {
		case 0:
			v.Major = num
		case 1:
			v.Minor = num
		case 2:
			v.Patch = num
		}
	}

	v.Precision = len(parts)
	return v, nil
}

// ParseRuntime parses a CRI runtime version as reported by the node API,
// e.g. "containerd://1.7.2", returning the runtime name and its version.
func ParseRuntime(s string) (name string, v Version, err error) {
	if s == "" {
		return "", Version{}, ErrEmptyVersion
	}

	name = s
	rest := ""
	if idx := strings.Index(s, "://"); idx >= 0 {
		name = s[:idx]
		rest = s[idx+3:]
	}

	v, err = Parse(rest)
	if err != nil {
		return name, Version{}, fmt.Errorf("invalid runtime version %q: %w", s, err)
	}
	return name, v, nil
}

// MustParse parses a version string and panics on failure. Only for
// hardcoded strings and tests; runtime data goes through Parse.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("MustParse: %v", err))
	}
	return v
}

// EqualsOrNewer reports whether v is equal to or newer than other, compared
// up to v's precision: Version{Major:1, Minor:7, Precision:2} matches any
// 1.7.x.
func (v Version) EqualsOrNewer(other Version) bool {
	if v.Major != other.Major {
		return v.Major > other.Major
	}
	if v.Precision == 1 {
		return true
	}

	if v.Minor != other.Minor {
		return v.Minor > other.Minor
	}
	if v.Precision == 2 {
		return true
	}

	return v.Patch >= other.Patch
}
