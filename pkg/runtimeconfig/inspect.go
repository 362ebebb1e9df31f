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

package runtimeconfig

import "strings"

const (
	// vendorMarker and shimMarker are the two substrings whose joint presence
	// marks a containerd config as wiring in the NVIDIA runtime. This is a
	// deliberate heuristic, not a TOML parse: existing deployments depend on
	// this exact case-folded signal, so it must not be tightened. Known
	// precision limit: a config that merely mentions both words (e.g. in a
	// comment) is reported as configured.
	vendorMarker = "nvidia"
	shimMarker   = "runc"

	// binaryNameKey is the config key whose assignment declares the runtime
	// binary path, e.g. `BinaryName = "/usr/bin/nvidia-container-runtime"`.
	binaryNameKey = "BinaryName"
)

// Inspection is the result of examining one containerd configuration text.
type Inspection struct {
	// Configured reports whether the NVIDIA runtime shim is wired in.
	Configured bool

	// BinaryName is the declared runtime binary path, empty when the config
	// declares none.
	BinaryName string
}

// Inspect examines containerd configuration content for NVIDIA runtime wiring.
// It never fails: unrecognized content simply yields a zero Inspection.
func Inspect(content string) Inspection {
	return Inspection{
		Configured: Configured(content),
		BinaryName: BinaryName(content),
	}
}

// Configured reports whether the content wires in the NVIDIA runtime:
// a case-insensitive match of both the vendor marker and the low-level
// runtime shim marker.
func Configured(content string) bool {
	lower := strings.ToLower(content)
	return strings.Contains(lower, vendorMarker) && strings.Contains(lower, shimMarker)
}

// BinaryName extracts the declared runtime binary path from the content by
// scanning line by line for a BinaryName assignment. The first match wins;
// surrounding whitespace and quote characters are stripped. Returns an empty
// string when no assignment is present.
func BinaryName(content string) string {
	for line := range strings.Lines(content) {
		if !strings.Contains(line, binaryNameKey) || !strings.Contains(line, "=") {
			continue
		}
		_, rhs, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		v := strings.TrimSpace(rhs)
		v = strings.Trim(v, `"`)
		v = strings.Trim(v, `'`)
		return strings.TrimSpace(v)
	}
	return ""
}

// CandidatePaths returns the fixed, priority-ordered list of filesystem
// locations where a node's containerd configuration may live. The order is a
// contract: the first existing path is authoritative for "does this node have
// a config", so it must be deterministic across runs.
func CandidatePaths() []string {
	return []string{
		"/var/lib/k8s-containerd/k8s-containerd/etc/containerd/config.toml",
		"/etc/containerd/config.toml",
		"/var/lib/rancher/k3s/agent/etc/containerd/config.toml",
		"/etc/k3s/containerd/config.toml",
		"/var/lib/containerd/config.toml",
	}
}
