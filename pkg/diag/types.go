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

package diag

// RuntimeConfigRecord is the examination result for one candidate containerd
// config location on one node. One record exists per candidate path whether
// or not the file exists.
type RuntimeConfigRecord struct {
	// Path is the location on the node's filesystem.
	Path string `json:"path" yaml:"path"`

	// Exists reports whether the file is present.
	Exists bool `json:"exists" yaml:"exists"`

	// Configured reports whether the content carries the NVIDIA runtime
	// markers.
	Configured bool `json:"configured" yaml:"configured"`

	// BinaryName is the runtime binary path declared in the config, empty
	// when not declared or not configured.
	BinaryName string `json:"binaryName,omitempty" yaml:"binaryName,omitempty"`

	// BinaryExists reports whether the declared binary is present on the
	// node. Only meaningful when BinaryName is set.
	BinaryExists bool `json:"binaryExists" yaml:"binaryExists"`

	// Content is the raw config file content, kept for report excerpts.
	Content string `json:"-" yaml:"-"`

	// Error records a per-path examination failure. Other paths on the same
	// node are unaffected.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Outcome is the complete diagnostic result for one node. A node that could
// not be examined still gets an Outcome with Error set; the orchestrator
// produces exactly one Outcome per requested node.
type Outcome struct {
	// Node is the examined node's name.
	Node string `json:"node" yaml:"node"`

	// AgentDeployed reports whether the inspection pod reached ready state.
	AgentDeployed bool `json:"agentDeployed" yaml:"agentDeployed"`

	// Records holds one entry per candidate config path, in priority order.
	Records []RuntimeConfigRecord `json:"records,omitempty" yaml:"records,omitempty"`

	// ProbeOutput is the raw output of the on-node symptom probe.
	ProbeOutput string `json:"probeOutput,omitempty" yaml:"probeOutput,omitempty"`

	// Error is set when the node could not be examined at all.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Configured reports whether any existing config on the node declares the
// NVIDIA runtime.
func (o *Outcome) Configured() bool {
	for _, r := range o.Records {
		if r.Exists && r.Configured {
			return true
		}
	}
	return false
}

// MissingBinary returns the first configured record whose declared runtime
// binary is absent, or nil.
func (o *Outcome) MissingBinary() *RuntimeConfigRecord {
	for i := range o.Records {
		r := &o.Records[i]
		if r.Configured && r.BinaryName != "" && !r.BinaryExists {
			return r
		}
	}
	return nil
}

// HasConfig reports whether any candidate config file exists on the node.
func (o *Outcome) HasConfig() bool {
	for _, r := range o.Records {
		if r.Exists {
			return true
		}
	}
	return false
}
