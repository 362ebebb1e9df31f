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

// Package diag runs the per-node GPU runtime diagnosis across a fleet.
//
// The Orchestrator fans node examinations out over a bounded worker pool.
// Each worker provisions an ephemeral privileged inspection pod on its node,
// examines every candidate containerd config location, verifies the declared
// runtime binary, runs a symptom probe, and tears the pod down. Workers never
// fail the run: every failure mode lands inside that node's Outcome, and the
// orchestrator produces exactly one Outcome per requested node. A final sweep
// deletes every derived inspection pod even when the run was cancelled.
//
// LocalInspector is the agentless variant for diagnosing the node the tool
// runs on, producing the same Outcome shape.
package diag
