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

package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/gpu-runtime-doctor/pkg/diag"
	"github.com/NVIDIA/gpu-runtime-doctor/pkg/header"
	"github.com/NVIDIA/gpu-runtime-doctor/pkg/release"
)

func configuredOutcome(node string, binaryExists bool) *diag.Outcome {
	return &diag.Outcome{
		Node:          node,
		AgentDeployed: true,
		Records: []diag.RuntimeConfigRecord{{
			Path:         "/etc/containerd/config.toml",
			Exists:       true,
			Configured:   true,
			BinaryName:   "/usr/local/nvidia/toolkit/nvidia-container-runtime",
			BinaryExists: binaryExists,
		}},
	}
}

func unconfiguredOutcome(node string) *diag.Outcome {
	return &diag.Outcome{
		Node:          node,
		AgentDeployed: true,
		Records: []diag.RuntimeConfigRecord{{
			Path:   "/etc/containerd/config.toml",
			Exists: true,
		}},
	}
}

func failedOutcome(node, msg string) *diag.Outcome {
	return &diag.Outcome{Node: node, Error: msg}
}

func TestAggregateMixedFleet(t *testing.T) {
	t.Parallel()

	cs := Aggregate(Input{
		Outcomes: map[string]*diag.Outcome{
			"node-ok":      configuredOutcome("node-ok", true),
			"node-missing": configuredOutcome("node-missing", false),
			"node-unconf":  unconfiguredOutcome("node-unconf"),
			"node-broken":  failedOutcome("node-broken", "pod not ready within 60s"),
		},
		Release: &release.Status{
			HelmAvailable: true,
			ReleaseFound:  true,
			Valid:         false,
			Findings:      []string{"toolkit.enabled should be true"},
		},
	}, "1.0.0")

	assert.Equal(t, 4, cs.Summary.TotalNodes)
	assert.Equal(t, 3, cs.Summary.NodesWithConfig)
	assert.Equal(t, 2, cs.Summary.NodesConfigured)
	assert.Equal(t, 1, cs.Summary.NodesMissingBinary)
	assert.Equal(t, 1, cs.Summary.NodesWithErrors)
	assert.False(t, cs.Healthy())

	// Issue ordering: missing binary, unconfigured, examination error,
	// chart findings.
	require.Len(t, cs.Issues, 4)
	assert.Equal(t, IssueMissingBinary, cs.Issues[0].Kind)
	assert.Equal(t, "node-missing", cs.Issues[0].Node)
	assert.Equal(t, IssueUnconfigured, cs.Issues[1].Kind)
	assert.Equal(t, "node-unconf", cs.Issues[1].Node)
	assert.Equal(t, IssueExaminationFailed, cs.Issues[2].Kind)
	assert.Equal(t, "node-broken", cs.Issues[2].Node)
	assert.Equal(t, IssueChartMisconfigured, cs.Issues[3].Kind)
	assert.Empty(t, cs.Issues[3].Node)
}

func TestAggregateHealthyFleet(t *testing.T) {
	t.Parallel()

	cs := Aggregate(Input{
		Outcomes: map[string]*diag.Outcome{
			"a": configuredOutcome("a", true),
			"b": configuredOutcome("b", true),
		},
		Release: &release.Status{HelmAvailable: true, ReleaseFound: true, Valid: true},
	}, "1.0.0")

	assert.True(t, cs.Healthy())
	assert.Empty(t, cs.Issues)
	assert.Equal(t, 2, cs.Summary.NodesConfigured)
}

func TestAggregateEmpty(t *testing.T) {
	t.Parallel()

	cs := Aggregate(Input{}, "1.0.0")
	assert.True(t, cs.Healthy())
	assert.Equal(t, 0, cs.Summary.TotalNodes)
}

func TestAggregateStampsHeader(t *testing.T) {
	t.Parallel()

	cs := Aggregate(Input{}, "1.2.3")
	assert.Equal(t, header.KindClusterStatus, cs.Kind)
	assert.Equal(t, header.APIVersion, cs.APIVersion)
	require.NotNil(t, cs.Metadata)
}

func TestAggregateDeterministicWithinKind(t *testing.T) {
	t.Parallel()

	cs := Aggregate(Input{
		Outcomes: map[string]*diag.Outcome{
			"zebra": unconfiguredOutcome("zebra"),
			"alpha": unconfiguredOutcome("alpha"),
			"mango": unconfiguredOutcome("mango"),
		},
	}, "1.0.0")

	require.Len(t, cs.Issues, 3)
	assert.Equal(t, "alpha", cs.Issues[0].Node)
	assert.Equal(t, "mango", cs.Issues[1].Node)
	assert.Equal(t, "zebra", cs.Issues[2].Node)
}

func TestNodesWithIssue(t *testing.T) {
	t.Parallel()

	cs := Aggregate(Input{
		Outcomes: map[string]*diag.Outcome{
			"b": unconfiguredOutcome("b"),
			"a": unconfiguredOutcome("a"),
			"c": configuredOutcome("c", true),
		},
	}, "1.0.0")

	assert.Equal(t, []string{"a", "b"}, cs.NodesWithIssue(IssueUnconfigured))
	assert.Empty(t, cs.NodesWithIssue(IssueMissingBinary))
}

func TestAggregateReleaseNotFoundIsNoFinding(t *testing.T) {
	t.Parallel()

	// A missing release is reported in the release section, not duplicated
	// as chart findings.
	cs := Aggregate(Input{
		Release: &release.Status{HelmAvailable: true, ReleaseFound: false},
	}, "1.0.0")

	assert.Empty(t, cs.NodesWithIssue(IssueChartMisconfigured))
	assert.True(t, cs.Healthy())
}
