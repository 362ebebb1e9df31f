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
	"fmt"
	"sort"

	"github.com/NVIDIA/gpu-runtime-doctor/pkg/diag"
	"github.com/NVIDIA/gpu-runtime-doctor/pkg/header"
	"github.com/NVIDIA/gpu-runtime-doctor/pkg/k8s/cluster"
	"github.com/NVIDIA/gpu-runtime-doctor/pkg/release"
)

// IssueKind classifies a diagnosed problem. Kinds are ordered by how directly
// they explain a GPU workload failure; see issueRank.
type IssueKind string

const (
	// IssueMissingBinary: the config declares a runtime binary that is not
	// on the node. The most actionable finding, always reported first.
	IssueMissingBinary IssueKind = "MissingRuntimeBinary"

	// IssueUnconfigured: no config on the node declares the NVIDIA runtime.
	IssueUnconfigured IssueKind = "RuntimeNotConfigured"

	// IssueExaminationFailed: the node could not be examined at all.
	IssueExaminationFailed IssueKind = "NodeExaminationFailed"

	// IssueChartMisconfigured: the GPU operator chart deviates from the
	// required toolkit settings.
	IssueChartMisconfigured IssueKind = "ChartMisconfigured"
)

// issueRank orders kinds in the report: concrete on-node breakage first,
// cluster-level configuration last.
var issueRank = map[IssueKind]int{
	IssueMissingBinary:      0,
	IssueUnconfigured:       1,
	IssueExaminationFailed:  2,
	IssueChartMisconfigured: 3,
}

// Issue is one diagnosed problem, attributed to a node when node-scoped.
type Issue struct {
	Kind   IssueKind `json:"kind" yaml:"kind"`
	Node   string    `json:"node,omitempty" yaml:"node,omitempty"`
	Detail string    `json:"detail" yaml:"detail"`
}

// Summary carries fleet-level counts.
type Summary struct {
	TotalNodes         int `json:"totalNodes" yaml:"totalNodes"`
	NodesWithConfig    int `json:"nodesWithConfig" yaml:"nodesWithConfig"`
	NodesConfigured    int `json:"nodesConfigured" yaml:"nodesConfigured"`
	NodesMissingBinary int `json:"nodesMissingBinary" yaml:"nodesMissingBinary"`
	NodesWithErrors    int `json:"nodesWithErrors" yaml:"nodesWithErrors"`
}

// ClusterStatus is the aggregated diagnosis of the whole cluster: discovery
// state, chart inspection, per-node outcomes, and the prioritized issue list.
type ClusterStatus struct {
	header.Header `json:",inline" yaml:",inline"`

	Summary     Summary                   `json:"summary" yaml:"summary"`
	Nodes       []cluster.Node            `json:"nodes,omitempty" yaml:"nodes,omitempty"`
	PendingPods []cluster.PendingPod      `json:"pendingPods,omitempty" yaml:"pendingPods,omitempty"`
	Operands    []cluster.DaemonSetHealth `json:"operands,omitempty" yaml:"operands,omitempty"`
	Release     *release.Status           `json:"release,omitempty" yaml:"release,omitempty"`
	Outcomes    map[string]*diag.Outcome  `json:"outcomes,omitempty" yaml:"outcomes,omitempty"`
	Issues      []Issue                   `json:"issues,omitempty" yaml:"issues,omitempty"`
}

// Input bundles everything the aggregation cross-references. Any field may be
// nil or empty; aggregation works with whatever was collected.
type Input struct {
	Nodes       []cluster.Node
	PendingPods []cluster.PendingPod
	Operands    []cluster.DaemonSetHealth
	Release     *release.Status
	Outcomes    map[string]*diag.Outcome
}

// Aggregate builds the cluster status from partial per-node results. Nodes
// that failed examination are counted and reported, never dropped.
func Aggregate(in Input, toolVersion string) *ClusterStatus {
	cs := &ClusterStatus{
		Nodes:       in.Nodes,
		PendingPods: in.PendingPods,
		Operands:    in.Operands,
		Release:     in.Release,
		Outcomes:    in.Outcomes,
	}
	cs.Init(header.KindClusterStatus, header.APIVersion, toolVersion)

	cs.Summary.TotalNodes = len(in.Outcomes)
	for _, node := range sortedNodes(in.Outcomes) {
		outcome := in.Outcomes[node]

		if outcome.Error != "" {
			cs.Summary.NodesWithErrors++
			cs.Issues = append(cs.Issues, Issue{
				Kind:   IssueExaminationFailed,
				Node:   node,
				Detail: outcome.Error,
			})
			continue
		}

		if outcome.HasConfig() {
			cs.Summary.NodesWithConfig++
		}

		if !outcome.Configured() {
			cs.Issues = append(cs.Issues, Issue{
				Kind:   IssueUnconfigured,
				Node:   node,
				Detail: "no containerd config declares the nvidia runtime",
			})
			continue
		}
		cs.Summary.NodesConfigured++

		if missing := outcome.MissingBinary(); missing != nil {
			cs.Summary.NodesMissingBinary++
			cs.Issues = append(cs.Issues, Issue{
				Kind: IssueMissingBinary,
				Node: node,
				Detail: fmt.Sprintf("%s declares %s which does not exist",
					missing.Path, missing.BinaryName),
			})
		}
	}

	if in.Release != nil && in.Release.ReleaseFound && !in.Release.Valid {
		for _, finding := range in.Release.Findings {
			cs.Issues = append(cs.Issues, Issue{
				Kind:   IssueChartMisconfigured,
				Detail: finding,
			})
		}
	}

	sortIssues(cs.Issues)
	return cs
}

// Healthy reports whether the diagnosis found nothing wrong.
func (cs *ClusterStatus) Healthy() bool {
	return len(cs.Issues) == 0
}

// NodesWithIssue returns the nodes carrying the given issue kind, sorted.
func (cs *ClusterStatus) NodesWithIssue(kind IssueKind) []string {
	var nodes []string
	for _, issue := range cs.Issues {
		if issue.Kind == kind && issue.Node != "" {
			nodes = append(nodes, issue.Node)
		}
	}
	sort.Strings(nodes)
	return nodes
}

// sortIssues orders by kind rank first, then node name, so reports are
// deterministic and the most actionable problems lead.
func sortIssues(issues []Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		if issueRank[issues[i].Kind] != issueRank[issues[j].Kind] {
			return issueRank[issues[i].Kind] < issueRank[issues[j].Kind]
		}
		return issues[i].Node < issues[j].Node
	})
}

func sortedNodes(outcomes map[string]*diag.Outcome) []string {
	nodes := make([]string, 0, len(outcomes))
	for node := range outcomes {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	return nodes
}
