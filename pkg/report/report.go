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

package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/NVIDIA/gpu-runtime-doctor/pkg/diag"
	"github.com/NVIDIA/gpu-runtime-doctor/pkg/k8s/cluster"
	"github.com/NVIDIA/gpu-runtime-doctor/pkg/status"
	"github.com/NVIDIA/gpu-runtime-doctor/pkg/version"
)

// minContainerdVersion is the oldest containerd able to load the nvidia
// runtime through the runc v2 shim.
var minContainerdVersion = version.MustParse("1.4.0")

const (
	wideRule   = 100
	narrowRule = 40
	nodeRule   = 50
)

// maxRuntimeErrors caps the cluster-level containerd error excerpt; per-node
// detail still carries the full probe output.
const maxRuntimeErrors = 10

// nvidiaRuntimeStanza is the containerd config fragment that enables the
// NVIDIA runtime, printed verbatim in the remediation section.
const nvidiaRuntimeStanza = `   [plugins."io.containerd.grpc.v1.cri".containerd.runtimes.nvidia]
     privileged_without_host_devices = false
     runtime_type = "io.containerd.runc.v2"
     [plugins."io.containerd.grpc.v1.cri".containerd.runtimes.nvidia.options]
       BinaryName = "/usr/local/nvidia/toolkit/nvidia-container-runtime"`

// toolkitValuesBlock is the required toolkit section for the GPU operator
// chart, printed when the installed release deviates from it.
const toolkitValuesBlock = `   toolkit:
     enabled: true
     image: container-toolkit
     imagePullPolicy: IfNotPresent
     installDir: /usr/local/nvidia
     repository: nvcr.io/nvidia/k8s
     version: v1.17.5-ubuntu20.04
     env:
     - name: CONTAINERD_CONFIG
       value: /var/lib/k8s-containerd/k8s-containerd/etc/containerd/config.toml
     - name: CONTAINERD_SOCKET
       value: /var/lib/k8s-containerd/k8s-containerd/run/containerd/containerd.sock
     - name: CONTAINERD_RUNTIME_CLASS
       value: nvidia`

// Render writes the human-readable cluster analysis report: cluster-level
// status, node summary, detailed per-node results, and prioritized
// recommendations.
func Render(w io.Writer, cs *status.ClusterStatus) {
	rule(w, "=", wideRule)
	fmt.Fprintln(w, "CLUSTER-WIDE GPU CONFIGURATION ANALYSIS REPORT")
	rule(w, "=", wideRule)

	renderClusterStatus(w, cs)
	renderSummary(w, cs)
	renderNodeDetail(w, cs)
	renderRecommendations(w, cs)
}

func renderClusterStatus(w io.Writer, cs *status.ClusterStatus) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "CLUSTER-LEVEL STATUS:")
	rule(w, "=", wideRule)

	if len(cs.Nodes) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "NODES:")
		rule(w, "-", narrowRule)
		for i := range cs.Nodes {
			renderNodeLine(w, &cs.Nodes[i])
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "PENDING GPU PODS:")
	rule(w, "-", narrowRule)
	if len(cs.PendingPods) == 0 {
		fmt.Fprintln(w, "  No pending GPU pods detected")
	}
	for _, pod := range cs.PendingPods {
		fmt.Fprintf(w, "  %s/%s\n", pod.Namespace, pod.Name)
		state := pod.Phase
		if pod.Reason != "" {
			state = pod.Reason
		}
		fmt.Fprintf(w, "    Status: %s\n", state)
		fmt.Fprintf(w, "    Node: %s\n", orUnknown(pod.Node))
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "CONTAINER RUNTIME ERRORS:")
	rule(w, "-", narrowRule)
	errors := runtimeErrors(cs.Outcomes)
	if len(errors) == 0 {
		fmt.Fprintln(w, "  No containerd runtime errors detected")
	}
	for _, line := range errors {
		fmt.Fprintf(w, "  %s\n", line)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "RUNTIME CONFIGURATION ISSUES:")
	rule(w, "-", narrowRule)
	nodeIssues := 0
	for _, issue := range cs.Issues {
		if issue.Node == "" {
			continue
		}
		nodeIssues++
		fmt.Fprintf(w, "  %s: %s\n", issue.Node, issue.Detail)
	}
	if nodeIssues == 0 {
		fmt.Fprintln(w, "  No runtime configuration issues detected")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "GPU OPERAND STATUS:")
	rule(w, "-", narrowRule)
	if len(cs.Operands) == 0 {
		fmt.Fprintln(w, "  No operand status collected")
	}
	for _, ds := range cs.Operands {
		if !ds.Found {
			fmt.Fprintf(w, "  %s: NOT FOUND\n", ds.Name)
			continue
		}
		state := "DEGRADED"
		if ds.Healthy() {
			state = "HEALTHY"
		}
		fmt.Fprintf(w, "  %s: %s (%d/%d ready, %d available)\n",
			ds.Name, state, ds.Ready, ds.Desired, ds.Available)
	}
	fmt.Fprintln(w)

	renderReleaseStatus(w, cs)
}

// renderNodeLine prints one node's inventory line, flagging a container
// runtime too old to load the nvidia shim.
func renderNodeLine(w io.Writer, n *cluster.Node) {
	ready := "NotReady"
	if n.Ready {
		ready = "Ready"
	}
	fmt.Fprintf(w, "  %s: %s, %d GPUs allocatable, %d GPU pods",
		n.Name, ready, n.GPUAllocatable, n.GPUPodCount)

	if n.RuntimeVersion != "" {
		runtime, v, err := version.ParseRuntime(n.RuntimeVersion)
		switch {
		case err != nil:
			fmt.Fprintf(w, ", runtime %s", n.RuntimeVersion)
		case runtime == "containerd" && !v.EqualsOrNewer(minContainerdVersion):
			fmt.Fprintf(w, ", containerd %s (UNSUPPORTED, requires >= %s)", v, minContainerdVersion)
		default:
			fmt.Fprintf(w, ", %s %s", runtime, v)
		}
	}
	fmt.Fprintln(w)
}

func renderReleaseStatus(w io.Writer, cs *status.ClusterStatus) {
	fmt.Fprintln(w, "NVIDIA GPU OPERATOR HELM CONFIGURATION:")
	rule(w, "-", narrowRule)
	rel := cs.Release
	switch {
	case rel == nil || !rel.HelmAvailable:
		fmt.Fprintln(w, "  Helm not available, chart configuration not checked")
	case !rel.ReleaseFound:
		fmt.Fprintln(w, "  Helm Release: Not found")
	default:
		fmt.Fprintf(w, "  Helm Release: Found (%s)\n", rel.ReleaseName)
		if rel.Valid {
			fmt.Fprintln(w, "  Toolkit Configuration: Valid")
		} else {
			fmt.Fprintln(w, "  Toolkit Configuration: Invalid")
			fmt.Fprintln(w, "  Missing or incorrect configurations:")
			for _, finding := range rel.Findings {
				fmt.Fprintf(w, "    - %s\n", finding)
			}
		}
	}

	if rel != nil && len(rel.Errors) > 0 {
		fmt.Fprintln(w, "  Errors:")
		for _, e := range rel.Errors {
			fmt.Fprintf(w, "    - %s\n", e)
		}
	}

	if rel != nil && rel.Toolkit != nil {
		t := rel.Toolkit
		fmt.Fprintln(w, "  Current toolkit configuration:")
		fmt.Fprintf(w, "    enabled: %t\n", t.Enabled)
		fmt.Fprintf(w, "    image: %s\n", t.Image)
		fmt.Fprintf(w, "    imagePullPolicy: %s\n", t.ImagePullPolicy)
		fmt.Fprintf(w, "    installDir: %s\n", t.InstallDir)
		fmt.Fprintf(w, "    repository: %s\n", t.Repository)
		fmt.Fprintf(w, "    version: %s\n", t.Version)
		if len(t.Env) > 0 {
			fmt.Fprintln(w, "    env:")
			for _, env := range t.Env {
				fmt.Fprintf(w, "      - %s: %s\n", env.Name, env.Value)
			}
		}
	}
	fmt.Fprintln(w)
}

func renderSummary(w io.Writer, cs *status.ClusterStatus) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "NODE-LEVEL SUMMARY:")
	rule(w, "=", wideRule)
	fmt.Fprintf(w, "  Total nodes analyzed: %d\n", cs.Summary.TotalNodes)
	fmt.Fprintf(w, "  Nodes with containerd configs: %d\n", cs.Summary.NodesWithConfig)
	fmt.Fprintf(w, "  Nodes with NVIDIA runtime configured: %d\n", cs.Summary.NodesConfigured)
	fmt.Fprintf(w, "  Nodes with missing NVIDIA binary: %d\n", cs.Summary.NodesMissingBinary)
	fmt.Fprintf(w, "  Nodes with analysis errors: %d\n", cs.Summary.NodesWithErrors)
}

func renderNodeDetail(w io.Writer, cs *status.ClusterStatus) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "DETAILED NODE ANALYSIS:")
	rule(w, "-", wideRule)

	for _, node := range sortedNodes(cs.Outcomes) {
		outcome := cs.Outcomes[node]
		fmt.Fprintf(w, "\nNODE: %s\n", node)
		rule(w, "-", nodeRule)

		if outcome.Error != "" {
			fmt.Fprintf(w, "  Error: %s\n", outcome.Error)
			continue
		}
		if !outcome.AgentDeployed {
			fmt.Fprintln(w, "  Inspection pod not deployed")
			continue
		}

		fmt.Fprintln(w, "  Containerd Configurations:")
		if len(outcome.Records) == 0 {
			fmt.Fprintln(w, "    No containerd configs found")
		}
		for _, rec := range outcome.Records {
			renderRecord(w, &rec)
		}

		if outcome.ProbeOutput != "" {
			fmt.Fprintln(w, "  GPU Detection Results:")
			for line := range strings.Lines(outcome.ProbeOutput) {
				line = strings.TrimRight(line, "\n")
				if strings.TrimSpace(line) == "" {
					continue
				}
				fmt.Fprintf(w, "    %s\n", line)
			}
		}
		fmt.Fprintln(w)
	}
}

func renderRecord(w io.Writer, rec *diag.RuntimeConfigRecord) {
	fmt.Fprintf(w, "    %s\n", rec.Path)
	fmt.Fprintf(w, "      Exists: %t\n", rec.Exists)

	if rec.Exists {
		fmt.Fprintf(w, "      NVIDIA Runtime: %t\n", rec.Configured)
		if rec.Configured {
			if rec.BinaryName != "" {
				state := "MISSING"
				if rec.BinaryExists {
					state = "FOUND"
				}
				fmt.Fprintf(w, "      Binary: %s %s\n", rec.BinaryName, state)
			} else {
				fmt.Fprintln(w, "      BinaryName not specified in config")
			}
		}
		if lines := configExcerpt(rec.Content); len(lines) > 0 {
			fmt.Fprintln(w, "      Config lines:")
			for _, line := range lines {
				fmt.Fprintf(w, "        %s\n", line)
			}
		}
	}

	if rec.Error != "" {
		fmt.Fprintf(w, "      Error: %s\n", rec.Error)
	}
	fmt.Fprintln(w)
}

func renderRecommendations(w io.Writer, cs *status.ClusterStatus) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "CLUSTER-WIDE RECOMMENDATIONS:")
	rule(w, "-", nodeRule)

	step := 0

	if missing := cs.NodesWithIssue(status.IssueMissingBinary); len(missing) > 0 {
		step++
		fmt.Fprintf(w, "%d. Nodes with missing NVIDIA runtime binary:\n", step)
		for _, node := range missing {
			fmt.Fprintf(w, "   - %s: %s\n", node, missingBinaryPath(cs.Outcomes[node]))
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "   Fix: Ensure NVIDIA Container Toolkit is installed")
		fmt.Fprintln(w, "   Check: kubectl get pods -n gpu-operator")
		fmt.Fprintln(w)
	}

	if unconfigured := cs.NodesWithIssue(status.IssueUnconfigured); len(unconfigured) > 0 {
		step++
		fmt.Fprintf(w, "%d. Configure NVIDIA runtime on nodes without it:\n", step)
		for _, node := range unconfigured {
			fmt.Fprintf(w, "   - %s\n", node)
		}
		fmt.Fprintln(w, "   Add nvidia runtime configuration to containerd config.toml:")
		fmt.Fprintln(w)
		fmt.Fprintln(w, nvidiaRuntimeStanza)
		fmt.Fprintln(w)
	}

	if failed := cs.NodesWithIssue(status.IssueExaminationFailed); len(failed) > 0 {
		step++
		fmt.Fprintf(w, "%d. Investigate nodes with analysis errors:\n", step)
		for _, node := range failed {
			fmt.Fprintf(w, "   - %s\n", node)
		}
		fmt.Fprintln(w, "   Check node accessibility and inspection pod deployment")
		fmt.Fprintln(w)
	}

	step++
	fmt.Fprintf(w, "%d. Verify NVIDIA Container Toolkit installation:\n", step)
	fmt.Fprintln(w, "   kubectl get pods -n gpu-operator -o wide")
	fmt.Fprintln(w)

	rel := cs.Release
	switch {
	case rel != nil && rel.HelmAvailable && !rel.ReleaseFound:
		step++
		fmt.Fprintf(w, "%d. Install NVIDIA GPU Operator Helm chart:\n", step)
		fmt.Fprintln(w, "   helm repo add nvidia https://helm.ngc.nvidia.com/nvidia")
		fmt.Fprintln(w, "   helm repo update")
		fmt.Fprintln(w, "   helm install gpu-operator nvidia/gpu-operator -n gpu-operator --create-namespace")
		fmt.Fprintln(w)
	case rel != nil && rel.ReleaseFound && !rel.Valid:
		step++
		fmt.Fprintf(w, "%d. Fix NVIDIA GPU Operator Helm configuration:\n", step)
		fmt.Fprintln(w, "   Update your Helm values to include the required toolkit configuration:")
		fmt.Fprintln(w)
		fmt.Fprintln(w, toolkitValuesBlock)
		fmt.Fprintln(w)
		fmt.Fprintln(w, "   Then upgrade the Helm release:")
		fmt.Fprintf(w, "   helm upgrade %s nvidia/gpu-operator -n gpu-operator -f values.yaml\n", rel.ReleaseName)
		fmt.Fprintln(w)
	}

	if len(cs.NodesWithIssue(status.IssueUnconfigured)) > 0 ||
		len(cs.NodesWithIssue(status.IssueMissingBinary)) > 0 {
		step++
		fmt.Fprintf(w, "%d. Restart containerd on misconfigured nodes:\n", step)
		fmt.Fprintln(w, "   sudo systemctl restart containerd")
	}
}

// runtimeErrors collects the containerd journal excerpts the probes captured,
// across all nodes, capped for the cluster-level section.
func runtimeErrors(outcomes map[string]*diag.Outcome) []string {
	var collected []string
	for _, node := range sortedNodes(outcomes) {
		out := outcomes[node].ProbeOutput
		idx := strings.Index(out, "Containerd Errors")
		if idx < 0 {
			continue
		}
		section := out[idx:]
		first := true
		for line := range strings.Lines(section) {
			if first {
				// section header line
				first = false
				continue
			}
			trimmed := strings.TrimSpace(strings.TrimRight(line, "\n"))
			if trimmed == "" {
				break
			}
			if trimmed == "No containerd errors found" {
				break
			}
			collected = append(collected, trimmed)
			if len(collected) >= maxRuntimeErrors {
				return collected
			}
		}
	}
	return collected
}

// configExcerpt pulls the nvidia-related lines out of a config file for
// display, capped at five lines like the probe's journal excerpt.
func configExcerpt(content string) []string {
	if content == "" {
		return nil
	}
	var lines []string
	for line := range strings.Lines(content) {
		trimmed := strings.TrimSpace(strings.TrimRight(line, "\n"))
		if trimmed == "" {
			continue
		}
		if strings.Contains(strings.ToLower(trimmed), "nvidia") {
			lines = append(lines, trimmed)
			if len(lines) == 5 {
				break
			}
		}
	}
	return lines
}

func missingBinaryPath(outcome *diag.Outcome) string {
	if outcome == nil {
		return ""
	}
	if rec := outcome.MissingBinary(); rec != nil {
		return rec.BinaryName
	}
	return ""
}

func sortedNodes(outcomes map[string]*diag.Outcome) []string {
	nodes := make([]string, 0, len(outcomes))
	for node := range outcomes {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	return nodes
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func rule(w io.Writer, ch string, n int) {
	fmt.Fprintln(w, strings.Repeat(ch, n))
}
