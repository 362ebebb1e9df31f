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

package release

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// DefaultNamespace is where GPU operator releases are installed.
const DefaultNamespace = "gpu-operator"

// Status is the outcome of a chart configuration check. Errors collects
// non-fatal problems encountered along the way; the check itself only fails
// on programmer error, never on cluster state.
type Status struct {
	HelmAvailable bool           `json:"helmAvailable" yaml:"helmAvailable"`
	ReleaseFound  bool           `json:"releaseFound" yaml:"releaseFound"`
	ReleaseName   string         `json:"releaseName,omitempty" yaml:"releaseName,omitempty"`
	Valid         bool           `json:"valid" yaml:"valid"`
	Findings      []string       `json:"findings,omitempty" yaml:"findings,omitempty"`
	Errors        []string       `json:"errors,omitempty" yaml:"errors,omitempty"`
	Toolkit       *ToolkitValues `json:"toolkit,omitempty" yaml:"toolkit,omitempty"`
}

// Inspector checks the GPU operator chart configuration.
type Inspector interface {
	Inspect(ctx context.Context, namespace string) *Status
}

// HelmInspector inspects releases through the helm CLI.
type HelmInspector struct {
	// run executes a command and returns its stdout. Overridable in tests.
	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewHelmInspector creates an Inspector backed by the helm binary on PATH.
func NewHelmInspector() *HelmInspector {
	return &HelmInspector{
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
	}
}

// Available probes once whether the helm CLI is usable. Callers should probe
// at startup and skip chart inspection when it is not.
func (h *HelmInspector) Available(ctx context.Context) bool {
	_, err := h.run(ctx, "helm", "version", "--short")
	return err == nil
}

// Inspect locates the GPU operator release in the namespace, fetches its
// values, and validates the toolkit configuration. All failure modes are
// reported inside the Status so a broken helm setup degrades the report
// instead of aborting the diagnosis.
func (h *HelmInspector) Inspect(ctx context.Context, namespace string) *Status {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	status := &Status{}

	if !h.Available(ctx) {
		status.Errors = append(status.Errors, "helm not available or not configured")
		return status
	}
	status.HelmAvailable = true

	name, err := h.findRelease(ctx, namespace)
	if err != nil {
		status.Errors = append(status.Errors, err.Error())
		return status
	}
	if name == "" {
		status.Errors = append(status.Errors, "no GPU Operator helm release found")
		return status
	}
	status.ReleaseFound = true
	status.ReleaseName = name

	out, err := h.run(ctx, "helm", "get", "values", name, "-n", namespace, "-o", "yaml")
	if err != nil {
		status.Errors = append(status.Errors, fmt.Sprintf("failed to get helm values: %v", err))
		return status
	}

	values, err := ParseValues(out)
	if err != nil {
		status.Errors = append(status.Errors, err.Error())
		return status
	}

	status.Toolkit = &values.Toolkit
	status.Findings = Validate(values)
	status.Valid = len(status.Findings) == 0

	slog.Debug("helm release inspected",
		"release", name, "namespace", namespace,
		"valid", status.Valid, "findings", len(status.Findings))

	return status
}

func (h *HelmInspector) findRelease(ctx context.Context, namespace string) (string, error) {
	out, err := h.run(ctx, "helm", "list", "-n", namespace, "-o", "json")
	if err != nil {
		return "", fmt.Errorf("failed to list helm releases in %s: %w", namespace, err)
	}

	var releases []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(out, &releases); err != nil {
		return "", fmt.Errorf("failed to parse helm list output: %w", err)
	}

	for _, r := range releases {
		if strings.Contains(r.Name, "gpu-operator") {
			return r.Name, nil
		}
	}
	return "", nil
}
