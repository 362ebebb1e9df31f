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
	"fmt"

	"gopkg.in/yaml.v3"

	apperrors "github.com/NVIDIA/gpu-runtime-doctor/pkg/errors"
)

// ToolkitEnv is one environment variable entry under toolkit.env.
type ToolkitEnv struct {
	Name  string `yaml:"name" json:"name"`
	Value string `yaml:"value" json:"value"`
}

// ToolkitValues is the toolkit section of GPU operator chart values.
type ToolkitValues struct {
	Enabled         bool         `yaml:"enabled" json:"enabled"`
	Image           string       `yaml:"image" json:"image"`
	ImagePullPolicy string       `yaml:"imagePullPolicy" json:"imagePullPolicy"`
	InstallDir      string       `yaml:"installDir" json:"installDir"`
	Repository      string       `yaml:"repository" json:"repository"`
	Version         string       `yaml:"version" json:"version"`
	Env             []ToolkitEnv `yaml:"env" json:"env"`
}

// Values is the subset of GPU operator chart values the diagnosis inspects.
type Values struct {
	Toolkit ToolkitValues `yaml:"toolkit" json:"toolkit"`
}

// requiredToolkitFields are the exact toolkit settings expected on clusters
// using the relocated containerd layout. Any deviation is a finding.
var requiredToolkitFields = []struct {
	field    string
	expected string
	actual   func(*ToolkitValues) string
}{
	{"image", "container-toolkit", func(t *ToolkitValues) string { return t.Image }},
	{"imagePullPolicy", "IfNotPresent", func(t *ToolkitValues) string { return t.ImagePullPolicy }},
	{"installDir", "/usr/local/nvidia", func(t *ToolkitValues) string { return t.InstallDir }},
	{"repository", "nvcr.io/nvidia/k8s", func(t *ToolkitValues) string { return t.Repository }},
	{"version", "v1.17.5-ubuntu20.04", func(t *ToolkitValues) string { return t.Version }},
}

// requiredToolkitEnv points the toolkit at the relocated containerd paths.
// An entry counts only on exact name and value match.
var requiredToolkitEnv = []ToolkitEnv{
	{Name: "CONTAINERD_CONFIG", Value: "/var/lib/k8s-containerd/k8s-containerd/etc/containerd/config.toml"},
	{Name: "CONTAINERD_SOCKET", Value: "/var/lib/k8s-containerd/k8s-containerd/run/containerd/containerd.sock"},
	{Name: "CONTAINERD_RUNTIME_CLASS", Value: "nvidia"},
}

// ParseValues decodes helm chart values YAML.
func ParseValues(data []byte) (*Values, error) {
	var v Values
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeParse, "failed to parse helm values", err)
	}
	return &v, nil
}

// Validate checks the toolkit section against the required settings and
// returns every deviation found. An empty result means the configuration is
// valid. Validation never stops at the first mismatch: the operator fixing
// the chart needs the complete list.
func Validate(v *Values) []string {
	var findings []string

	t := &v.Toolkit
	if !t.Enabled {
		findings = append(findings, "toolkit.enabled should be true")
	}

	for _, req := range requiredToolkitFields {
		if actual := req.actual(t); actual != req.expected {
			findings = append(findings, fmt.Sprintf(
				"toolkit.%s should be '%s', found: '%s'", req.field, req.expected, actual))
		}
	}

	for _, req := range requiredToolkitEnv {
		found := false
		for _, env := range t.Env {
			if env.Name == req.Name && env.Value == req.Value {
				found = true
				break
			}
		}
		if !found {
			findings = append(findings, fmt.Sprintf(
				"toolkit.env missing: %s=%s", req.Name, req.Value))
		}
	}

	return findings
}
