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

package session

import (
	"strings"
	"time"

	"github.com/NVIDIA/gpu-runtime-doctor/pkg/k8s/client"
)

// State tracks the lifecycle of one inspection pod session.
type State string

const (
	// StateUnprovisioned is the initial state before any cluster resources exist.
	StateUnprovisioned State = "Unprovisioned"
	// StateProvisioning means the pod create request was issued.
	StateProvisioning State = "Provisioning"
	// StateReady means the pod is running and its container reports ready.
	StateReady State = "Ready"
	// StateInUse means at least one command has been executed in the pod.
	StateInUse State = "InUse"
	// StateTornDown is the terminal state after the pod was deleted.
	StateTornDown State = "TornDown"
	// StateError is the absorbing failure state, reachable from any
	// non-terminal state. Teardown is still allowed from here.
	StateError State = "Error"
)

const (
	// DefaultPodNamePrefix is the prefix for derived inspection pod names.
	DefaultPodNamePrefix = "gpu-debug"

	// DefaultReadyTimeout bounds readiness polling. Pod scheduling latency is
	// unpredictable; unbounded blocking would stall the whole node fan-out.
	DefaultReadyTimeout = 60 * time.Second

	// DefaultPollInterval is the readiness poll period.
	DefaultPollInterval = 1 * time.Second

	containerName = "debug"
)

// Config holds the settings for inspection pod sessions.
type Config struct {
	// Namespace is where inspection pods are created.
	Namespace string

	// Image is the container image for the inspection pod.
	Image string

	// PodNamePrefix overrides the derived pod name prefix.
	PodNamePrefix string

	// ReadyTimeout bounds how long AwaitReady polls before failing.
	ReadyTimeout time.Duration

	// PollInterval is the readiness polling period.
	PollInterval time.Duration
}

// Session owns the lifecycle of one ephemeral inspection pod on one node:
// provisioning, readiness polling, command execution, and teardown.
//
// A Session is owned by a single diagnostic worker and is not safe for
// concurrent use.
type Session struct {
	clientset client.Interface
	executor  Executor
	config    Config
	node      string
	podName   string
	state     State
}

// New creates a Session for the given node. Zero config fields are filled
// with defaults.
func New(clientset client.Interface, executor Executor, config Config, node string) *Session {
	if config.PodNamePrefix == "" {
		config.PodNamePrefix = DefaultPodNamePrefix
	}
	if config.ReadyTimeout <= 0 {
		config.ReadyTimeout = DefaultReadyTimeout
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}

	return &Session{
		clientset: clientset,
		executor:  executor,
		config:    config,
		node:      node,
		podName:   PodName(config.PodNamePrefix, node),
		state:     StateUnprovisioned,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// Node returns the node this session inspects.
func (s *Session) Node() string {
	return s.node
}

// PodName derives the deterministic inspection pod name for a node. Dots in
// the node name are replaced so the result is a valid DNS-1123 label. The
// derivation must stay stable: the orchestrator's final cleanup sweep deletes
// pods by re-deriving these names.
func PodName(prefix, node string) string {
	return prefix + "-" + strings.ReplaceAll(node, ".", "-")
}
