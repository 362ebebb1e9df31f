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

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	apperrors "github.com/NVIDIA/gpu-runtime-doctor/pkg/errors"
)

func testOrchestrator(t *testing.T, config Config, sessions map[string]*fakeSession) *Orchestrator {
	t.Helper()

	o := New(fake.NewClientset(), nil, config)
	o.newSession = func(node string) inspectSession {
		if s, ok := sessions[node]; ok {
			return s
		}
		return &fakeSession{node: node}
	}
	return o
}

func TestRunEmptyNodeList(t *testing.T) {
	t.Parallel()

	o := testOrchestrator(t, Config{Namespace: "kube-system"}, nil)
	results, err := o.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRunOneOutcomePerNode(t *testing.T) {
	t.Parallel()

	sessions := map[string]*fakeSession{
		"node-a": {node: "node-a", files: map[string]string{
			"/host/etc/containerd/config.toml":                        configuredTOML,
			"/host/usr/local/nvidia/toolkit/nvidia-container-runtime": "",
		}},
		"node-b": {node: "node-b",
			provisionErr: apperrors.New(apperrors.ErrCodeProvisioning, "taint mismatch")},
		"node-c": {node: "node-c", files: map[string]string{
			"/host/etc/containerd/config.toml": "# empty\n",
		}},
	}

	o := testOrchestrator(t, Config{Namespace: "kube-system"}, sessions)
	results, err := o.Run(context.Background(), []string{"node-a", "node-b", "node-c"})
	require.NoError(t, err)
	require.Len(t, results, 3)

	// One failed node does not disturb the others.
	assert.True(t, results["node-a"].Configured())
	assert.Empty(t, results["node-a"].Error)

	assert.Contains(t, results["node-b"].Error, "taint mismatch")
	assert.False(t, results["node-b"].AgentDeployed)

	assert.True(t, results["node-c"].HasConfig())
	assert.False(t, results["node-c"].Configured())
}

func TestRunCollectionTimeout(t *testing.T) {
	t.Parallel()

	sessions := map[string]*fakeSession{
		"stuck": {node: "stuck", blockExec: true},
		"fine":  {node: "fine"},
	}

	o := testOrchestrator(t, Config{
		Namespace:         "kube-system",
		CollectionTimeout: 100 * time.Millisecond,
	}, sessions)

	results, err := o.Run(context.Background(), []string{"stuck", "fine"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Contains(t, results["stuck"].Error, "timed out")
	assert.Empty(t, results["fine"].Error)
}

func TestRunConcurrencyBound(t *testing.T) {
	t.Parallel()

	var active, peak atomic.Int32
	var mu sync.Mutex

	sessions := map[string]*fakeSession{}
	nodes := []string{"n1", "n2", "n3", "n4", "n5", "n6"}
	for _, n := range nodes {
		sessions[n] = &fakeSession{node: n}
	}

	o := testOrchestrator(t, Config{Namespace: "kube-system", Concurrency: 2}, sessions)

	base := o.newSession
	o.newSession = func(node string) inspectSession {
		return &trackingSession{
			inspectSession: base(node),
			active:         &active,
			peak:           &peak,
			mu:             &mu,
		}
	}

	_, err := o.Run(context.Background(), nodes)
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

type trackingSession struct {
	inspectSession
	active *atomic.Int32
	peak   *atomic.Int32
	mu     *sync.Mutex
}

func (s *trackingSession) Provision(ctx context.Context) error {
	n := s.active.Add(1)
	s.mu.Lock()
	if n > s.peak.Load() {
		s.peak.Store(n)
	}
	s.mu.Unlock()
	time.Sleep(10 * time.Millisecond) // widen the overlap window
	return s.inspectSession.Provision(ctx)
}

func (s *trackingSession) Teardown(ctx context.Context) error {
	s.active.Add(-1)
	return s.inspectSession.Teardown(ctx)
}

func TestRunSweepDeletesLeftoverPods(t *testing.T) {
	t.Parallel()

	leftover := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "gpu-debug-node-a", Namespace: "kube-system"},
	}
	clientset := fake.NewClientset(leftover)

	o := New(clientset, nil, Config{Namespace: "kube-system"})
	o.newSession = func(node string) inspectSession {
		// Worker that never tears down, leaving the sweep to catch it.
		return &fakeSession{node: node}
	}

	_, err := o.Run(context.Background(), []string{"node-a"})
	require.NoError(t, err)

	_, getErr := clientset.CoreV1().Pods("kube-system").
		Get(context.Background(), "gpu-debug-node-a", metav1.GetOptions{})
	assert.Error(t, getErr, "sweep should have deleted the leftover pod")
}

func TestRunKeepPodsSkipsSweep(t *testing.T) {
	t.Parallel()

	leftover := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "gpu-debug-node-a", Namespace: "kube-system"},
	}
	clientset := fake.NewClientset(leftover)

	o := New(clientset, nil, Config{Namespace: "kube-system", KeepPods: true})
	sess := &fakeSession{node: "node-a"}
	o.newSession = func(string) inspectSession { return sess }

	_, err := o.Run(context.Background(), []string{"node-a"})
	require.NoError(t, err)

	assert.Equal(t, 0, sess.teardownCount())
	_, getErr := clientset.CoreV1().Pods("kube-system").
		Get(context.Background(), "gpu-debug-node-a", metav1.GetOptions{})
	assert.NoError(t, getErr, "pod must survive with KeepPods")
}

func TestRunSweepRunsOnCancellation(t *testing.T) {
	t.Parallel()

	leftover := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "gpu-debug-stuck", Namespace: "kube-system"},
	}
	clientset := fake.NewClientset(leftover)

	o := New(clientset, nil, Config{Namespace: "kube-system"})
	o.newSession = func(node string) inspectSession {
		return &fakeSession{node: node, blockExec: true}
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	results, err := o.Run(ctx, []string{"stuck"})
	require.NoError(t, err)
	assert.Contains(t, results["stuck"].Error, "cancelled")

	_, getErr := clientset.CoreV1().Pods("kube-system").
		Get(context.Background(), "gpu-debug-stuck", metav1.GetOptions{})
	assert.Error(t, getErr, "sweep must run even when the run is cancelled")
}

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()

	o := New(fake.NewClientset(), nil, Config{})
	assert.Equal(t, DefaultConcurrency, o.config.Concurrency)
	assert.Equal(t, DefaultCollectionTimeout, o.config.CollectionTimeout)
	assert.Equal(t, "gpu-debug", o.config.PodNamePrefix)
}
