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

package cluster

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"

	apperrors "github.com/NVIDIA/gpu-runtime-doctor/pkg/errors"
)

func gpuNode(name string, gpus int64, ready bool, labels map[string]string) *corev1.Node {
	status := corev1.ConditionFalse
	if ready {
		status = corev1.ConditionTrue
	}
	n := &corev1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: name, Labels: labels},
		Status: corev1.NodeStatus{
			Conditions: []corev1.NodeCondition{
				{Type: corev1.NodeReady, Status: status},
			},
			NodeInfo: corev1.NodeSystemInfo{
				ContainerRuntimeVersion: "containerd://1.7.22",
				KubeletVersion:          "v1.31.2",
			},
		},
	}
	if gpus > 0 {
		q := *resource.NewQuantity(gpus, resource.DecimalSI)
		n.Status.Capacity = corev1.ResourceList{GPUResourceName: q}
		n.Status.Allocatable = corev1.ResourceList{GPUResourceName: q}
	}
	return n
}

func gpuPod(namespace, name, node string, phase corev1.PodPhase) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Spec: corev1.PodSpec{
			NodeName: node,
			Containers: []corev1.Container{{
				Name: "cuda",
				Resources: corev1.ResourceRequirements{
					Requests: corev1.ResourceList{
						GPUResourceName: *resource.NewQuantity(1, resource.DecimalSI),
					},
				},
			}},
		},
		Status: corev1.PodStatus{Phase: phase},
	}
}

func TestListNodes(t *testing.T) {
	t.Parallel()

	clientset := fake.NewClientset(
		gpuNode("gpu-1", 4, true, map[string]string{"node-role.kubernetes.io/worker": ""}),
		gpuNode("cp-1", 0, true, map[string]string{"node-role.kubernetes.io/control-plane": ""}),
		gpuNode("gpu-2", 8, false, nil),
		gpuPod("default", "train-0", "gpu-1", corev1.PodRunning),
		gpuPod("default", "train-1", "gpu-1", corev1.PodRunning),
	)

	d := NewDiscovery(clientset)
	nodes, err := d.ListNodes(context.Background())
	require.NoError(t, err)
	require.Len(t, nodes, 3)

	byName := map[string]Node{}
	for _, n := range nodes {
		byName[n.Name] = n
	}

	assert.Equal(t, []string{"worker"}, byName["gpu-1"].Roles)
	assert.True(t, byName["gpu-1"].Ready)
	assert.EqualValues(t, 4, byName["gpu-1"].GPUCapacity)
	assert.Equal(t, 2, byName["gpu-1"].GPUPodCount)
	assert.True(t, byName["gpu-1"].HasGPU())
	assert.Equal(t, "containerd://1.7.22", byName["gpu-1"].RuntimeVersion)

	assert.False(t, byName["cp-1"].HasGPU())
	assert.Equal(t, []string{"control-plane"}, byName["cp-1"].Roles)

	assert.False(t, byName["gpu-2"].Ready)
	assert.EqualValues(t, 8, byName["gpu-2"].GPUCapacity)
	assert.Equal(t, 0, byName["gpu-2"].GPUPodCount)
}

func TestListNodesRoles(t *testing.T) {
	t.Parallel()

	clientset := fake.NewClientset(
		gpuNode("multi-1", 0, true, map[string]string{
			"node-role.kubernetes.io/worker":        "",
			"node-role.kubernetes.io/control-plane": "",
			"node-role.kubernetes.io/etcd":          "",
		}),
		gpuNode("plain-1", 0, true, nil),
	)

	d := NewDiscovery(clientset)
	nodes, err := d.ListNodes(context.Background())
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	byName := map[string]Node{}
	for _, n := range nodes {
		byName[n.Name] = n
	}

	assert.Equal(t, []string{"control-plane", "etcd", "worker"}, byName["multi-1"].Roles)
	assert.Equal(t, []string{"worker"}, byName["plain-1"].Roles)
}

func TestListNodesPodCountDegrades(t *testing.T) {
	t.Parallel()

	clientset := fake.NewClientset(gpuNode("gpu-1", 4, true, nil))
	clientset.PrependReactor("list", "pods",
		func(k8stesting.Action) (bool, runtime.Object, error) {
			return true, nil, assert.AnError
		})

	d := NewDiscovery(clientset)
	nodes, err := d.ListNodes(context.Background())
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, 0, nodes[0].GPUPodCount)
	assert.True(t, nodes[0].HasGPU())
}

func TestListNodesError(t *testing.T) {
	t.Parallel()

	clientset := fake.NewClientset()
	clientset.PrependReactor("list", "nodes",
		func(k8stesting.Action) (bool, runtime.Object, error) {
			return true, nil, assert.AnError
		})

	d := NewDiscovery(clientset)
	_, err := d.ListNodes(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeDiscovery, apperrors.CodeOf(err))
}

func TestGPUNodesFilters(t *testing.T) {
	t.Parallel()

	clientset := fake.NewClientset(
		gpuNode("gpu-1", 2, true, nil),
		gpuNode("cpu-1", 0, true, nil),
	)

	d := NewDiscovery(clientset)
	nodes, err := d.GPUNodes(context.Background())
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "gpu-1", nodes[0].Name)
}

func TestPendingGPUPods(t *testing.T) {
	t.Parallel()

	stuck := gpuPod("ml", "train-stuck", "gpu-1", corev1.PodRunning)
	stuck.Status.ContainerStatuses = []corev1.ContainerStatus{{
		Name: "cuda",
		State: corev1.ContainerState{
			Waiting: &corev1.ContainerStateWaiting{
				Reason:  "CreateContainerError",
				Message: "nvidia runtime not found",
			},
		},
	}}

	nonGPU := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "web", Namespace: "default"},
		Spec:       corev1.PodSpec{Containers: []corev1.Container{{Name: "web"}}},
		Status:     corev1.PodStatus{Phase: corev1.PodPending},
	}

	clientset := fake.NewClientset(
		gpuPod("ml", "train-pending", "", corev1.PodPending),
		gpuPod("ml", "train-ok", "gpu-1", corev1.PodRunning),
		stuck,
		nonGPU,
	)

	d := NewDiscovery(clientset)
	pending, err := d.PendingGPUPods(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 2)

	names := map[string]PendingPod{}
	for _, p := range pending {
		names[p.Name] = p
	}
	assert.Contains(t, names, "train-pending")
	assert.Equal(t, "CreateContainerError", names["train-stuck"].Reason)
	assert.NotContains(t, names, "train-ok")
	assert.NotContains(t, names, "web")
}

func TestOperandHealth(t *testing.T) {
	t.Parallel()

	clientset := fake.NewClientset(&appsv1.DaemonSet{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "nvidia-device-plugin-daemonset",
			Namespace: OperatorNamespace,
		},
		Status: appsv1.DaemonSetStatus{
			DesiredNumberScheduled: 3,
			NumberReady:            3,
			NumberAvailable:        3,
		},
	})

	d := NewDiscovery(clientset)
	health, err := d.OperandHealth(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, health, 2)

	byName := map[string]DaemonSetHealth{}
	for _, h := range health {
		byName[h.Name] = h
	}

	plugin := byName["nvidia-device-plugin-daemonset"]
	assert.True(t, plugin.Found)
	assert.True(t, plugin.Healthy())
	assert.EqualValues(t, 3, plugin.Ready)

	toolkit := byName["nvidia-container-toolkit-daemonset"]
	assert.False(t, toolkit.Found)
	assert.False(t, toolkit.Healthy())
}
