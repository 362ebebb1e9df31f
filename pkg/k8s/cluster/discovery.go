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
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/time/rate"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	apperrors "github.com/NVIDIA/gpu-runtime-doctor/pkg/errors"
	"github.com/NVIDIA/gpu-runtime-doctor/pkg/k8s/client"
)

const (
	// GPUResourceName is the extended resource advertised by the device plugin.
	GPUResourceName = corev1.ResourceName("nvidia.com/gpu")

	// OperatorNamespace is where the GPU operator operands usually run.
	OperatorNamespace = "gpu-operator"

	roleLabelPrefix = "node-role.kubernetes.io/"

	// defaultRole is reported for nodes carrying no node-role label.
	defaultRole = "worker"

	// Per-node pod listing issues one API call per node; the limiter keeps a
	// large fleet from hammering the apiserver.
	defaultQueryRate  = rate.Limit(20)
	defaultQueryBurst = 5
)

// OperandDaemonSets are the GPU operator daemonsets whose rollout health is
// checked during discovery.
var OperandDaemonSets = []string{
	"nvidia-device-plugin-daemonset",
	"nvidia-container-toolkit-daemonset",
}

// Node describes one cluster node as relevant to runtime diagnostics.
type Node struct {
	Name           string   `json:"name" yaml:"name"`
	Roles          []string `json:"roles,omitempty" yaml:"roles,omitempty"`
	Ready          bool     `json:"ready" yaml:"ready"`
	GPUCapacity    int64    `json:"gpuCapacity" yaml:"gpuCapacity"`
	GPUAllocatable int64    `json:"gpuAllocatable" yaml:"gpuAllocatable"`
	GPUPodCount    int      `json:"gpuPodCount" yaml:"gpuPodCount"`
	RuntimeVersion string   `json:"runtimeVersion,omitempty" yaml:"runtimeVersion,omitempty"`
	KubeletVersion string   `json:"kubeletVersion,omitempty" yaml:"kubeletVersion,omitempty"`
}

// HasGPU reports whether the node advertises any GPU capacity.
func (n Node) HasGPU() bool {
	return n.GPUCapacity > 0
}

// PendingPod describes a GPU workload that is stuck before running, the
// primary cluster-level symptom of a runtime misconfiguration.
type PendingPod struct {
	Namespace string `json:"namespace" yaml:"namespace"`
	Name      string `json:"name" yaml:"name"`
	Node      string `json:"node,omitempty" yaml:"node,omitempty"`
	Phase     string `json:"phase" yaml:"phase"`
	Reason    string `json:"reason,omitempty" yaml:"reason,omitempty"`
	Message   string `json:"message,omitempty" yaml:"message,omitempty"`
}

// DaemonSetHealth summarizes rollout state of one operator operand.
type DaemonSetHealth struct {
	Name      string `json:"name" yaml:"name"`
	Found     bool   `json:"found" yaml:"found"`
	Desired   int32  `json:"desired" yaml:"desired"`
	Ready     int32  `json:"ready" yaml:"ready"`
	Available int32  `json:"available" yaml:"available"`
}

// Healthy reports whether the daemonset exists and all desired pods are ready.
func (d *DaemonSetHealth) Healthy() bool {
	return d.Found && d.Desired > 0 && d.Ready == d.Desired
}

// Discovery queries cluster-level GPU state: nodes, stuck workloads, and
// operator operand health.
type Discovery struct {
	clientset client.Interface
	limiter   *rate.Limiter
}

// NewDiscovery creates a Discovery with the default apiserver query limits.
func NewDiscovery(clientset client.Interface) *Discovery {
	return &Discovery{
		clientset: clientset,
		limiter:   rate.NewLimiter(defaultQueryRate, defaultQueryBurst),
	}
}

// ListNodes returns all cluster nodes with their roles, readiness, GPU
// resources, and the number of GPU pods scheduled on each.
func (d *Discovery) ListNodes(ctx context.Context) ([]Node, error) {
	list, err := d.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeDiscovery, "failed to list nodes", err)
	}

	nodes := make([]Node, 0, len(list.Items))
	for i := range list.Items {
		n := &list.Items[i]

		node := Node{
			Name:           n.Name,
			Roles:          nodeRoles(n),
			Ready:          nodeReady(n),
			RuntimeVersion: n.Status.NodeInfo.ContainerRuntimeVersion,
			KubeletVersion: n.Status.NodeInfo.KubeletVersion,
		}
		if q, ok := n.Status.Capacity[GPUResourceName]; ok {
			node.GPUCapacity = q.Value()
		}
		if q, ok := n.Status.Allocatable[GPUResourceName]; ok {
			node.GPUAllocatable = q.Value()
		}

		// A failed count degrades that node's number to zero instead of
		// aborting discovery; the count is context, not the diagnosis.
		count, err := d.gpuPodCount(ctx, n.Name)
		if err != nil {
			slog.Warn("failed to count GPU pods on node", "node", n.Name, "error", err)
		}
		node.GPUPodCount = count

		nodes = append(nodes, node)
	}

	return nodes, nil
}

// GPUNodes returns only the nodes that advertise GPU capacity.
func (d *Discovery) GPUNodes(ctx context.Context) ([]Node, error) {
	nodes, err := d.ListNodes(ctx)
	if err != nil {
		return nil, err
	}

	gpuNodes := nodes[:0]
	for _, n := range nodes {
		if n.HasGPU() {
			gpuNodes = append(gpuNodes, n)
		}
	}
	return gpuNodes, nil
}

// PendingGPUPods returns GPU workloads across all namespaces that are stuck
// pending or whose containers cannot be created.
func (d *Discovery) PendingGPUPods(ctx context.Context) ([]PendingPod, error) {
	list, err := d.clientset.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeDiscovery, "failed to list pods", err)
	}

	var pending []PendingPod
	for i := range list.Items {
		pod := &list.Items[i]
		if !podRequestsGPU(pod) {
			continue
		}

		if pod.Status.Phase == corev1.PodPending {
			pending = append(pending, PendingPod{
				Namespace: pod.Namespace,
				Name:      pod.Name,
				Node:      pod.Spec.NodeName,
				Phase:     string(pod.Status.Phase),
				Reason:    pod.Status.Reason,
				Message:   pod.Status.Message,
			})
			continue
		}

		for _, cs := range pod.Status.ContainerStatuses {
			if w := cs.State.Waiting; w != nil && stuckWaitingReason(w.Reason) {
				pending = append(pending, PendingPod{
					Namespace: pod.Namespace,
					Name:      pod.Name,
					Node:      pod.Spec.NodeName,
					Phase:     string(pod.Status.Phase),
					Reason:    w.Reason,
					Message:   w.Message,
				})
				break
			}
		}
	}

	return pending, nil
}

// OperandHealth returns rollout health for the GPU operator operand
// daemonsets in the given namespace. A missing daemonset is reported as
// Found=false, not as an error: clusters without the operator are a valid
// diagnostic subject.
func (d *Discovery) OperandHealth(ctx context.Context, namespace string) ([]DaemonSetHealth, error) {
	if namespace == "" {
		namespace = OperatorNamespace
	}

	health := make([]DaemonSetHealth, 0, len(OperandDaemonSets))
	for _, name := range OperandDaemonSets {
		ds, err := d.clientset.AppsV1().DaemonSets(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			health = append(health, DaemonSetHealth{Name: name})
			continue
		}
		health = append(health, DaemonSetHealth{
			Name:      name,
			Found:     true,
			Desired:   ds.Status.DesiredNumberScheduled,
			Ready:     ds.Status.NumberReady,
			Available: ds.Status.NumberAvailable,
		})
	}

	return health, nil
}

func (d *Discovery) gpuPodCount(ctx context.Context, node string) (int, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrCodeDiscovery,
			fmt.Sprintf("rate limiter interrupted while counting pods on %s", node), err)
	}

	list, err := d.clientset.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{
		FieldSelector: "spec.nodeName=" + node,
	})
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrCodeDiscovery,
			fmt.Sprintf("failed to list pods on node %s", node), err)
	}

	count := 0
	for i := range list.Items {
		if list.Items[i].Spec.NodeName != node {
			continue
		}
		if podRequestsGPU(&list.Items[i]) {
			count++
		}
	}
	return count, nil
}

// nodeRoles extracts role names from node-role labels, sorted for
// deterministic output. An unlabeled node is a worker.
func nodeRoles(n *corev1.Node) []string {
	var roles []string
	for label := range n.Labels {
		if role, ok := strings.CutPrefix(label, roleLabelPrefix); ok && role != "" {
			roles = append(roles, role)
		}
	}
	if len(roles) == 0 {
		return []string{defaultRole}
	}
	sort.Strings(roles)
	return roles
}

func nodeReady(n *corev1.Node) bool {
	for _, cond := range n.Status.Conditions {
		if cond.Type == corev1.NodeReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}

func podRequestsGPU(pod *corev1.Pod) bool {
	for i := range pod.Spec.Containers {
		res := &pod.Spec.Containers[i].Resources
		if q, ok := res.Limits[GPUResourceName]; ok && !q.IsZero() {
			return true
		}
		if q, ok := res.Requests[GPUResourceName]; ok && !q.IsZero() {
			return true
		}
	}
	return false
}

func stuckWaitingReason(reason string) bool {
	switch reason {
	case "CreateContainerError", "ContainerStatusUnknown":
		return true
	}
	return false
}
