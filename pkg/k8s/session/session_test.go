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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
	utilexec "k8s.io/client-go/util/exec"

	apperrors "github.com/NVIDIA/gpu-runtime-doctor/pkg/errors"
)

type fakeExecutor struct {
	execFn func(ctx context.Context, namespace, pod, container string, command []string) (string, string, error)
	calls  [][]string
}

func (f *fakeExecutor) Exec(ctx context.Context, namespace, pod, container string, command []string) (string, string, error) {
	f.calls = append(f.calls, command)
	if f.execFn != nil {
		return f.execFn(ctx, namespace, pod, container, command)
	}
	return "", "", nil
}

func testConfig() Config {
	return Config{
		Namespace:    "kube-system",
		Image:        "busybox:1.36",
		ReadyTimeout: 200 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
	}
}

func readyPod(namespace, name, node string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Spec:       corev1.PodSpec{NodeName: node},
		Status: corev1.PodStatus{
			Phase: corev1.PodRunning,
			ContainerStatuses: []corev1.ContainerStatus{
				{Name: "debug", Ready: true},
			},
		},
	}
}

func TestPodNameDerivation(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "gpu-debug-worker-1", PodName("gpu-debug", "worker-1"))
	assert.Equal(t, "gpu-debug-ip-10-0-0-1-ec2-internal",
		PodName("gpu-debug", "ip-10-0-0-1.ec2.internal"))

	// Stable derivation, same input always yields the same name.
	assert.Equal(t,
		PodName("gpu-debug", "node.a.b"),
		PodName("gpu-debug", "node.a.b"))
}

func TestBuildPodSpec(t *testing.T) {
	t.Parallel()

	s := New(fake.NewClientset(), &fakeExecutor{}, testConfig(), "gpu-node-1")
	pod := s.buildPod()

	assert.Equal(t, "gpu-debug-gpu-node-1", pod.Name)
	assert.Equal(t, "kube-system", pod.Namespace)
	assert.Equal(t, "gpu-node-1", pod.Spec.NodeName)
	assert.True(t, pod.Spec.HostNetwork)
	assert.True(t, pod.Spec.HostPID)
	assert.True(t, pod.Spec.HostIPC)
	assert.Equal(t, corev1.RestartPolicyNever, pod.Spec.RestartPolicy)

	require.Len(t, pod.Spec.Tolerations, 1)
	assert.Equal(t, corev1.TolerationOpExists, pod.Spec.Tolerations[0].Operator)

	require.Len(t, pod.Spec.Containers, 1)
	c := pod.Spec.Containers[0]
	assert.Equal(t, "debug", c.Name)
	assert.Equal(t, []string{"/bin/sleep", "300"}, c.Command)
	require.NotNil(t, c.SecurityContext)
	require.NotNil(t, c.SecurityContext.Privileged)
	assert.True(t, *c.SecurityContext.Privileged)

	mounts := map[string]bool{}
	for _, m := range c.VolumeMounts {
		assert.True(t, m.ReadOnly, "mount %s must be read-only", m.MountPath)
		mounts[m.MountPath] = true
	}
	for _, p := range []string{"/host/etc", "/host/var", "/host/usr", "/host/dev"} {
		assert.True(t, mounts[p], "missing mount %s", p)
	}
}

func TestProvisionCreatesPod(t *testing.T) {
	t.Parallel()

	clientset := fake.NewClientset()
	s := New(clientset, &fakeExecutor{}, testConfig(), "node-1")

	require.NoError(t, s.Provision(context.Background()))
	assert.Equal(t, StateProvisioning, s.State())

	pod, err := clientset.CoreV1().Pods("kube-system").
		Get(context.Background(), "gpu-debug-node-1", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "node-1", pod.Spec.NodeName)
}

func TestProvisionIdempotent(t *testing.T) {
	t.Parallel()

	clientset := fake.NewClientset(readyPod("kube-system", "gpu-debug-node-1", "node-1"))
	s := New(clientset, &fakeExecutor{}, testConfig(), "node-1")

	// Existing pod with the derived name is reused, not an error.
	require.NoError(t, s.Provision(context.Background()))
	require.NoError(t, s.AwaitReady(context.Background()))
	assert.Equal(t, StateReady, s.State())
}

func TestAwaitReadyTimeout(t *testing.T) {
	t.Parallel()

	pending := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "gpu-debug-node-1", Namespace: "kube-system"},
		Status:     corev1.PodStatus{Phase: corev1.PodPending},
	}
	clientset := fake.NewClientset(pending)
	s := New(clientset, &fakeExecutor{}, testConfig(), "node-1")

	require.NoError(t, s.Provision(context.Background()))
	err := s.AwaitReady(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeProvisioning, apperrors.CodeOf(err))
	assert.Equal(t, StateError, s.State())
}

func TestAwaitReadyPodFailed(t *testing.T) {
	t.Parallel()

	failed := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "gpu-debug-node-1", Namespace: "kube-system"},
		Status:     corev1.PodStatus{Phase: corev1.PodFailed, Message: "image pull failed"},
	}
	clientset := fake.NewClientset(failed)
	s := New(clientset, &fakeExecutor{}, testConfig(), "node-1")

	require.NoError(t, s.Provision(context.Background()))
	err := s.AwaitReady(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateError, s.State())
}

func TestExecRequiresReadyState(t *testing.T) {
	t.Parallel()

	s := New(fake.NewClientset(), &fakeExecutor{}, testConfig(), "node-1")
	_, err := s.Exec(context.Background(), []string{"hostname"}, time.Second)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeRemoteExec, apperrors.CodeOf(err))
}

func TestExecCombinesOutput(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{
		execFn: func(_ context.Context, _, _, _ string, _ []string) (string, string, error) {
			return "out", "err", nil
		},
	}
	clientset := fake.NewClientset(readyPod("kube-system", "gpu-debug-node-1", "node-1"))
	s := New(clientset, exec, testConfig(), "node-1")
	require.NoError(t, s.Provision(context.Background()))
	require.NoError(t, s.AwaitReady(context.Background()))

	out, err := s.Exec(context.Background(), []string{"hostname"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "outerr", out)
	assert.Equal(t, StateInUse, s.State())
}

func TestExecTimeout(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{
		execFn: func(ctx context.Context, _, _, _ string, _ []string) (string, string, error) {
			<-ctx.Done()
			return "", "", ctx.Err()
		},
	}
	clientset := fake.NewClientset(readyPod("kube-system", "gpu-debug-node-1", "node-1"))
	s := New(clientset, exec, testConfig(), "node-1")
	require.NoError(t, s.Provision(context.Background()))
	require.NoError(t, s.AwaitReady(context.Background()))

	_, err := s.Exec(context.Background(), []string{"sleep", "60"}, 20*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeTimeout, apperrors.CodeOf(err))
}

func TestFileExists(t *testing.T) {
	t.Parallel()

	outcomes := map[string]error{
		"/host/etc/containerd/config.toml": nil,
		"/host/etc/missing.toml":           utilexec.CodeExitError{Err: assert.AnError, Code: 1},
	}
	exec := &fakeExecutor{
		execFn: func(_ context.Context, _, _, _ string, command []string) (string, string, error) {
			return "", "", outcomes[command[2]]
		},
	}
	clientset := fake.NewClientset(readyPod("kube-system", "gpu-debug-node-1", "node-1"))
	s := New(clientset, exec, testConfig(), "node-1")
	require.NoError(t, s.Provision(context.Background()))
	require.NoError(t, s.AwaitReady(context.Background()))

	exists, err := s.FileExists(context.Background(), "/host/etc/containerd/config.toml", time.Second)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.FileExists(context.Background(), "/host/etc/missing.toml", time.Second)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestTeardownIdempotent(t *testing.T) {
	t.Parallel()

	clientset := fake.NewClientset(readyPod("kube-system", "gpu-debug-node-1", "node-1"))
	s := New(clientset, &fakeExecutor{}, testConfig(), "node-1")
	require.NoError(t, s.Provision(context.Background()))
	require.NoError(t, s.AwaitReady(context.Background()))

	require.NoError(t, s.Teardown(context.Background()))
	assert.Equal(t, StateTornDown, s.State())

	// Second call is a no-op, not an error.
	require.NoError(t, s.Teardown(context.Background()))

	_, err := clientset.CoreV1().Pods("kube-system").
		Get(context.Background(), "gpu-debug-node-1", metav1.GetOptions{})
	assert.Error(t, err)
}

func TestTeardownToleratesMissingPod(t *testing.T) {
	t.Parallel()

	s := New(fake.NewClientset(), &fakeExecutor{}, testConfig(), "node-1")
	require.NoError(t, s.Teardown(context.Background()))
	assert.Equal(t, StateTornDown, s.State())
}

func TestTeardownFromErrorState(t *testing.T) {
	t.Parallel()

	clientset := fake.NewClientset()
	s := New(clientset, &fakeExecutor{}, testConfig(), "node-1")
	require.NoError(t, s.Provision(context.Background()))
	require.Error(t, s.AwaitReady(context.Background())) // pod never becomes ready
	assert.Equal(t, StateError, s.State())

	require.NoError(t, s.Teardown(context.Background()))
	assert.Equal(t, StateTornDown, s.State())
}

func TestTeardownSurvivesCancelledContext(t *testing.T) {
	t.Parallel()

	clientset := fake.NewClientset(readyPod("kube-system", "gpu-debug-node-1", "node-1"))
	s := New(clientset, &fakeExecutor{}, testConfig(), "node-1")
	require.NoError(t, s.Provision(context.Background()))
	require.NoError(t, s.AwaitReady(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, s.Teardown(ctx))
	assert.Equal(t, StateTornDown, s.State())
}

func TestResolveImage(t *testing.T) {
	t.Parallel()

	resolved, err := ResolveImage("nvcr.io/nvidia/cuda:12.4.0-base-ubuntu22.04")
	require.NoError(t, err)
	assert.Equal(t, "nvcr.io/nvidia/cuda:12.4.0-base-ubuntu22.04", resolved)

	resolved, err = ResolveImage(DefaultImage)
	require.NoError(t, err)
	assert.Equal(t, DefaultImage, resolved)

	// Bare names get the implicit latest tag made explicit.
	resolved, err = ResolveImage("busybox")
	require.NoError(t, err)
	assert.Equal(t, "docker.io/library/busybox:latest", resolved)

	_, err = ResolveImage("")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidRequest, apperrors.CodeOf(err))

	_, err = ResolveImage("UPPER CASE not valid!!")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidRequest, apperrors.CodeOf(err))
}
