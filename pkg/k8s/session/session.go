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
	"fmt"
	"log/slog"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"

	apperrors "github.com/NVIDIA/gpu-runtime-doctor/pkg/errors"
)

// Provision creates the inspection pod on the session's node. If a pod with
// the derived name already exists, the call is treated as idempotent re-entry
// rather than a failure; AwaitReady decides whether that pod is usable.
func (s *Session) Provision(ctx context.Context) error {
	if s.state == StateTornDown || s.state == StateError {
		return apperrors.New(apperrors.ErrCodeProvisioning,
			fmt.Sprintf("session for node %s is %s", s.node, s.state))
	}

	s.state = StateProvisioning

	_, err := s.clientset.CoreV1().Pods(s.config.Namespace).
		Create(ctx, s.buildPod(), metav1.CreateOptions{})
	if err != nil {
		if k8serrors.IsAlreadyExists(err) {
			slog.Debug("inspection pod already exists, reusing",
				"node", s.node, "pod", s.podName)
			return nil
		}
		s.state = StateError
		return apperrors.Wrap(apperrors.ErrCodeProvisioning,
			fmt.Sprintf("failed to create inspection pod on node %s", s.node), err)
	}

	slog.Debug("inspection pod created", "node", s.node, "pod", s.podName)
	return nil
}

// AwaitReady polls the inspection pod until it is running and its container
// reports ready, or the configured timeout elapses. On timeout the pod's
// status and events are folded into the returned error so the report can
// explain why scheduling failed.
func (s *Session) AwaitReady(ctx context.Context) error {
	if s.state != StateProvisioning {
		return apperrors.New(apperrors.ErrCodeProvisioning,
			fmt.Sprintf("session for node %s is %s, not provisioning", s.node, s.state))
	}

	err := wait.PollUntilContextTimeout(ctx, s.config.PollInterval, s.config.ReadyTimeout, true,
		func(ctx context.Context) (bool, error) {
			pod, err := s.clientset.CoreV1().Pods(s.config.Namespace).
				Get(ctx, s.podName, metav1.GetOptions{})
			if err != nil {
				if k8serrors.IsNotFound(err) {
					return false, nil // not created yet, keep waiting
				}
				return false, err
			}

			if pod.Status.Phase == corev1.PodFailed {
				return false, fmt.Errorf("pod failed: %s", pod.Status.Message)
			}

			if pod.Status.Phase != corev1.PodRunning {
				return false, nil
			}
			for _, cs := range pod.Status.ContainerStatuses {
				if cs.Name == containerName && cs.Ready {
					return true, nil
				}
			}
			return false, nil
		},
	)
	if err != nil {
		s.state = StateError
		detail := s.describePod(context.WithoutCancel(ctx))
		return apperrors.WrapWithContext(apperrors.ErrCodeProvisioning,
			fmt.Sprintf("inspection pod on node %s not ready within %s", s.node, s.config.ReadyTimeout),
			err,
			map[string]any{"detail": detail},
		)
	}

	s.state = StateReady
	slog.Debug("inspection pod ready", "node", s.node, "pod", s.podName)
	return nil
}

// Exec runs one command inside the ready inspection pod and returns its
// combined output. The timeout is mandatory: the exec protocol has no
// cancellation, so every call must carry its own deadline.
func (s *Session) Exec(ctx context.Context, command []string, timeout time.Duration) (string, error) {
	if s.state != StateReady && s.state != StateInUse {
		return "", apperrors.New(apperrors.ErrCodeRemoteExec,
			fmt.Sprintf("session for node %s is %s, not ready", s.node, s.state))
	}
	s.state = StateInUse

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stdout, stderr, err := s.executor.Exec(execCtx, s.config.Namespace, s.podName, containerName, command)
	combined := stdout + stderr
	if err != nil {
		if execCtx.Err() != nil {
			return combined, apperrors.Wrap(apperrors.ErrCodeTimeout,
				fmt.Sprintf("command on node %s exceeded %s", s.node, timeout), err)
		}
		return combined, apperrors.Wrap(apperrors.ErrCodeRemoteExec,
			fmt.Sprintf("command on node %s failed", s.node), err)
	}

	return combined, nil
}

// FileExists tests for a regular file inside the pod (host paths are visible
// under /host). A non-zero exit from test means "absent", not an error.
func (s *Session) FileExists(ctx context.Context, path string, timeout time.Duration) (bool, error) {
	_, err := s.Exec(ctx, []string{"test", "-f", path}, timeout)
	if err == nil {
		return true, nil
	}
	if _, exited := ExitCode(err); exited {
		return false, nil
	}
	return false, err
}

// ReadFile returns the content of a file inside the pod.
func (s *Session) ReadFile(ctx context.Context, path string, timeout time.Duration) (string, error) {
	return s.Exec(ctx, []string{"cat", path}, timeout)
}

// Teardown deletes the inspection pod. It is safe to call multiple times,
// tolerates "not found" as success, and must run on every exit path of a
// diagnostic session including error escalation and cancellation. It uses a
// context detached from cancellation so an interrupted run still cleans up.
func (s *Session) Teardown(ctx context.Context) error {
	if s.state == StateTornDown {
		return nil
	}

	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	err := s.clientset.CoreV1().Pods(s.config.Namespace).
		Delete(delCtx, s.podName, metav1.DeleteOptions{})
	if err != nil && !k8serrors.IsNotFound(err) {
		return apperrors.Wrap(apperrors.ErrCodeCleanup,
			fmt.Sprintf("failed to delete inspection pod %s/%s", s.config.Namespace, s.podName), err)
	}

	s.state = StateTornDown
	slog.Debug("inspection pod deleted", "node", s.node, "pod", s.podName)
	return nil
}

// describePod assembles human-readable diagnostic text about the pod for
// inclusion in readiness-timeout errors. Best effort: lookup failures are
// reported as text, never as errors.
func (s *Session) describePod(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pod, err := s.clientset.CoreV1().Pods(s.config.Namespace).
		Get(ctx, s.podName, metav1.GetOptions{})
	if err != nil {
		return fmt.Sprintf("pod %s/%s: %v", s.config.Namespace, s.podName, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "phase=%s", pod.Status.Phase)
	if pod.Status.Reason != "" {
		fmt.Fprintf(&b, " reason=%s", pod.Status.Reason)
	}
	if pod.Status.Message != "" {
		fmt.Fprintf(&b, " message=%q", pod.Status.Message)
	}
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.State.Waiting != nil {
			fmt.Fprintf(&b, "; container %s waiting: %s %s",
				cs.Name, cs.State.Waiting.Reason, cs.State.Waiting.Message)
		}
	}

	events, err := s.clientset.CoreV1().Events(s.config.Namespace).List(ctx, metav1.ListOptions{
		FieldSelector: fmt.Sprintf("involvedObject.name=%s", s.podName),
	})
	if err == nil {
		for _, ev := range events.Items {
			fmt.Fprintf(&b, "; event %s: %s", ev.Reason, ev.Message)
		}
	}

	return b.String()
}
