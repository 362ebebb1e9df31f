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
	"bytes"
	"context"
	"errors"
	"net/http"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/remotecommand"
	utilexec "k8s.io/client-go/util/exec"
)

// Executor runs a command inside a running pod's container. It is the
// remote-execution boundary of the session; tests substitute a fake.
type Executor interface {
	Exec(ctx context.Context, namespace, pod, container string, command []string) (stdout, stderr string, err error)
}

// SPDYExecutor executes commands through the Kubernetes exec subresource
// over SPDY, the same transport kubectl exec uses.
type SPDYExecutor struct {
	clientset  kubernetes.Interface
	restConfig *rest.Config
}

// NewSPDYExecutor creates an Executor backed by the exec subresource.
// The rest.Config must be the one the clientset was built from.
func NewSPDYExecutor(clientset kubernetes.Interface, restConfig *rest.Config) *SPDYExecutor {
	return &SPDYExecutor{
		clientset:  clientset,
		restConfig: restConfig,
	}
}

// Exec runs the command and returns captured stdout and stderr. A non-zero
// exit is reported as an error (see ExitCode); the context carries the
// deadline since the exec protocol has no cancellation of its own.
func (e *SPDYExecutor) Exec(ctx context.Context, namespace, pod, container string, command []string) (string, string, error) {
	req := e.clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Namespace(namespace).
		Name(pod).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: container,
			Command:   command,
			Stdout:    true,
			Stderr:    true,
		}, scheme.ParameterCodec)

	exec, err := remotecommand.NewSPDYExecutor(e.restConfig, http.MethodPost, req.URL())
	if err != nil {
		return "", "", err
	}

	var stdout, stderr bytes.Buffer
	err = exec.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdout: &stdout,
		Stderr: &stderr,
	})

	return stdout.String(), stderr.String(), err
}

// ExitCode extracts the remote command's exit code from an Executor error.
// Returns (code, true) when the command ran and exited non-zero, (0, false)
// for transport or other failures.
func ExitCode(err error) (int, bool) {
	var exitErr utilexec.CodeExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}
