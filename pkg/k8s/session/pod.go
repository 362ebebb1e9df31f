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
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"
)

// AppLabel marks every inspection pod so they can be listed and swept as a group.
const AppLabel = "gpu-cluster-debug"

// hostMounts are the node filesystem subtrees the inspection pod needs:
// /etc and /var for containerd configs and logs, /usr for runtime binaries,
// /dev for GPU device nodes. All mounted read-only under /host.
var hostMounts = []string{"etc", "var", "usr", "dev"}

// buildPod constructs the privileged inspection pod pinned to the session's
// node. The pod shares the host namespaces and mounts the host root subtrees
// read-only; it runs nothing but sleep, commands are injected via exec.
func (s *Session) buildPod() *corev1.Pod {
	mounts := make([]corev1.VolumeMount, 0, len(hostMounts))
	volumes := make([]corev1.Volume, 0, len(hostMounts))
	for _, sub := range hostMounts {
		mounts = append(mounts, corev1.VolumeMount{
			Name:      "host-" + sub,
			MountPath: "/host/" + sub,
			ReadOnly:  true,
		})
		volumes = append(volumes, corev1.Volume{
			Name: "host-" + sub,
			VolumeSource: corev1.VolumeSource{
				HostPath: &corev1.HostPathVolumeSource{
					Path: "/" + sub,
				},
			},
		})
	}

	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      s.podName,
			Namespace: s.config.Namespace,
			Labels: map[string]string{
				"app":  AppLabel,
				"node": s.node,
			},
		},
		Spec: corev1.PodSpec{
			NodeName:      s.node,
			HostNetwork:   true,
			HostPID:       true,
			HostIPC:       true,
			RestartPolicy: corev1.RestartPolicyNever,
			Tolerations: []corev1.Toleration{
				{Operator: corev1.TolerationOpExists},
			},
			Containers: []corev1.Container{
				{
					Name:    containerName,
					Image:   s.config.Image,
					Command: []string{"/bin/sleep", "300"},
					SecurityContext: &corev1.SecurityContext{
						Privileged: ptr.To(true),
					},
					VolumeMounts: mounts,
				},
			},
			Volumes: volumes,
		},
	}
}
