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

// probeScript is the on-node symptom probe run inside the inspection pod.
// POSIX sh only: the pod image is not guaranteed to carry anything richer.
// Host paths are visible under /host; journalctl and device listing chroot
// into the host root so they see the node's journal and /dev.
//
// Every section is best effort. A probe that can answer only some questions
// still answers those.
const probeScript = `
echo "=== GPU DETECTION RESULTS ==="
echo "Node: $(hostname 2>/dev/null || echo Unknown)"
echo ""

echo "Containerd Config:"
if [ -f /host/etc/containerd/config.toml ]; then
  echo "  Config exists ($(wc -c < /host/etc/containerd/config.toml) chars)"
else
  echo "  Config file not found"
fi
echo ""

echo "NVIDIA Runtime Binary:"
found=""
for p in /host/usr/local/nvidia/toolkit/nvidia-container-runtime \
         /host/usr/bin/nvidia-container-runtime \
         /host/usr/local/bin/nvidia-container-runtime; do
  if [ -f "$p" ]; then
    if [ -x "$p" ]; then status="executable"; else status="not executable"; fi
    real=$(echo "$p" | sed 's|^/host||')
    found="${found}      ${real} (${status})
"
  fi
done
if [ -n "$found" ]; then
  echo "  Found at:"
  printf '%s' "$found"
else
  echo "  Not found in standard locations"
fi
echo ""

echo "Containerd Errors (last hour):"
errors=$(chroot /host journalctl -u containerd --since "1 hour ago" --no-pager -q 2>/dev/null \
  | grep -i error | grep -iE "nvidia|runtime" | head -5)
if [ -n "$errors" ]; then
  echo "$errors" | while IFS= read -r line; do echo "  $line"; done
else
  echo "  No containerd errors found"
fi
echo ""

echo "NVIDIA Devices:"
devices=$(chroot /host ls -la /dev/nvidia* 2>/dev/null | head -10)
if [ -n "$devices" ]; then
  echo "$devices" | while IFS= read -r line; do echo "  $line"; done
else
  echo "  No NVIDIA devices found"
fi
echo ""

echo "=== END RESULTS ==="
`

// probeCommand wraps the probe script for remote execution.
func probeCommand() []string {
	return []string{"sh", "-c", probeScript}
}
