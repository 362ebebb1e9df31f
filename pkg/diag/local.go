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
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	systemddbus "github.com/coreos/go-systemd/v22/dbus"

	"github.com/NVIDIA/gpu-runtime-doctor/pkg/runtimeconfig"
)

const (
	containerdUnit = "containerd.service"

	journalTimeout = 30 * time.Second
)

// systemdConn is the slice of the systemd dbus API the local inspector uses.
type systemdConn interface {
	GetUnitPropertiesContext(ctx context.Context, unit string) (map[string]interface{}, error)
	Close()
}

// LocalInspector diagnoses the node it runs on directly, without the
// Kubernetes API. Useful over SSH on a node that cannot schedule pods.
type LocalInspector struct {
	connect    func(ctx context.Context) (systemdConn, error)
	runJournal func(ctx context.Context) (string, error)
	hostname   func() (string, error)
	readFile   func(path string) ([]byte, error)
}

// NewLocalInspector creates a LocalInspector for the current host.
func NewLocalInspector() *LocalInspector {
	return &LocalInspector{
		connect: func(ctx context.Context) (systemdConn, error) {
			return systemddbus.NewSystemConnectionContext(ctx)
		},
		runJournal: func(ctx context.Context) (string, error) {
			jctx, cancel := context.WithTimeout(ctx, journalTimeout)
			defer cancel()
			out, err := exec.CommandContext(jctx, "journalctl",
				"-u", "containerd", "--since", "1 hour ago", "--no-pager", "-q").Output()
			return string(out), err
		},
		hostname: os.Hostname,
		readFile: os.ReadFile,
	}
}

// Diagnose examines the local node and returns an Outcome shaped like the
// remote path's, so reporting does not care which mode produced it. Every
// section is best effort.
func (l *LocalInspector) Diagnose(ctx context.Context) *Outcome {
	node, err := l.hostname()
	if err != nil {
		node = "localhost"
	}

	outcome := &Outcome{Node: node}
	outcome.Records = l.collectConfigs()
	outcome.ProbeOutput = l.probe(ctx, node)
	return outcome
}

func (l *LocalInspector) collectConfigs() []RuntimeConfigRecord {
	paths := runtimeconfig.CandidatePaths()
	records := make([]RuntimeConfigRecord, 0, len(paths))

	for _, path := range paths {
		record := RuntimeConfigRecord{Path: path}

		data, err := l.readFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				record.Error = fmt.Sprintf("failed to read %s: %v", path, err)
			}
			records = append(records, record)
			continue
		}

		record.Exists = true
		record.Content = string(data)

		inspection := runtimeconfig.Inspect(record.Content)
		record.Configured = inspection.Configured
		if record.Configured {
			record.BinaryName = inspection.BinaryName
			if record.BinaryName != "" {
				if info, err := os.Stat(record.BinaryName); err == nil && info.Mode().IsRegular() {
					record.BinaryExists = true
				}
			}
		}

		records = append(records, record)
	}

	return records
}

func (l *LocalInspector) probe(ctx context.Context, node string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== LOCAL NODE GPU DETECTION ===\nNode: %s\n\n", node)

	fmt.Fprintf(&b, "Containerd Service:\n  %s\n\n", l.containerdState(ctx))

	b.WriteString("Containerd Errors (last hour):\n")
	errors := l.journalErrors(ctx)
	if len(errors) == 0 {
		b.WriteString("  No containerd errors found\n")
	}
	for _, line := range errors {
		fmt.Fprintf(&b, "  %s\n", line)
	}
	b.WriteString("\n")

	b.WriteString("NVIDIA Devices:\n")
	devices, _ := filepath.Glob("/dev/nvidia*")
	if len(devices) == 0 {
		b.WriteString("  No NVIDIA devices found\n")
	}
	for _, dev := range devices {
		fmt.Fprintf(&b, "  %s\n", dev)
	}

	return b.String()
}

// containerdState reads the unit's active state over the systemd bus.
func (l *LocalInspector) containerdState(ctx context.Context) string {
	conn, err := l.connect(ctx)
	if err != nil {
		return fmt.Sprintf("could not query systemd: %v", err)
	}
	defer conn.Close()

	props, err := conn.GetUnitPropertiesContext(ctx, containerdUnit)
	if err != nil {
		return fmt.Sprintf("could not query %s: %v", containerdUnit, err)
	}

	active, _ := props["ActiveState"].(string)
	sub, _ := props["SubState"].(string)
	return fmt.Sprintf("%s %s (%s)", containerdUnit, active, sub)
}

// journalErrors scans the last hour of containerd journal lines for errors
// mentioning nvidia or the runtime, capped to the first five.
func (l *LocalInspector) journalErrors(ctx context.Context) []string {
	out, err := l.runJournal(ctx)
	if err != nil {
		return []string{fmt.Sprintf("could not access containerd logs: %v", err)}
	}

	var errors []string
	for line := range strings.Lines(out) {
		lower := strings.ToLower(line)
		if !strings.Contains(lower, "error") {
			continue
		}
		if strings.Contains(lower, "nvidia") || strings.Contains(lower, "runtime") {
			errors = append(errors, strings.TrimSpace(line))
			if len(errors) == 5 {
				break
			}
		}
	}
	return errors
}
