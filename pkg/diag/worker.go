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
	"log/slog"
	"time"

	apperrors "github.com/NVIDIA/gpu-runtime-doctor/pkg/errors"
	"github.com/NVIDIA/gpu-runtime-doctor/pkg/runtimeconfig"
)

const (
	// hostRoot is where the node filesystem is mounted in the inspection pod.
	hostRoot = "/host"

	fileCheckTimeout = 10 * time.Second
	fileReadTimeout  = 30 * time.Second

	// probeTimeout bounds the symptom probe, whose journal scan can be slow
	// on nodes with large journals.
	probeTimeout = 90 * time.Second
)

// inspectSession is the slice of session behavior the worker needs.
// Satisfied by *session.Session; tests substitute fakes.
type inspectSession interface {
	Node() string
	Provision(ctx context.Context) error
	AwaitReady(ctx context.Context) error
	Exec(ctx context.Context, command []string, timeout time.Duration) (string, error)
	FileExists(ctx context.Context, path string, timeout time.Duration) (bool, error)
	ReadFile(ctx context.Context, path string, timeout time.Duration) (string, error)
	Teardown(ctx context.Context) error
}

// worker examines a single node through one inspection session. It never
// returns an error: every failure mode is captured inside the Outcome so one
// broken node cannot abort the fleet-wide run.
type worker struct {
	session inspectSession
	cleanup bool
}

func (w *worker) diagnose(ctx context.Context) *Outcome {
	node := w.session.Node()
	outcome := &Outcome{Node: node}
	started := time.Now()

	if w.cleanup {
		defer func() {
			if err := w.session.Teardown(ctx); err != nil {
				slog.Warn("inspection pod teardown failed", "node", node, "error", err)
			}
		}()
	}

	if err := w.session.Provision(ctx); err != nil {
		outcome.Error = err.Error()
		nodeDiagnosisTotal.WithLabelValues(resultError).Inc()
		return outcome
	}
	if err := w.session.AwaitReady(ctx); err != nil {
		outcome.Error = err.Error()
		nodeDiagnosisTotal.WithLabelValues(resultError).Inc()
		return outcome
	}
	outcome.AgentDeployed = true

	outcome.Records = w.collectRuntimeConfigs(ctx)
	outcome.ProbeOutput = w.runProbe(ctx)

	nodeDiagnosisTotal.WithLabelValues(resultSuccess).Inc()
	nodeDiagnosisDuration.Observe(time.Since(started).Seconds())
	slog.Debug("node diagnosis complete",
		"node", node,
		"configured", outcome.Configured(),
		"duration", time.Since(started))

	return outcome
}

// collectRuntimeConfigs examines every candidate config path. A failure on
// one path is recorded on that path's record only; the remaining paths are
// still examined.
func (w *worker) collectRuntimeConfigs(ctx context.Context) []RuntimeConfigRecord {
	paths := runtimeconfig.CandidatePaths()
	records := make([]RuntimeConfigRecord, 0, len(paths))

	for _, path := range paths {
		records = append(records, w.examinePath(ctx, path))
	}
	return records
}

func (w *worker) examinePath(ctx context.Context, path string) RuntimeConfigRecord {
	record := RuntimeConfigRecord{Path: path}

	exists, err := w.session.FileExists(ctx, hostRoot+path, fileCheckTimeout)
	if err != nil {
		record.Error = fmt.Sprintf("failed to check %s: %v", path, err)
		return record
	}
	record.Exists = exists
	if !exists {
		return record
	}

	content, err := w.session.ReadFile(ctx, hostRoot+path, fileReadTimeout)
	if err != nil {
		record.Error = fmt.Sprintf("failed to read %s: %v", path, err)
		return record
	}
	record.Content = content

	inspection := runtimeconfig.Inspect(content)
	record.Configured = inspection.Configured
	if !record.Configured {
		return record
	}

	record.BinaryName = inspection.BinaryName
	if record.BinaryName != "" {
		binaryExists, err := w.session.FileExists(ctx, hostRoot+record.BinaryName, fileCheckTimeout)
		if err != nil {
			record.Error = fmt.Sprintf("failed to verify binary %s: %v", record.BinaryName, err)
			return record
		}
		record.BinaryExists = binaryExists
	}

	return record
}

func (w *worker) runProbe(ctx context.Context) string {
	out, err := w.session.Exec(ctx, probeCommand(), probeTimeout)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeTimeout) {
			return "GPU detection timed out"
		}
		return fmt.Sprintf("GPU detection failed: %v", err)
	}
	return out
}
