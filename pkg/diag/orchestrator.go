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
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/NVIDIA/gpu-runtime-doctor/pkg/k8s/client"
	"github.com/NVIDIA/gpu-runtime-doctor/pkg/k8s/session"
)

const (
	// DefaultConcurrency bounds simultaneous per-node inspections.
	DefaultConcurrency = 5

	// DefaultCollectionTimeout is the hard per-node time budget covering
	// provisioning, config collection, and the symptom probe.
	DefaultCollectionTimeout = 120 * time.Second

	sweepTimeout = 60 * time.Second
)

// Config holds fleet diagnosis settings.
type Config struct {
	// Namespace is where inspection pods run.
	Namespace string

	// Image is the inspection pod image.
	Image string

	// PodNamePrefix overrides the inspection pod name prefix.
	PodNamePrefix string

	// Concurrency bounds how many nodes are examined at once.
	Concurrency int

	// ReadyTimeout bounds inspection pod readiness polling.
	ReadyTimeout time.Duration

	// CollectionTimeout is the hard per-node time budget.
	CollectionTimeout time.Duration

	// KeepPods skips all teardown, leaving inspection pods behind for
	// manual debugging.
	KeepPods bool
}

// Orchestrator fans the per-node diagnosis out over a bounded worker pool
// and collects exactly one Outcome per requested node. Individual node
// failures never abort the run.
type Orchestrator struct {
	clientset  client.Interface
	config     Config
	newSession func(node string) inspectSession
}

// New creates an Orchestrator. Zero config fields get defaults.
func New(clientset client.Interface, executor session.Executor, config Config) *Orchestrator {
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConcurrency
	}
	if config.CollectionTimeout <= 0 {
		config.CollectionTimeout = DefaultCollectionTimeout
	}
	if config.PodNamePrefix == "" {
		config.PodNamePrefix = session.DefaultPodNamePrefix
	}

	return &Orchestrator{
		clientset: clientset,
		config:    config,
		newSession: func(node string) inspectSession {
			return session.New(clientset, executor, session.Config{
				Namespace:     config.Namespace,
				Image:         config.Image,
				PodNamePrefix: config.PodNamePrefix,
				ReadyTimeout:  config.ReadyTimeout,
			}, node)
		},
	}
}

// Run examines the given nodes in parallel and returns one Outcome per node.
// An empty node list yields an empty result, not an error. The final sweep
// deletes every derived inspection pod even when the context was cancelled
// mid-run.
func (o *Orchestrator) Run(ctx context.Context, nodes []string) (map[string]*Outcome, error) {
	results := make(map[string]*Outcome, len(nodes))
	if len(nodes) == 0 {
		return results, nil
	}

	started := time.Now()
	defer func() {
		fleetDiagnosisDuration.Observe(time.Since(started).Seconds())
		fleetNodesExamined.Set(float64(len(nodes)))
	}()

	if !o.config.KeepPods {
		defer o.sweep(nodes)
	}

	slog.Info("starting fleet diagnosis",
		"nodes", len(nodes),
		"concurrency", o.config.Concurrency,
		"namespace", o.config.Namespace)

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(o.config.Concurrency)

	for _, node := range nodes {
		g.Go(func() error {
			outcome := o.diagnoseNode(ctx, node)
			mu.Lock()
			results[node] = outcome
			mu.Unlock()
			return nil
		})
	}

	// Workers report failures through their Outcome, never as errors.
	_ = g.Wait()

	return results, nil
}

// diagnoseNode runs one worker under the hard collection timeout. A worker
// stuck in a hung remote exec is abandoned; its deferred teardown still runs
// on a context detached from cancellation.
func (o *Orchestrator) diagnoseNode(ctx context.Context, node string) *Outcome {
	cctx, cancel := context.WithTimeout(ctx, o.config.CollectionTimeout)
	defer cancel()

	w := &worker{session: o.newSession(node), cleanup: !o.config.KeepPods}

	done := make(chan *Outcome, 1)
	go func() {
		done <- w.diagnose(cctx)
	}()

	select {
	case outcome := <-done:
		return outcome
	case <-cctx.Done():
		nodeDiagnosisTotal.WithLabelValues(resultTimeout).Inc()
		msg := fmt.Sprintf("analysis timed out after %s", o.config.CollectionTimeout)
		if ctx.Err() != nil {
			msg = "analysis cancelled"
		}
		slog.Warn("node diagnosis abandoned", "node", node, "reason", msg)
		return &Outcome{Node: node, Error: msg}
	}
}

// sweep deletes every inspection pod the run could have created, by
// re-deriving pod names from node names. Runs on a fresh context so a
// cancelled run still cleans up.
func (o *Orchestrator) sweep(nodes []string) {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	for _, node := range nodes {
		name := session.PodName(o.config.PodNamePrefix, node)
		err := o.clientset.CoreV1().Pods(o.config.Namespace).
			Delete(ctx, name, metav1.DeleteOptions{})
		if err != nil && !k8serrors.IsNotFound(err) {
			slog.Warn("failed to sweep inspection pod",
				"pod", name, "namespace", o.config.Namespace, "error", err)
		}
	}
}
