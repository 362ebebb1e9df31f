/*
Copyright © 2025 NVIDIA Corporation
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/gpu-runtime-doctor/pkg/defaults"
	"github.com/NVIDIA/gpu-runtime-doctor/pkg/diag"
	"github.com/NVIDIA/gpu-runtime-doctor/pkg/k8s/client"
	"github.com/NVIDIA/gpu-runtime-doctor/pkg/k8s/cluster"
	"github.com/NVIDIA/gpu-runtime-doctor/pkg/k8s/session"
	"github.com/NVIDIA/gpu-runtime-doctor/pkg/release"
	"github.com/NVIDIA/gpu-runtime-doctor/pkg/report"
	"github.com/NVIDIA/gpu-runtime-doctor/pkg/serializer"
	"github.com/NVIDIA/gpu-runtime-doctor/pkg/status"
)

func diagnoseCmd() *cli.Command {
	return &cli.Command{
		Name:                  "diagnose",
		EnableShellCompletion: true,
		Usage:                 "Analyze GPU runtime configuration across cluster nodes",
		Description: `Analyze every node's container runtime configuration for NVIDIA GPU support.

For each node, a privileged inspection pod is deployed that:
  1. Checks candidate containerd config locations in priority order
  2. Verifies the declared NVIDIA runtime binary exists on the node
  3. Scans the containerd journal for recent nvidia/runtime errors
  4. Enumerates GPU device nodes

Cluster-level state is collected alongside: pending GPU pods, device plugin
and container toolkit daemonset health, and the GPU operator Helm release
configuration (when the helm CLI is available).

Nodes are analyzed in parallel with bounded concurrency. One node failing,
timing out, or being unreachable never blocks the others; its outcome is
reported with the error attached. All inspection pods are removed before the
command returns unless --no-cleanup is set.

# Output

The default text format prints the full analysis report with prioritized
recommendations. Use --format yaml or --format json for machine consumption,
optionally writing to a ConfigMap:

  gpudoctor diagnose --format yaml --output cm://gpu-operator/gpudoctor-status

# Examples

Analyze all nodes:
  gpudoctor diagnose

Analyze only nodes advertising GPU capacity:
  gpudoctor diagnose --gpu-only

Analyze specific nodes, keeping pods for manual inspection:
  gpudoctor diagnose --node gpu-node-1 --node gpu-node-2 --no-cleanup

Analyze nodes listed in a file (YAML or JSON list of names):
  gpudoctor diagnose --nodes-file nodes.yaml

Inspect the local node without deploying pods:
  gpudoctor diagnose --local`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "namespace",
				Usage:   "Kubernetes namespace for inspection pods",
				Sources: cli.EnvVars("GPUDOCTOR_NAMESPACE"),
				Value:   "kube-system",
			},
			&cli.StringFlag{
				Name:    "image",
				Usage:   "Container image for inspection pods",
				Sources: cli.EnvVars("GPUDOCTOR_IMAGE"),
				Value:   session.DefaultImage,
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "Maximum concurrent node analyses",
				Value: diag.DefaultConcurrency,
			},
			&cli.DurationFlag{
				Name:  "ready-timeout",
				Usage: "Timeout for inspection pod readiness",
				Value: session.DefaultReadyTimeout,
			},
			&cli.DurationFlag{
				Name:  "collection-timeout",
				Usage: "Hard per-node analysis time budget",
				Value: diag.DefaultCollectionTimeout,
			},
			&cli.BoolFlag{
				Name:  "no-cleanup",
				Usage: "Keep inspection pods after analysis",
			},
			&cli.BoolFlag{
				Name:  "gpu-only",
				Usage: "Analyze only nodes advertising nvidia.com/gpu capacity",
			},
			&cli.StringSliceFlag{
				Name:  "node",
				Usage: "Analyze only this node (can be repeated)",
			},
			&cli.StringFlag{
				Name:  "nodes-file",
				Usage: "Path/URI to a YAML or JSON list of node names to analyze",
			},
			&cli.StringFlag{
				Name:    "operator-namespace",
				Usage:   "Namespace of the GPU operator installation",
				Sources: cli.EnvVars("GPUDOCTOR_OPERATOR_NAMESPACE"),
				Value:   release.DefaultNamespace,
			},
			&cli.BoolFlag{
				Name:  "local",
				Usage: "Inspect the local node directly instead of deploying pods",
			},
			&cli.BoolFlag{
				Name:  "fail-on-issues",
				Usage: "Exit with non-zero status if any issue is found",
			},
			outputFlag,
			formatFlag,
			kubeconfigFlag,
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			outFormat, err := parseOutputFormat(cmd)
			if err != nil {
				return err
			}

			image, err := session.ResolveImage(cmd.String("image"))
			if err != nil {
				return err
			}

			var cs *status.ClusterStatus
			if cmd.Bool("local") {
				cs = diagnoseLocal(ctx)
			} else {
				cs, err = diagnoseCluster(ctx, cmd, image)
				if err != nil {
					return err
				}
			}

			if err := writeStatus(ctx, cmd, outFormat, cs); err != nil {
				return err
			}

			if cmd.Bool("fail-on-issues") && !cs.Healthy() {
				return fmt.Errorf("diagnosis found %d issues", len(cs.Issues))
			}
			return nil
		},
	}
}

// diagnoseLocal inspects the node the CLI runs on, without any cluster
// access. Cluster-level sections of the status stay empty.
func diagnoseLocal(ctx context.Context) *status.ClusterStatus {
	outcome := diag.NewLocalInspector().Diagnose(ctx)
	return status.Aggregate(status.Input{
		Outcomes: map[string]*diag.Outcome{outcome.Node: outcome},
	}, version)
}

func diagnoseCluster(ctx context.Context, cmd *cli.Command, image string) (*status.ClusterStatus, error) {
	clientset, restConfig, err := client.GetKubeClientWithConfig(cmd.String("kubeconfig"))
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}

	discovery := cluster.NewDiscovery(clientset)
	input := status.Input{}

	discoveryCtx, cancel := context.WithTimeout(ctx, defaults.DiscoveryTimeout)
	defer cancel()

	input.Nodes, err = discovery.ListNodes(discoveryCtx)
	if err != nil {
		return nil, err
	}

	targets, err := targetNodes(cmd, input.Nodes)
	if err != nil {
		return nil, err
	}
	slog.Info("starting cluster analysis",
		"nodes", len(targets),
		"concurrency", cmd.Int("concurrency"))

	// Cluster-level symptoms are context, not the diagnosis itself; failures
	// here are logged and the per-node analysis proceeds.
	if input.PendingPods, err = discovery.PendingGPUPods(discoveryCtx); err != nil {
		slog.Warn("failed to list pending GPU pods", "error", err)
	}
	operatorNamespace := cmd.String("operator-namespace")
	if input.Operands, err = discovery.OperandHealth(discoveryCtx, operatorNamespace); err != nil {
		slog.Warn("failed to check operand health", "error", err)
	}
	input.Release = inspectRelease(ctx, operatorNamespace)

	orchestrator := diag.New(clientset, session.NewSPDYExecutor(clientset, restConfig), diag.Config{
		Namespace:         cmd.String("namespace"),
		Image:             image,
		Concurrency:       cmd.Int("concurrency"),
		ReadyTimeout:      cmd.Duration("ready-timeout"),
		CollectionTimeout: cmd.Duration("collection-timeout"),
		KeepPods:          cmd.Bool("no-cleanup"),
	})

	if input.Outcomes, err = orchestrator.Run(ctx, targets); err != nil {
		return nil, err
	}

	return status.Aggregate(input, version), nil
}

// targetNodes resolves the node set to analyze: explicit --node flags win,
// then --nodes-file, then all discovered nodes (GPU nodes only with
// --gpu-only).
func targetNodes(cmd *cli.Command, discovered []cluster.Node) ([]string, error) {
	if nodes := cmd.StringSlice("node"); len(nodes) > 0 {
		return nodes, nil
	}

	if path := cmd.String("nodes-file"); path != "" {
		nodes, err := serializer.FromFileWithKubeconfig[[]string](path, cmd.String("kubeconfig"))
		if err != nil {
			return nil, fmt.Errorf("failed to load nodes from %q: %w", path, err)
		}
		return *nodes, nil
	}

	gpuOnly := cmd.Bool("gpu-only")
	names := make([]string, 0, len(discovered))
	for i := range discovered {
		if gpuOnly && !discovered[i].HasGPU() {
			continue
		}
		names = append(names, discovered[i].Name)
	}
	return names, nil
}

// inspectRelease checks the GPU operator chart configuration. Helm
// availability is probed once; without it the release status degrades to
// unknown instead of failing the run.
func inspectRelease(ctx context.Context, namespace string) *release.Status {
	inspectCtx, cancel := context.WithTimeout(ctx, defaults.HelmInspectTimeout)
	defer cancel()

	inspector := release.NewHelmInspector()
	if !inspector.Available(inspectCtx) {
		slog.Warn("helm CLI not available, skipping chart inspection")
		return &release.Status{
			Errors: []string{"helm CLI not available, chart configuration not checked"},
		}
	}
	return inspector.Inspect(inspectCtx, namespace)
}

// writeStatus renders or serializes the cluster status to the configured
// output destination.
func writeStatus(ctx context.Context, cmd *cli.Command, format serializer.Format, cs *status.ClusterStatus) error {
	output := cmd.String("output")

	if format == formatText {
		return writeTextReport(output, cs)
	}

	writer := serializer.NewFileWriterOrStdout(format, output)
	defer func() {
		if closer, ok := writer.(serializer.Closer); ok {
			if err := closer.Close(); err != nil {
				slog.Warn("failed to close output writer", "error", err)
			}
		}
	}()

	writeCtx, cancel := context.WithTimeout(ctx, defaults.ConfigMapWriteTimeout)
	defer cancel()
	return writer.Serialize(writeCtx, cs)
}

func writeTextReport(output string, cs *status.ClusterStatus) error {
	if output == "" {
		report.Render(os.Stdout, cs)
		return nil
	}

	file, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()
	report.Render(file, cs)

	slog.Info("report written", "path", output)
	return nil
}
