/*
Copyright © 2025 NVIDIA Corporation
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/gpu-runtime-doctor/pkg/serializer"
	"github.com/NVIDIA/gpu-runtime-doctor/pkg/status"
)

func reportCmd() *cli.Command {
	return &cli.Command{
		Name:                  "report",
		EnableShellCompletion: true,
		Usage:                 "Render a saved diagnosis as a text report",
		Description: `Render a previously saved cluster diagnosis as the human-readable report.

The input is a ClusterStatus produced by 'gpudoctor diagnose --format yaml'
or '--format json', loaded from a file or a ConfigMap.

# Examples

Render a saved diagnosis:
  gpudoctor report --status status.yaml

Render a diagnosis stored in a ConfigMap:
  gpudoctor report --status cm://gpu-operator/gpudoctor-status

Write the report to a file:
  gpudoctor report --status status.yaml --output report.txt`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "status",
				Aliases:  []string{"s"},
				Required: true,
				Usage: `Path/URI to the saved cluster diagnosis.
	Supports file paths or ConfigMap URIs (cm://namespace/name).`,
			},
			outputFlag,
			kubeconfigFlag,
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.String("status")
			cs, err := serializer.FromFileWithKubeconfig[status.ClusterStatus](path, cmd.String("kubeconfig"))
			if err != nil {
				return fmt.Errorf("failed to load diagnosis from %q: %w", path, err)
			}
			return writeTextReport(cmd.String("output"), cs)
		},
	}
}
