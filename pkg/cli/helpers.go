/*
Copyright © 2025 NVIDIA Corporation
SPDX-License-Identifier: Apache-2.0
*/
package cli

import (
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/NVIDIA/gpu-runtime-doctor/pkg/serializer"
)

// Flags shared across commands that read from or write to the cluster.
var (
	outputFlag = &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage: `Output path (default: stdout).
	Supports file paths or ConfigMap URIs (cm://namespace/name).`,
		Sources: cli.EnvVars("GPUDOCTOR_OUTPUT"),
	}

	formatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"t"},
		Usage:   "Output format: text, yaml, or json",
		Sources: cli.EnvVars("GPUDOCTOR_FORMAT"),
		Value:   "text",
	}

	kubeconfigFlag = &cli.StringFlag{
		Name:    "kubeconfig",
		Usage:   "Path to kubeconfig (default: in-cluster, then $KUBECONFIG, then ~/.kube/config)",
		Sources: cli.EnvVars("KUBECONFIG"),
	}
)

// formatText selects the human-readable report rendering instead of a
// serialized ClusterStatus.
const formatText = "text"

// parseOutputFormat reads and validates the format flag. The text format is
// CLI-level only; everything else must be a serializer format.
func parseOutputFormat(cmd *cli.Command) (serializer.Format, error) {
	raw := cmd.String("format")
	if raw == formatText {
		return formatText, nil
	}
	format := serializer.Format(raw)
	if format.IsUnknown() {
		return "", fmt.Errorf("unknown output format: %q (supported: text, %v)",
			raw, serializer.SupportedFormats())
	}
	return format, nil
}
