// Package cli implements the command-line interface for the gpudoctor tool.
//
// # Overview
//
// The gpudoctor CLI diagnoses GPU container-runtime misconfiguration across
// the nodes of a Kubernetes cluster. It is designed for cluster
// administrators and SREs investigating GPU workloads stuck in pending or
// failed states.
//
// # Commands
//
// diagnose - Analyze runtime configuration across nodes:
//
//	gpudoctor diagnose [--gpu-only] [--node NAME]... [--format text|yaml|json]
//
// Deploys a privileged inspection pod per node (bounded concurrency), checks
// candidate containerd config locations, verifies the declared NVIDIA
// runtime binary, probes recent runtime errors, and cross-references
// cluster-level symptoms (pending GPU pods, operand daemonsets, Helm chart
// values) into a prioritized issue list. With --local, inspects the node the
// CLI runs on without touching the cluster.
//
// report - Re-render a saved diagnosis:
//
//	gpudoctor report --status status.yaml [--output report.txt]
//
// Loads a ClusterStatus from a file or ConfigMap and prints the text report.
//
// # Global Flags
//
//	--log-level    Logging verbosity (debug, info, warn, error)
//	--help, -h     Show command help
//	--version, -v  Show version information
//
// # Output Formats
//
// text (default):
//   - Full analysis report with prioritized recommendations
//   - Suitable for terminal viewing
//
// yaml / json:
//   - Serialized ClusterStatus with header metadata
//   - Suitable for storage and programmatic consumption
//   - Destination may be a file or a ConfigMap URI (cm://namespace/name)
//
// # Exit Codes
//
//	0  Success
//	1  Error (invalid arguments, execution failure, or, with
//	   --fail-on-issues, a diagnosis that found problems)
//
// # Architecture
//
// The CLI uses the urfave/cli/v3 framework and delegates to specialized
// packages:
//   - pkg/diag - Per-node diagnosis orchestration
//   - pkg/k8s/cluster - Node and workload discovery
//   - pkg/release - GPU operator chart inspection
//   - pkg/status - Cluster-level aggregation
//   - pkg/report - Text report rendering
//   - pkg/serializer - Output formatting
//
// Version information is embedded at build time using ldflags:
//
//	go build -ldflags="-X 'github.com/NVIDIA/gpu-runtime-doctor/pkg/cli.version=1.0.0'"
package cli
