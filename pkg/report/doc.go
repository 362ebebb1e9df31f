// Package report renders a cluster diagnosis as a human-readable text
// report: cluster-level status, per-node detail, and prioritized
// recommendations with concrete remediation steps.
//
// Machine consumption goes through pkg/serializer instead; this package is
// the terminal-facing rendering of the same ClusterStatus.
package report
