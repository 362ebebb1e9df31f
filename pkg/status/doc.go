// Package status aggregates per-node diagnostic outcomes, cluster discovery
// state, and chart inspection into one ClusterStatus with a prioritized issue
// list. Aggregation tolerates partial results: nodes that could not be
// examined are counted and reported alongside the ones that could.
package status
