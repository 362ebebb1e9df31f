// Package cluster discovers GPU-relevant cluster state: node inventory with
// GPU capacity and roles, GPU workloads stuck before running, and GPU
// operator operand rollout health. Per-node queries are rate limited to keep
// fleet-wide discovery from overloading the apiserver.
package cluster
