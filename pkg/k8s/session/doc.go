// Package session manages the lifecycle of ephemeral privileged inspection
// pods used to examine container runtime configuration on individual nodes.
//
// A Session is bound to one node and moves through a fixed lifecycle:
// unprovisioned, provisioning, ready, in-use, torn-down. Provisioning is
// idempotent (an existing pod with the derived name is reused) and teardown
// is guaranteed-safe: it can be called multiple times, tolerates missing
// pods, and uses a context detached from cancellation so interrupted runs
// still clean up after themselves.
package session
