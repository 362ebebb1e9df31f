// Package release validates the NVIDIA GPU operator helm chart configuration
// against the toolkit settings required on clusters with a relocated
// containerd installation. Validation reports every deviation at once so a
// single chart edit can fix them all.
package release
