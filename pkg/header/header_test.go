package header

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestHeader_Init(t *testing.T) {
	h := New()
	h.Init(KindDiagnosticReport, "gpudoctor.nvidia.com/v1alpha1", "v1.2.3")

	assert.Equal(t, KindDiagnosticReport, h.Kind)
	assert.Equal(t, "gpudoctor.nvidia.com/v1alpha1", h.APIVersion)
	assert.Equal(t, "v1.2.3", h.Metadata["version"])
	assert.NotEmpty(t, h.Metadata["timestamp"])

	_, err := uuid.Parse(h.Metadata["run-id"])
	assert.NoError(t, err)
}

func TestHeader_Options(t *testing.T) {
	h := New(
		WithKind(KindClusterStatus),
		WithAPIVersion("gpudoctor.nvidia.com/v1alpha1"),
		WithMetadata("cluster", "dev"),
	)

	assert.Equal(t, KindClusterStatus, h.Kind)
	assert.Equal(t, "dev", h.Metadata["cluster"])
	assert.True(t, h.Kind.IsValid())

	unknown := Kind("Bogus")
	assert.False(t, unknown.IsValid())
}
