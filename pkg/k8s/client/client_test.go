package client

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKubeconfig = `apiVersion: v1
kind: Config
clusters:
- cluster:
    server: https://127.0.0.1:6443
  name: test
contexts:
- context:
    cluster: test
    user: test
  name: test
current-context: test
users:
- name: test
  user:
    token: test-token
`

func TestBuildKubeClient(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kubeconfig")
	require.NoError(t, os.WriteFile(path, []byte(testKubeconfig), 0o600))

	clientset, config, err := BuildKubeClient(path)
	require.NoError(t, err)
	assert.NotNil(t, clientset)
	assert.Equal(t, "https://127.0.0.1:6443", config.Host)
}

func TestBuildKubeClient_FromEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kubeconfig")
	require.NoError(t, os.WriteFile(path, []byte(testKubeconfig), 0o600))
	t.Setenv("KUBECONFIG", path)

	clientset, config, err := BuildKubeClient("")
	require.NoError(t, err)
	assert.NotNil(t, clientset)
	assert.Equal(t, "https://127.0.0.1:6443", config.Host)
}

func TestBuildKubeClient_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kubeconfig")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid"), 0o600))

	_, _, err := BuildKubeClient(path)
	assert.Error(t, err)
}
