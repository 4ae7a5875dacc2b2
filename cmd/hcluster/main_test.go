package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dryRunConfig = `
prefix: cli
version: "1.0"
provider:
  kind: memory
  authorize_pause: 0s
retry:
  running: {interval: 10ms, deadline: 10s}
  remote: {interval: 10ms, deadline: 10s}
  bootstrap: {interval: 10ms, max_attempts: 3, deadline: 10s}
  provider: {interval: 10ms, max_attempts: 5, deadline: 10s}
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestDryRunLaunchAndStatus(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "cluster.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(dryRunConfig), 0o600))
	dataDir := filepath.Join(dir, "data")

	out, err := execute(t, "launch", "-c", cfgPath, "--data-dir", dataDir, "--workers", "2", "--log-level", "error")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Launching cluster cli")
	assert.Contains(t, out, "running")

	out, err = execute(t, "status", "-c", cfgPath, "--data-dir", dataDir, "--log-level", "error")
	require.NoError(t, err, out)
	assert.Contains(t, out, "cli")

	_, err = execute(t, "launch", "-c", cfgPath, "--data-dir", dataDir, "--log-level", "error")
	assert.Error(t, err, "a remembered cluster cannot be launched twice")
}

func TestStatusWithoutClusters(t *testing.T) {
	out, err := execute(t, "status", "--data-dir", t.TempDir(), "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "No clusters")
}

func TestStatusUnknownCluster(t *testing.T) {
	_, err := execute(t, "status", "missing", "--data-dir", t.TempDir(), "--log-level", "error")
	assert.Error(t, err)
}
