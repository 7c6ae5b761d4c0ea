package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version+"\n", out)
}

func TestInitCmd(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "init", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "created ./dataflow.yaml")
	assert.FileExists(t, filepath.Join(dir, ".mcp.json"))

	out, err = execute(t, "init", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "skipped ./dataflow.yaml")
}

func TestResearchCmd_RejectsUnknownMode(t *testing.T) {
	_, err := execute(t, "--config-dir", t.TempDir(), "research", "q", "--mode", "bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mode "bogus"`)
}

func TestToolServerCmd_RejectsUnknownServer(t *testing.T) {
	_, err := execute(t, "--config-dir", t.TempDir(), "toolserver", "other")
	require.Error(t, err)
}

func TestListenAddr(t *testing.T) {
	tests := []struct {
		endpoint string
		want     string
	}{
		{"http://localhost:8081", "0.0.0.0:8081"},
		{"http://demo:8082/mcp", "0.0.0.0:8082"},
		{"https://denodo.example.com", "0.0.0.0:443"},
		{"http://denodo", "0.0.0.0:80"},
	}
	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			got, err := listenAddr(tt.endpoint)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
