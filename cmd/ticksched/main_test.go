package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestConfigCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("name: editor\ntarget_tick_ms: 20\n"), 0o600))

	out := execute(t, "config", "--config", path)
	assert.Contains(t, out, "name: editor")
	assert.Contains(t, out, "target_tick_ms: 20")
	assert.Contains(t, out, "low_water: 0.1")
}

func TestRunCommandDrainsDemo(t *testing.T) {
	trace := filepath.Join(t.TempDir(), "trace.csv")
	out := execute(t, "run",
		"--config", filepath.Join(t.TempDir(), "missing.yml"),
		"--interval", "2ms",
		"--trace-csv", trace,
		"--log-level", "error",
	)

	assert.Contains(t, out, "task 6 (bad) failed")
	assert.Contains(t, out, "voxelize")
	assert.Regexp(t, `panel\s+cancelled`, out)
	assert.Regexp(t, `upload\s+done`, out)
	assert.FileExists(t, trace)
}
