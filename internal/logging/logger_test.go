package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateDirUsesXDGStateHome(t *testing.T) {
	xdgStateHome := t.TempDir()
	t.Setenv("XDG_STATE_HOME", xdgStateHome)
	t.Setenv("HOME", t.TempDir())

	dir, err := StateDir()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(xdgStateHome, "powerctl"), dir)
}

func TestStateDirFallsBackToHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("HOME", home)

	dir, err := StateDir()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".local", "state", "powerctl"), dir)
}

func TestNewCreatesWritableJSONLogFile(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	runtime, err := New(false)
	require.NoError(t, err)

	runtime.Logger.Info("unit-test-log", "component", "logging")
	runtime.Logger.Debug("dropped-debug-record")
	require.NoError(t, runtime.Close())

	contents, err := os.ReadFile(runtime.Path)
	require.NoError(t, err)
	require.Contains(t, string(contents), `"msg":"unit-test-log"`)
	require.Contains(t, string(contents), `"component":"logging"`)
	require.NotContains(t, string(contents), "dropped-debug-record")

	stat, err := os.Stat(runtime.Path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), stat.Mode().Perm())
}

func TestNewDebugKeepsDebugRecords(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	runtime, err := New(true)
	require.NoError(t, err)
	runtime.Logger.Debug("kept-debug-record")
	require.NoError(t, runtime.Close())

	contents, err := os.ReadFile(runtime.Path)
	require.NoError(t, err)
	require.Contains(t, string(contents), "kept-debug-record")
}

func TestNewRotatesOversizedLog(t *testing.T) {
	state := t.TempDir()
	t.Setenv("XDG_STATE_HOME", state)
	prev := rotateAt
	rotateAt = 16
	t.Cleanup(func() { rotateAt = prev })

	path := filepath.Join(state, "powerctl", "log.jsonl")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, []byte(`{"msg":"old generation"}`+"\n"), 0o600))

	runtime, err := New(false)
	require.NoError(t, err)
	runtime.Logger.Info("fresh")
	require.NoError(t, runtime.Close())

	previous, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	require.Contains(t, string(previous), "old generation")

	current, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(current), "old generation")
	require.Contains(t, string(current), "fresh")
}

func TestDiscardHasNoSink(t *testing.T) {
	runtime := Discard()
	runtime.Logger.Info("nowhere")
	require.NoError(t, runtime.Close())
	require.Empty(t, runtime.Path)
}
