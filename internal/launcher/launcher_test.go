package launcher

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guiagents/harness/internal/config"
	"github.com/guiagents/harness/internal/store"
)

// fakeTrainer writes an executable shell script standing in for the python
// entry point; the launcher passes module args the script simply ignores.
func fakeTrainer(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trainer.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755))
	return path
}

func launcherConfig(t *testing.T, python string) *config.Config {
	cfg := testConfig()
	cfg.Trainer.Python = python
	cfg.Trainer.LogDir = t.TempDir()
	return cfg
}

func TestStart_CleanExit(t *testing.T) {
	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer st.Close()

	var out bytes.Buffer
	l := &Launcher{Store: st, Output: &out}
	cfg := launcherConfig(t, fakeTrainer(t, `echo "step 1 complete"`))

	run, err := l.Start(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, run.Wait())

	assert.Equal(t, store.StatusSucceeded, run.Status())
	require.NotNil(t, run.ExitCode())
	assert.Equal(t, 0, *run.ExitCode())
	assert.Contains(t, out.String(), "step 1 complete")

	logData, err := os.ReadFile(run.LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(logData), "step 1 complete")

	rec, err := st.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusSucceeded, rec.Status)
	assert.NotNil(t, rec.FinishedAt)

	// The registry keeps a decodable copy of the launch config.
	var stored config.Config
	require.NoError(t, json.Unmarshal([]byte(rec.ConfigJSON), &stored))
	assert.Equal(t, cfg.Trainer.ExperimentName, stored.Trainer.ExperimentName)
}

func TestStart_NonZeroExit(t *testing.T) {
	l := &Launcher{Output: &bytes.Buffer{}}
	cfg := launcherConfig(t, fakeTrainer(t, "exit 3"))

	run, err := l.Start(context.Background(), cfg)
	require.NoError(t, err)
	require.Error(t, run.Wait())

	assert.Equal(t, store.StatusFailed, run.Status())
	require.NotNil(t, run.ExitCode())
	assert.Equal(t, 3, *run.ExitCode())
}

func TestStart_InvalidConfig(t *testing.T) {
	l := &Launcher{}
	cfg := launcherConfig(t, "python3")
	cfg.Model.Path = ""

	_, err := l.Start(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model.path is required")
}

func TestStart_MissingInterpreter(t *testing.T) {
	l := &Launcher{Output: &bytes.Buffer{}}
	cfg := launcherConfig(t, "/does/not/exist/python3")

	_, err := l.Start(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start trainer")
}

func TestStop(t *testing.T) {
	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer st.Close()

	l := &Launcher{Store: st, Output: &bytes.Buffer{}, Grace: 2 * time.Second}
	cfg := launcherConfig(t, fakeTrainer(t, "exec sleep 30"))

	run, err := l.Start(context.Background(), cfg)
	require.NoError(t, err)

	run.Stop()
	assert.NoError(t, run.Wait())
	assert.Equal(t, store.StatusStopped, run.Status())

	rec, err := st.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusStopped, rec.Status)
}
