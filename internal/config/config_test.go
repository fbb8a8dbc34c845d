package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[model]
path = "/models/qwen2.5-vl-3b"

[data]
train_files = ["datasets/train.parquet"]
max_pixels = 4194304

[rollout]
tensor_parallel_size = 2

[trainer]
experiment_name = "gui_grpo_3b"
n_gpus_per_node = 4
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/models/qwen2.5-vl-3b", cfg.Model.Path)
	assert.Equal(t, 4194304, cfg.Data.MaxPixels)
	assert.Equal(t, 2, cfg.Rollout.TensorParallelSize)
	assert.Equal(t, 4, cfg.Trainer.NGPUsPerNode)
	// Untouched values keep defaults.
	assert.Equal(t, 4096, cfg.Data.MaxPromptLength)
	assert.Equal(t, "python3", cfg.Trainer.Python)
	assert.Equal(t, "gui", cfg.Reward.ScoreFunction)

	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	cfg := Default()
	// No model path, no train files, no experiment name.
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model.path is required")
	assert.Contains(t, err.Error(), "data.train_files is required")
	assert.Contains(t, err.Error(), "trainer.experiment_name is required")
}

func TestValidate_TensorParallelDivisibility(t *testing.T) {
	cfg := Default()
	cfg.Model.Path = "/models/m"
	cfg.Data.TrainFiles = []string{"a.parquet"}
	cfg.Trainer.ExperimentName = "exp"
	cfg.Trainer.NGPUsPerNode = 6
	cfg.Rollout.TensorParallelSize = 4

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "divisible by rollout.tensor_parallel_size")

	cfg.Rollout.TensorParallelSize = 2
	assert.NoError(t, cfg.Validate())
}

func TestValidate_UnknownScoreFunction(t *testing.T) {
	cfg := Default()
	cfg.Model.Path = "/models/m"
	cfg.Data.TrainFiles = []string{"a.parquet"}
	cfg.Trainer.ExperimentName = "exp"
	cfg.Reward.ScoreFunction = "guii"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"guii"`)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("MODEL_PATH", "/env/model")
	t.Setenv("EXPERIMENT_NAME", "env_exp")
	t.Setenv("TENSOR_PARALLEL_SIZE", "2")
	t.Setenv("N_GPUS_PER_NODE", "not-a-number")

	cfg := Default()
	cfg.ApplyEnv()

	assert.Equal(t, "/env/model", cfg.Model.Path)
	assert.Equal(t, "env_exp", cfg.Trainer.ExperimentName)
	assert.Equal(t, 2, cfg.Rollout.TensorParallelSize)
	// Unparseable numeric override is ignored.
	assert.Equal(t, 8, cfg.Trainer.NGPUsPerNode)
}
