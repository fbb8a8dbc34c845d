package launcher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guiagents/harness/internal/config"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Model.Path = "/models/qwen2.5-vl-3b"
	cfg.Data.TrainFiles = []string{"datasets/high_train.parquet", "datasets/low_train.parquet"}
	cfg.Data.ValFiles = []string{"datasets/val.parquet"}
	cfg.Data.SystemPrompt = "You are a GUI agent. Output the next action."
	cfg.Trainer.ExperimentName = "gui_grpo_3b"
	cfg.Trainer.NGPUsPerNode = 4
	cfg.Rollout.TensorParallelSize = 2
	return cfg
}

func TestBuildArgs(t *testing.T) {
	args := BuildArgs(testConfig())

	require.Equal(t, []string{"-m", "verl.trainer.main"}, args[:2])
	assert.Contains(t, args, "data.train_files=datasets/high_train.parquet,datasets/low_train.parquet")
	assert.Contains(t, args, "data.val_files=datasets/val.parquet")
	assert.Contains(t, args, "worker.actor.model.model_path=/models/qwen2.5-vl-3b")
	assert.Contains(t, args, "worker.rollout.tensor_parallel_size=2")
	assert.Contains(t, args, "worker.rollout.enable_chunked_prefill=false")
	assert.Contains(t, args, "worker.rollout.gpu_memory_utilization=0.6")
	assert.Contains(t, args, "worker.reward.score_function=gui")
	assert.Contains(t, args, "trainer.experiment_name=gui_grpo_3b")
	assert.Contains(t, args, "trainer.n_gpus_per_node=4")
	assert.Contains(t, args, "data.shuffle=true")
}

func TestBuildArgs_SystemPromptIsOneElement(t *testing.T) {
	args := BuildArgs(testConfig())
	found := ""
	for _, a := range args {
		if strings.HasPrefix(a, "data.system_prompt=") {
			found = a
		}
	}
	assert.Equal(t, "data.system_prompt=You are a GUI agent. Output the next action.", found)
}

func TestBuildArgs_OmitsEmptyOptionals(t *testing.T) {
	cfg := testConfig()
	cfg.Data.ValFiles = nil
	cfg.Data.SystemPrompt = ""
	cfg.Trainer.BaseConfig = ""
	cfg.Trainer.ProjectName = ""

	for _, a := range BuildArgs(cfg) {
		assert.NotContains(t, a, "data.val_files=")
		assert.NotContains(t, a, "data.system_prompt=")
		assert.NotContains(t, a, "trainer.project_name=")
		assert.False(t, strings.HasPrefix(a, "config="))
	}
}

func TestBuildArgs_Deterministic(t *testing.T) {
	cfg := testConfig()
	assert.Equal(t, BuildArgs(cfg), BuildArgs(cfg))
}

func TestBuildEnv(t *testing.T) {
	cfg := testConfig()
	env := BuildEnv(cfg)
	assert.Contains(t, env, "CUDA_VISIBLE_DEVICES=0,1,2,3")
	assert.Contains(t, env, "PYTHONUNBUFFERED=1")
}
