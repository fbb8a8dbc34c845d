package launcher

import (
	"strconv"
	"strings"

	"github.com/guiagents/harness/internal/config"
)

// BuildArgs renders a config into the dotted key=value override list the
// external trainer's entry point accepts. Order is deterministic so dry-run
// output is diffable between runs. The system prompt is passed as a single
// argv element; no shell is involved, so it needs no quoting.
func BuildArgs(cfg *config.Config) []string {
	args := []string{"-m", "verl.trainer.main"}

	if cfg.Trainer.BaseConfig != "" {
		args = append(args, "config="+cfg.Trainer.BaseConfig)
	}

	args = append(args, "data.train_files="+strings.Join(cfg.Data.TrainFiles, ","))
	if len(cfg.Data.ValFiles) > 0 {
		args = append(args, "data.val_files="+strings.Join(cfg.Data.ValFiles, ","))
	}
	if cfg.Data.SystemPrompt != "" {
		args = append(args, "data.system_prompt="+cfg.Data.SystemPrompt)
	}
	args = append(args,
		"data.max_pixels="+strconv.Itoa(cfg.Data.MaxPixels),
		"data.max_prompt_length="+strconv.Itoa(cfg.Data.MaxPromptLength),
		"data.max_response_length="+strconv.Itoa(cfg.Data.MaxResponseLength),
		"data.val_batch_size="+strconv.Itoa(cfg.Data.ValBatchSize),
		"data.shuffle="+strconv.FormatBool(cfg.Data.Shuffle),
		"worker.actor.model.model_path="+cfg.Model.Path,
		"worker.rollout.tensor_parallel_size="+strconv.Itoa(cfg.Rollout.TensorParallelSize),
		"worker.rollout.enable_chunked_prefill="+strconv.FormatBool(cfg.Rollout.EnableChunkedPrefill),
		"worker.rollout.gpu_memory_utilization="+strconv.FormatFloat(cfg.Rollout.GPUMemoryUtilization, 'g', -1, 64),
		"worker.reward.score_function="+cfg.Reward.ScoreFunction,
		"trainer.experiment_name="+cfg.Trainer.ExperimentName,
	)
	if cfg.Trainer.ProjectName != "" {
		args = append(args, "trainer.project_name="+cfg.Trainer.ProjectName)
	}
	args = append(args,
		"trainer.n_gpus_per_node="+strconv.Itoa(cfg.Trainer.NGPUsPerNode),
		"trainer.nnodes="+strconv.Itoa(cfg.Trainer.NNodes),
		"trainer.total_epochs="+strconv.Itoa(cfg.Trainer.TotalEpochs),
		"trainer.save_freq="+strconv.Itoa(cfg.Trainer.SaveFreq),
		"trainer.save_checkpoint_path="+cfg.Trainer.CheckpointDir,
	)
	return args
}

// BuildEnv returns the extra environment the trainer process needs on top
// of the parent environment.
func BuildEnv(cfg *config.Config) []string {
	devices := make([]string, cfg.Trainer.NGPUsPerNode)
	for i := range devices {
		devices[i] = strconv.Itoa(i)
	}
	return []string{
		"CUDA_VISIBLE_DEVICES=" + strings.Join(devices, ","),
		"PYTHONUNBUFFERED=1",
	}
}
