package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

type ModelConfig struct {
	Path string `toml:"path"`
}

type DataConfig struct {
	Dir               string   `toml:"dir"`
	TrainFiles        []string `toml:"train_files"`
	ValFiles          []string `toml:"val_files"`
	SystemPrompt      string   `toml:"system_prompt"`
	MaxPixels         int      `toml:"max_pixels"`
	MaxPromptLength   int      `toml:"max_prompt_length"`
	MaxResponseLength int      `toml:"max_response_length"`
	ValBatchSize      int      `toml:"val_batch_size"`
	Shuffle           bool     `toml:"shuffle"`
}

type RolloutConfig struct {
	TensorParallelSize   int     `toml:"tensor_parallel_size"`
	EnableChunkedPrefill bool    `toml:"enable_chunked_prefill"`
	GPUMemoryUtilization float64 `toml:"gpu_memory_utilization"`
	// Endpoint is an optional OpenAI-compatible URL of an already-serving
	// rollout instance, used only by preflight smoke checks.
	Endpoint string `toml:"endpoint"`
}

type RewardConfig struct {
	ScoreFunction string `toml:"score_function"`
}

type TrainerConfig struct {
	Python         string `toml:"python"`
	BaseConfig     string `toml:"base_config"`
	ExperimentName string `toml:"experiment_name"`
	ProjectName    string `toml:"project_name"`
	NGPUsPerNode   int    `toml:"n_gpus_per_node"`
	NNodes         int    `toml:"nnodes"`
	TotalEpochs    int    `toml:"total_epochs"`
	SaveFreq       int    `toml:"save_freq"`
	CheckpointDir  string `toml:"checkpoint_dir"`
	LogDir         string `toml:"log_dir"`
}

type ManifestConfig struct {
	Path string `toml:"path"`
}

type RegistryConfig struct {
	Path string `toml:"path"`
}

type Config struct {
	Model    ModelConfig    `toml:"model"`
	Data     DataConfig     `toml:"data"`
	Rollout  RolloutConfig  `toml:"rollout"`
	Reward   RewardConfig   `toml:"reward"`
	Trainer  TrainerConfig  `toml:"trainer"`
	Manifest ManifestConfig `toml:"manifest"`
	Registry RegistryConfig `toml:"registry"`
}

// KnownScoreFunctions are the reward scorers the wrapped trainer ships with.
// The value is passed through verbatim; anything outside this set is rejected
// early so a typo doesn't surface an hour into a run.
var KnownScoreFunctions = []string{"gui", "r1v", "math"}

func Default() *Config {
	return &Config{
		Data: DataConfig{
			MaxPixels:         12845056,
			MaxPromptLength:   4096,
			MaxResponseLength: 2048,
			ValBatchSize:      512,
			Shuffle:           true,
		},
		Rollout: RolloutConfig{
			TensorParallelSize:   1,
			GPUMemoryUtilization: 0.6,
		},
		Reward: RewardConfig{
			ScoreFunction: "gui",
		},
		Trainer: TrainerConfig{
			Python:        "python3",
			NGPUsPerNode:  8,
			NNodes:        1,
			TotalEpochs:   1,
			SaveFreq:      5,
			CheckpointDir: "checkpoints",
			LogDir:        "logs",
		},
		Registry: RegistryConfig{
			Path: "runs.db",
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides config values with environment variables if present.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("MODEL_PATH"); v != "" {
		c.Model.Path = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		c.Data.Dir = v
	}
	if v := os.Getenv("SYSTEM_PROMPT"); v != "" {
		c.Data.SystemPrompt = v
	}
	if v := os.Getenv("EXPERIMENT_NAME"); v != "" {
		c.Trainer.ExperimentName = v
	}
	if v := os.Getenv("ROLLOUT_ENDPOINT"); v != "" {
		c.Rollout.Endpoint = v
	}
	if v := os.Getenv("N_GPUS_PER_NODE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Trainer.NGPUsPerNode = n
		}
	}
	if v := os.Getenv("TENSOR_PARALLEL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Rollout.TensorParallelSize = n
		}
	}
	if v := os.Getenv("REGISTRY_PATH"); v != "" {
		c.Registry.Path = v
	}
}

// Validate collects every problem instead of stopping at the first one, so a
// bad config file is fixed in one round trip.
func (c *Config) Validate() error {
	var problems []string

	if c.Model.Path == "" {
		problems = append(problems, "model.path is required")
	}
	if len(c.Data.TrainFiles) == 0 {
		problems = append(problems, "data.train_files is required")
	}
	if c.Data.MaxPromptLength <= 0 {
		problems = append(problems, "data.max_prompt_length must be positive")
	}
	if c.Data.MaxResponseLength <= 0 {
		problems = append(problems, "data.max_response_length must be positive")
	}
	if c.Data.MaxPixels <= 0 {
		problems = append(problems, "data.max_pixels must be positive")
	}
	if c.Data.ValBatchSize <= 0 {
		problems = append(problems, "data.val_batch_size must be positive")
	}
	if c.Rollout.TensorParallelSize < 1 {
		problems = append(problems, "rollout.tensor_parallel_size must be >= 1")
	}
	if c.Rollout.GPUMemoryUtilization <= 0 || c.Rollout.GPUMemoryUtilization > 1 {
		problems = append(problems, "rollout.gpu_memory_utilization must be in (0, 1]")
	}
	if c.Trainer.NGPUsPerNode < 1 {
		problems = append(problems, "trainer.n_gpus_per_node must be >= 1")
	} else if c.Rollout.TensorParallelSize >= 1 && c.Trainer.NGPUsPerNode%c.Rollout.TensorParallelSize != 0 {
		problems = append(problems, fmt.Sprintf(
			"trainer.n_gpus_per_node (%d) must be divisible by rollout.tensor_parallel_size (%d)",
			c.Trainer.NGPUsPerNode, c.Rollout.TensorParallelSize))
	}
	if c.Trainer.NNodes < 1 {
		problems = append(problems, "trainer.nnodes must be >= 1")
	}
	if c.Trainer.ExperimentName == "" {
		problems = append(problems, "trainer.experiment_name is required")
	}
	if c.Reward.ScoreFunction != "" && !isKnownScoreFunction(c.Reward.ScoreFunction) {
		problems = append(problems, fmt.Sprintf(
			"reward.score_function %q is not one of %s",
			c.Reward.ScoreFunction, strings.Join(KnownScoreFunctions, ", ")))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

func isKnownScoreFunction(name string) bool {
	for _, k := range KnownScoreFunctions {
		if k == name {
			return true
		}
	}
	return false
}
