// Package preflight runs the cheap checks that catch a doomed training run
// before it allocates eight GPUs: config sanity, dataset readability, GPU
// visibility, environment pins, and the rollout endpoint when one is up.
package preflight

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/guiagents/harness/internal/config"
	"github.com/guiagents/harness/internal/dataset"
	"github.com/guiagents/harness/internal/manifest"
)

type Check struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

type Result struct {
	Checks []Check `json:"checks"`
}

func (r Result) OK() bool {
	for _, c := range r.Checks {
		if !c.OK {
			return false
		}
	}
	return true
}

func (r Result) Failed() []Check {
	var out []Check
	for _, c := range r.Checks {
		if !c.OK {
			out = append(out, c)
		}
	}
	return out
}

// Runner holds the externally visible knobs so tests can point the GPU probe
// at a fake binary.
type Runner struct {
	NvidiaSMI string
}

func (r *Runner) nvidiaSMI() string {
	if r.NvidiaSMI != "" {
		return r.NvidiaSMI
	}
	return "nvidia-smi"
}

// RunAll executes every applicable check and never stops early; the point is
// a complete picture in one pass.
func (r *Runner) RunAll(ctx context.Context, cfg *config.Config) Result {
	var res Result
	res.Checks = append(res.Checks, checkConfig(cfg))
	res.Checks = append(res.Checks, checkDataFiles(cfg))
	res.Checks = append(res.Checks, checkCheckpointDir(cfg))
	res.Checks = append(res.Checks, r.checkGPUs(ctx, cfg))
	if cfg.Manifest.Path != "" {
		res.Checks = append(res.Checks, checkManifest(ctx, cfg))
	}
	if cfg.Rollout.Endpoint != "" {
		res.Checks = append(res.Checks, checkEndpoint(ctx, cfg))
	}
	return res
}

func checkConfig(cfg *config.Config) Check {
	if err := cfg.Validate(); err != nil {
		return Check{Name: "config", Detail: err.Error()}
	}
	return Check{Name: "config", OK: true}
}

func checkDataFiles(cfg *config.Config) Check {
	files := append(append([]string{}, cfg.Data.TrainFiles...), cfg.Data.ValFiles...)
	if len(files) == 0 {
		return Check{Name: "data", Detail: "no data files configured"}
	}

	var problems []string
	loaded := 0
	for _, f := range files {
		s, err := dataset.ReadSchema(f)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		if _, ok := s.Field(dataset.ColImage); !ok {
			problems = append(problems, fmt.Sprintf("%s: no image column", f))
			continue
		}
		loaded++
	}
	if len(problems) > 0 {
		return Check{Name: "data", Detail: strings.Join(problems, "; ")}
	}
	return Check{Name: "data", OK: true, Detail: fmt.Sprintf("%d files readable", loaded)}
}

func checkCheckpointDir(cfg *config.Config) Check {
	dir := cfg.Trainer.CheckpointDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Check{Name: "checkpoint_dir", Detail: err.Error()}
	}
	probe := filepath.Join(dir, ".preflight")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return Check{Name: "checkpoint_dir", Detail: fmt.Sprintf("%s not writable: %v", dir, err)}
	}
	os.Remove(probe)
	return Check{Name: "checkpoint_dir", OK: true}
}

func (r *Runner) checkGPUs(ctx context.Context, cfg *config.Config) Check {
	cmd := exec.CommandContext(ctx, r.nvidiaSMI(), "--query-gpu=name", "--format=csv,noheader")
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return Check{Name: "gpu", Detail: fmt.Sprintf("nvidia-smi failed: %v", err)}
	}

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	visible := 0
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			visible++
		}
	}
	if visible < cfg.Trainer.NGPUsPerNode {
		return Check{Name: "gpu", Detail: fmt.Sprintf(
			"%d GPUs visible, trainer.n_gpus_per_node is %d", visible, cfg.Trainer.NGPUsPerNode)}
	}
	return Check{Name: "gpu", OK: true, Detail: fmt.Sprintf("%d GPUs visible", visible)}
}

func checkManifest(ctx context.Context, cfg *config.Config) Check {
	reqs, err := manifest.ParseFile(cfg.Manifest.Path)
	if err != nil {
		return Check{Name: "manifest", Detail: err.Error()}
	}
	installed, err := manifest.FromPip(ctx, cfg.Trainer.Python)
	if err != nil {
		return Check{Name: "manifest", Detail: err.Error()}
	}
	rep := manifest.Verify(reqs, installed)
	if !rep.OK() {
		msgs := make([]string, len(rep.Problems))
		for i, p := range rep.Problems {
			msgs[i] = p.String()
		}
		return Check{Name: "manifest", Detail: strings.Join(msgs, "; ")}
	}
	return Check{Name: "manifest", OK: true, Detail: fmt.Sprintf("%d pins satisfied", rep.Satisfied)}
}

// checkEndpoint asks the rollout server's OpenAI-compatible API which models
// it serves. A vLLM instance that answers here is warm enough to roll out.
func checkEndpoint(ctx context.Context, cfg *config.Config) Check {
	clientCfg := openai.DefaultConfig("")
	clientCfg.BaseURL = cfg.Rollout.Endpoint
	client := openai.NewClientWithConfig(clientCfg)

	models, err := client.ListModels(ctx)
	if err != nil {
		return Check{Name: "rollout_endpoint", Detail: fmt.Sprintf("%s: %v", cfg.Rollout.Endpoint, err)}
	}
	if len(models.Models) == 0 {
		return Check{Name: "rollout_endpoint", Detail: "endpoint serves no models"}
	}
	ids := make([]string, len(models.Models))
	for i, m := range models.Models {
		ids[i] = m.ID
	}
	return Check{Name: "rollout_endpoint", OK: true, Detail: strings.Join(ids, ", ")}
}
