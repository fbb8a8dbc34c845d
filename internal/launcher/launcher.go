package launcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/guiagents/harness/internal/config"
	"github.com/guiagents/harness/internal/store"
)

const defaultGrace = 30 * time.Second

// Launcher starts and supervises the external trainer process. It owns no
// training logic: it builds argv, wires the environment, tees output to a
// per-run logfile, and records lifecycle transitions in the run registry.
type Launcher struct {
	Store store.RunStore
	// Grace is how long a stopped trainer gets between SIGTERM and SIGKILL.
	Grace time.Duration
	// Output is an extra sink for trainer output; defaults to os.Stdout.
	Output io.Writer
}

// Run is a live trainer process.
type Run struct {
	ID         string
	Experiment string
	LogPath    string
	PID        int

	cmd     *exec.Cmd
	cancel  context.CancelFunc
	stopped atomic.Bool
	done    chan struct{}

	status   store.Status
	exitCode *int
	waitErr  error
}

func (l *Launcher) Start(ctx context.Context, cfg *config.Config) (*Run, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	if err := os.MkdirAll(cfg.Trainer.LogDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}
	logPath := filepath.Join(cfg.Trainer.LogDir, cfg.Trainer.ExperimentName+"-"+id+".log")
	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log '%s': %w", logPath, err)
	}

	sink := l.Output
	if sink == nil {
		sink = os.Stdout
	}
	out := io.MultiWriter(logFile, sink)

	cmdCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(cmdCtx, cfg.Trainer.Python, BuildArgs(cfg)...)
	cmd.Env = append(os.Environ(), BuildEnv(cfg)...)
	cmd.Stdout = out
	cmd.Stderr = out
	// Cancellation sends SIGTERM first so the trainer can flush its
	// checkpoint; WaitDelay escalates to SIGKILL.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = l.Grace
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = defaultGrace
	}

	if err := cmd.Start(); err != nil {
		cancel()
		logFile.Close()
		return nil, fmt.Errorf("failed to start trainer: %w", err)
	}

	run := &Run{
		ID:         id,
		Experiment: cfg.Trainer.ExperimentName,
		LogPath:    logPath,
		PID:        cmd.Process.Pid,
		cmd:        cmd,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	if l.Store != nil {
		cfgJSON, err := json.Marshal(cfg)
		if err != nil {
			log.Printf("Warning: failed to encode config for run %s: %v", id, err)
		}
		record := &store.Run{
			ID:         id,
			Experiment: cfg.Trainer.ExperimentName,
			ConfigJSON: string(cfgJSON),
			Status:     store.StatusRunning,
			PID:        run.PID,
			LogPath:    logPath,
			StartedAt:  time.Now().UTC(),
		}
		if err := l.Store.SaveRun(ctx, record); err != nil {
			log.Printf("Warning: failed to record run %s: %v", id, err)
		}
	}

	go run.reap(l.Store, logFile)
	return run, nil
}

func (r *Run) reap(st store.RunStore, logFile *os.File) {
	err := r.cmd.Wait()
	logFile.Close()

	switch {
	case r.stopped.Load():
		r.status = store.StatusStopped
	case err == nil:
		r.status = store.StatusSucceeded
		code := 0
		r.exitCode = &code
	default:
		r.status = store.StatusFailed
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			code := ee.ExitCode()
			r.exitCode = &code
		}
		r.waitErr = err
	}

	if st != nil {
		// The launch context may already be gone; the final state still
		// has to land in the registry.
		if uerr := st.UpdateStatus(context.Background(), r.ID, r.status, r.exitCode); uerr != nil {
			log.Printf("Warning: failed to finalize run %s: %v", r.ID, uerr)
		}
	}
	r.cancel()
	close(r.done)
}

// Wait blocks until the trainer exits and returns its terminal error, nil
// for a clean exit or a stop.
func (r *Run) Wait() error {
	<-r.done
	if r.status == store.StatusStopped {
		return nil
	}
	return r.waitErr
}

// Stop requests a graceful shutdown (SIGTERM, then SIGKILL after the grace
// period) and marks the run as stopped rather than failed.
func (r *Run) Stop() {
	r.stopped.Store(true)
	r.cancel()
}

// Status returns the terminal status, or StatusRunning while alive.
func (r *Run) Status() store.Status {
	select {
	case <-r.done:
		return r.status
	default:
		return store.StatusRunning
	}
}

// ExitCode returns the trainer's exit code once finished, or nil.
func (r *Run) ExitCode() *int {
	select {
	case <-r.done:
		return r.exitCode
	default:
		return nil
	}
}
