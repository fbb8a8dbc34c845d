package store

import (
	"context"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
)

// Run is one launch of the external trainer.
type Run struct {
	ID         string     `json:"id"`
	Experiment string     `json:"experiment"`
	ConfigJSON string     `json:"config"`
	Status     Status     `json:"status"`
	PID        int        `json:"pid,omitempty"`
	ExitCode   *int       `json:"exit_code,omitempty"`
	LogPath    string     `json:"log_path,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// RunStore persists run records. Kept behind an interface so handlers and
// the launcher never care that the implementation is a local SQLite file.
type RunStore interface {
	SaveRun(ctx context.Context, run *Run) error
	UpdateStatus(ctx context.Context, id string, status Status, exitCode *int) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context) ([]*Run, error)
	Close() error
}
