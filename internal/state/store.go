// Package state keeps the run journal: one row per analysis run with its
// configuration snapshot, outcome and output files.
package state

import "time"

// RunStatus is the outcome of a run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

// RunSpec describes a run when it starts.
type RunSpec struct {
	// SessionID is the id written into every output file of the run.
	SessionID string
	Command   string
	Ranks     int
	Particles int
	Steps     int64
	Backend   string
	OutputDir string
	// Config is the effective configuration as YAML.
	Config string
}

// Run is one journal entry.
type Run struct {
	RunSpec
	Status      RunStatus
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
	Outputs     []string
}

// Journal records runs.
type Journal interface {
	CreateRun(spec RunSpec) (*Run, error)
	CompleteRun(id string, status RunStatus, errMsg string, outputs []string) error
	GetRun(id string) (*Run, error)
	ListRuns(limit int) ([]*Run, error)
	Close() error
}

var _ Journal = (*SQLiteStore)(nil)
