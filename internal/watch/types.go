package watch

import (
	"time"

	"github.com/MimeLyc/stratum/internal/job"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusTimeout   Status = "timeout"
	StatusError     Status = "error"
)

func (s Status) Active() bool {
	return s == StatusPending || s == StatusRunning
}

type Request struct {
	Kind   job.Kind
	JobID  string
	Source string
	// DedupeKey defaults to "<kind>|<job id>".
	DedupeKey string
}

// Watch tracks one background poll of a backend job.
type Watch struct {
	ID         string     `json:"id"`
	Kind       job.Kind   `json:"kind"`
	JobID      string     `json:"job_id"`
	Source     string     `json:"source"`
	DedupeKey  string     `json:"dedupe_key"`
	Status     Status     `json:"status"`
	Progress   *int       `json:"progress,omitempty"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
