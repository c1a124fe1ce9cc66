package job

import (
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions can happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ParseStatus accepts both the file-job spelling ("processing") and the
// image-job spelling ("PROCESSING", "QUEUED").
func ParseStatus(raw string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending", "queued":
		return StatusPending, nil
	case "processing":
		return StatusProcessing, nil
	case "completed":
		return StatusCompleted, nil
	case "failed":
		return StatusFailed, nil
	default:
		return "", fmt.Errorf("unknown job status %q", raw)
	}
}

// Kind names the backend surface a job belongs to.
type Kind string

const (
	KindFile  Kind = "file"
	KindImage Kind = "image"
)

func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case KindFile:
		return KindFile, nil
	case KindImage:
		return KindImage, nil
	default:
		return "", fmt.Errorf("unknown job kind %q", raw)
	}
}

// Job is a read-only snapshot of one unit of backend work.
type Job struct {
	ID          string     `json:"id"`
	Kind        Kind       `json:"kind"`
	Status      Status     `json:"status"`
	Progress    *int       `json:"progress,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Result      *Result    `json:"result,omitempty"`
}

// Result locates the output of a completed job.
type Result struct {
	OutputFile  string         `json:"output_file,omitempty"`
	DownloadURL string         `json:"download_url,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func (j *Job) HasProgress() bool {
	return j != nil && j.Progress != nil
}
