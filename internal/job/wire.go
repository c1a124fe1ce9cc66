package job

import (
	"fmt"
	"strings"
	"time"
)

// FileJob is the job shape served by the file service (`/jobs/{id}`).
type FileJob struct {
	ID          string      `json:"id"`
	Status      string      `json:"status"`
	Type        string      `json:"type"`
	CreatedAt   string      `json:"createdAt"`
	CompletedAt string      `json:"completedAt,omitempty"`
	Progress    *int        `json:"progress,omitempty"`
	Result      *FileResult `json:"result,omitempty"`
	Error       string      `json:"error,omitempty"`
}

type FileResult struct {
	OutputFile  string         `json:"outputFile,omitempty"`
	DownloadURL string         `json:"downloadUrl,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// FileJobEnvelope wraps FileJob in create and status responses.
type FileJobEnvelope struct {
	Job *FileJob `json:"job"`
}

type CreateJobRequest struct {
	Type       string         `json:"type"`
	InputFile  string         `json:"inputFile"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

func (f *FileJob) Normalize() (*Job, error) {
	if f == nil {
		return nil, fmt.Errorf("empty job payload")
	}
	if f.ID == "" {
		return nil, fmt.Errorf("job payload has no id")
	}
	status, err := ParseStatus(f.Status)
	if err != nil {
		return nil, err
	}

	ret := &Job{
		ID:        f.ID,
		Kind:      KindFile,
		Status:    status,
		Progress:  copyInt(f.Progress),
		CreatedAt: parseTime(f.CreatedAt),
	}
	if status == StatusFailed {
		ret.Error = f.Error
	}
	if f.CompletedAt != "" {
		t := parseTime(f.CompletedAt)
		if !t.IsZero() {
			ret.CompletedAt = &t
		}
	}
	if f.Result != nil {
		ret.Result = &Result{
			OutputFile:  f.Result.OutputFile,
			DownloadURL: f.Result.DownloadURL,
			Metadata:    f.Result.Metadata,
		}
	}
	return ret, nil
}

// ImageJob is the job shape served by the image-processing service.
type ImageJob struct {
	JobID            string  `json:"jobId"`
	InputFileID      string  `json:"inputFileId"`
	OutputFileID     *string `json:"outputFileId"`
	Status           string  `json:"status"`
	ScaleFactor      float64 `json:"scaleFactor"`
	ModelName        string  `json:"modelName"`
	ProgressPercent  *int    `json:"progressPercent"`
	ErrorMessage     *string `json:"errorMessage"`
	CreatedAt        string  `json:"createdAt"`
	StartedAt        *string `json:"startedAt"`
	CompletedAt      *string `json:"completedAt"`
	ProcessingTimeMs *int64  `json:"processingTimeMs"`
}

func (i *ImageJob) Normalize() (*Job, error) {
	if i == nil {
		return nil, fmt.Errorf("empty job payload")
	}
	if i.JobID == "" {
		return nil, fmt.Errorf("job payload has no jobId")
	}
	status, err := ParseStatus(i.Status)
	if err != nil {
		return nil, err
	}

	ret := &Job{
		ID:        i.JobID,
		Kind:      KindImage,
		Status:    status,
		Progress:  copyInt(i.ProgressPercent),
		CreatedAt: parseTime(i.CreatedAt),
	}
	if status == StatusFailed && i.ErrorMessage != nil {
		ret.Error = *i.ErrorMessage
	}
	if i.CompletedAt != nil {
		t := parseTime(*i.CompletedAt)
		if !t.IsZero() {
			ret.CompletedAt = &t
		}
	}
	if i.OutputFileID != nil && *i.OutputFileID != "" {
		meta := map[string]any{
			"inputFileId": i.InputFileID,
			"scaleFactor": i.ScaleFactor,
			"modelName":   i.ModelName,
		}
		if i.ProcessingTimeMs != nil {
			meta["processingTimeMs"] = *i.ProcessingTimeMs
		}
		ret.Result = &Result{
			OutputFile: *i.OutputFileID,
			Metadata:   meta,
		}
	}
	return ret, nil
}

// SubmitResponse is returned by `POST /jobs/process`.
type SubmitResponse struct {
	JobID       string  `json:"jobId"`
	InputFileID string  `json:"inputFileId"`
	Status      string  `json:"status"`
	ScaleFactor float64 `json:"scaleFactor"`
	ModelName   string  `json:"modelName"`
}

type History struct {
	Jobs       []ImageJob `json:"jobs"`
	Page       int        `json:"page"`
	Size       int        `json:"size"`
	Total      int        `json:"total"`
	TotalPages int        `json:"totalPages"`
}

type Statistics struct {
	TotalJobs               int     `json:"totalJobs"`
	Queued                  int     `json:"queued"`
	Processing              int     `json:"processing"`
	Completed               int     `json:"completed"`
	Failed                  int     `json:"failed"`
	SuccessRate             float64 `json:"successRate"`
	AverageProcessingTimeMs float64 `json:"averageProcessingTimeMs"`
}

// FileInfo describes an uploaded file.
type FileInfo struct {
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	Type       string `json:"type"`
	UploadedAt string `json:"uploadedAt"`
	URL        string `json:"url,omitempty"`
}

type UploadFileResponse struct {
	File FileInfo `json:"file"`
}

type ListFilesResponse struct {
	Files []FileInfo `json:"files"`
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	tmp := *v
	return &tmp
}

// parseTime accepts RFC 3339 and the zone-less ISO form some backends emit.
// Unparseable values yield the zero time.
func parseTime(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
