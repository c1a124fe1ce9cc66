package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/MimeLyc/stratum/internal/job"
	"github.com/MimeLyc/stratum/internal/poller"
)

// CreateJob submits a job against a previously uploaded file.
func (c *Client) CreateJob(ctx context.Context, req job.CreateJobRequest) (*job.FileJob, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := c.newRequest(ctx, http.MethodPost, c.endpoint("jobs"), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.send(httpReq, "create job")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var env job.FileJobEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("invalid response from server: %w", err)
	}
	if env.Job == nil {
		return nil, fmt.Errorf("invalid response from server: missing job")
	}
	return env.Job, nil
}

func (c *Client) GetFileJob(ctx context.Context, jobID string) (*job.FileJob, error) {
	var env job.FileJobEnvelope
	if err := c.getJSON(ctx, c.endpoint("jobs", jobID), "get job status", &env); err != nil {
		return nil, err
	}
	if env.Job == nil {
		return nil, fmt.Errorf("invalid response from server: missing job")
	}
	return env.Job, nil
}

// FileJobSource adapts the file-job status endpoint to the poller.
func (c *Client) FileJobSource() poller.Source {
	return poller.SourceFunc(func(ctx context.Context, jobID string) (*job.Job, error) {
		raw, err := c.GetFileJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		return raw.Normalize()
	})
}

func (c *Client) UploadFile(ctx context.Context, fileName string, content io.Reader, onProgress ProgressFunc) (*job.FileInfo, error) {
	var ret job.UploadFileResponse
	if err := c.postMultipart(ctx, c.endpoint("files", "upload"), "upload file", fileName, content, onProgress, &ret); err != nil {
		return nil, err
	}
	return &ret.File, nil
}

func (c *Client) ListFiles(ctx context.Context) ([]job.FileInfo, error) {
	var ret job.ListFilesResponse
	if err := c.getJSON(ctx, c.endpoint("files"), "list files", &ret); err != nil {
		return nil, err
	}
	return ret.Files, nil
}

func (c *Client) DeleteFile(ctx context.Context, name string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, c.endpoint("files", name), nil)
	if err != nil {
		return err
	}
	resp, err := c.send(req, "delete file")
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// DownloadFile streams a stored file into w.
func (c *Client) DownloadFile(ctx context.Context, name string, w io.Writer) (int64, error) {
	return c.download(ctx, c.endpoint("files", name, "download"), "download file", w)
}
