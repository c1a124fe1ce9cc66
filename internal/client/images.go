package client

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/MimeLyc/stratum/internal/job"
	"github.com/MimeLyc/stratum/internal/poller"
)

const (
	DefaultScaleFactor = 2
	DefaultModelName   = "ultramix_balanced"
)

type ProcessRequest struct {
	FileName    string
	Content     io.Reader
	ScaleFactor int
	ModelName   string
	OnProgress  ProgressFunc
}

// SubmitProcessingJob uploads an image and queues it for processing.
func (c *Client) SubmitProcessingJob(ctx context.Context, req ProcessRequest) (*job.SubmitResponse, error) {
	if req.ScaleFactor <= 0 {
		req.ScaleFactor = DefaultScaleFactor
	}
	if req.ModelName == "" {
		req.ModelName = DefaultModelName
	}

	var ret job.SubmitResponse
	err := c.postMultipart(ctx, c.endpoint("jobs", "process"), "submit job", req.FileName, req.Content, req.OnProgress, &ret,
		formField{name: "scaleFactor", value: strconv.Itoa(req.ScaleFactor)},
		formField{name: "modelName", value: req.ModelName},
	)
	if err != nil {
		return nil, err
	}
	if ret.JobID == "" {
		return nil, fmt.Errorf("invalid response from server: missing jobId")
	}
	return &ret, nil
}

func (c *Client) GetImageJob(ctx context.Context, jobID string) (*job.ImageJob, error) {
	var ret job.ImageJob
	if err := c.getJSON(ctx, c.endpoint("jobs", jobID), "get job status", &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}

// ImageJobSource adapts the image-job status endpoint to the poller.
func (c *Client) ImageJobSource() poller.Source {
	return poller.SourceFunc(func(ctx context.Context, jobID string) (*job.Job, error) {
		raw, err := c.GetImageJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		return raw.Normalize()
	})
}

// Source returns the status source for kind.
func (c *Client) Source(kind job.Kind) (poller.Source, error) {
	switch kind {
	case job.KindFile:
		return c.FileJobSource(), nil
	case job.KindImage:
		return c.ImageJobSource(), nil
	default:
		return nil, fmt.Errorf("unknown job kind %q", kind)
	}
}

func (c *Client) JobHistory(ctx context.Context, page, size int) (*job.History, error) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = 20
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))

	var ret job.History
	if err := c.getJSON(ctx, c.endpoint("jobs", "history")+"?"+q.Encode(), "get job history", &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}

func (c *Client) JobStatistics(ctx context.Context) (*job.Statistics, error) {
	var ret job.Statistics
	if err := c.getJSON(ctx, c.endpoint("jobs", "statistics"), "get statistics", &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}

// DownloadOutput streams a processed output file into w.
func (c *Client) DownloadOutput(ctx context.Context, fileID string, w io.Writer) (int64, error) {
	return c.download(ctx, c.endpoint("upload", fileID), "download output", w)
}
