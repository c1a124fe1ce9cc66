package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/MimeLyc/stratum/internal/job"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// safeBuffer is written by concurrent polls.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &safeBuffer{}
	err := newApp(out).Run(context.Background(), append([]string{"stratum"}, args...))
	return out.String(), err
}

func fileJobServer(t *testing.T) *httptest.Server {
	t.Helper()
	var queries atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/jobs/job-ok":
			if queries.Add(1) == 1 {
				_, _ = w.Write([]byte(`{"job":{"id":"job-ok","status":"processing","progress":50}}`))
				return
			}
			_, _ = w.Write([]byte(`{"job":{"id":"job-ok","status":"completed","progress":100,"result":{"outputFile":"out.png"}}}`))
		case "/jobs/job-bad":
			_, _ = w.Write([]byte(`{"job":{"id":"job-bad","status":"failed","error":"boom"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte("Job not found"))
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestPollCommand_Completes(t *testing.T) {
	ts := fileJobServer(t)

	out, err := runApp(t, "poll", "--env", "", "--api-url", ts.URL, "--interval", "1ms", "--timeout", "5s", "job-ok")

	require.NoError(t, err)
	assert.Contains(t, out, "job-ok: 50%")
	assert.Contains(t, out, "job-ok: 100%")
	assert.Contains(t, out, "job-ok: completed (output out.png)")
}

func TestPollCommand_ReportsEachJob(t *testing.T) {
	ts := fileJobServer(t)

	out, err := runApp(t, "poll", "--env", "", "--api-url", ts.URL, "--interval", "1ms", "--timeout", "5s", "job-ok", "job-bad", "job-missing")

	require.Error(t, err)
	assert.Contains(t, out, "job-ok: completed")
	assert.Contains(t, out, "job-bad: failed: boom")
	assert.Contains(t, out, "job-missing: error: Failed to get job status: Job not found")
}

func TestPollCommand_RequiresIDs(t *testing.T) {
	_, err := runApp(t, "poll", "--env", "")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one job id is required")
}

func TestPollCommand_RejectsUnknownKind(t *testing.T) {
	_, err := runApp(t, "poll", "--env", "", "--kind", "video", "job-1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown job kind")
}

func TestUploadCommand_RejectsUnacceptedType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0o644))

	_, err := runApp(t, "upload", "--env", "", "--api-url", "http://127.0.0.1:1", path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not accepted")
}

func TestUploadCommand_Uploads(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !assert.Equal(t, "/files/upload", r.URL.Path) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"file":{"name":"a.png","size":2048,"type":"image/png"}}`))
	}))
	defer ts.Close()

	path := filepath.Join(t.TempDir(), "a.png")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{1}, 2048), 0o644))

	out, err := runApp(t, "upload", "--env", "", "--api-url", ts.URL, path)

	require.NoError(t, err)
	assert.Contains(t, out, "Uploading a.png: 100%")
	assert.Contains(t, out, "Uploaded a.png (2 KB)")
}

func TestRenderStatistics(t *testing.T) {
	var buf bytes.Buffer

	renderStatistics(&buf, &job.Statistics{
		TotalJobs:               1234,
		Completed:               1200,
		Failed:                  34,
		SuccessRate:             97.24,
		AverageProcessingTimeMs: 2500,
	})

	out := buf.String()
	assert.Contains(t, out, "1,234")
	assert.Contains(t, out, "97.2%")
	assert.Contains(t, out, "2.50 s")
}

func TestRenderHistory(t *testing.T) {
	var buf bytes.Buffer
	progress := 40
	msg := "Processing error"

	renderHistory(&buf, &job.History{
		Jobs: []job.ImageJob{
			{JobID: "img-1", Status: "PROCESSING", ProgressPercent: &progress, ScaleFactor: 2, ModelName: "ultramix_balanced"},
			{JobID: "img-2", Status: "FAILED", ErrorMessage: &msg, ScaleFactor: 4, ModelName: "ultrasharp"},
		},
		Page:       0,
		Size:       20,
		Total:      2,
		TotalPages: 1,
	})

	out := buf.String()
	assert.Contains(t, out, "img-1")
	assert.Contains(t, out, "40%")
	assert.Contains(t, out, "Processing error")
	assert.True(t, strings.Contains(out, "Page 1 of 1 (2 jobs)"), out)
}

func TestPollCommand_WritesLogFile(t *testing.T) {
	ts := fileJobServer(t)
	logPath := filepath.Join(t.TempDir(), "stratum.log")
	t.Setenv("LOG_FILE", logPath)
	t.Setenv("LOG_LEVEL", "debug")

	_, err := runApp(t, "poll", "--env", "", "--api-url", ts.URL, "--interval", "1ms", "--timeout", "5s", "job-ok")
	require.NoError(t, err)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Poll job-ok: completed after 2 queries")
}

func TestProcessCommand_SubmitsPollsAndDownloads(t *testing.T) {
	var statusQueries atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/jobs/process":
			if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			assert.Equal(t, "3", r.FormValue("scaleFactor"))
			assert.Equal(t, "ultrasharp", r.FormValue("modelName"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"jobId":"img-1","inputFileId":"in-1","status":"QUEUED","scaleFactor":3,"modelName":"ultrasharp"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/jobs/img-1":
			w.Header().Set("Content-Type", "application/json")
			if statusQueries.Add(1) == 1 {
				_, _ = w.Write([]byte(`{"jobId":"img-1","status":"QUEUED","progressPercent":0}`))
				return
			}
			_, _ = w.Write([]byte(`{"jobId":"img-1","status":"COMPLETED","progressPercent":100,"outputFileId":"out-1"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/upload/out-1":
			_, _ = w.Write([]byte("processed image"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()
	t.Setenv("POLL_INTERVAL_MS", "5")

	dir := t.TempDir()
	input := filepath.Join(dir, "photo.png")
	require.NoError(t, os.WriteFile(input, []byte("not really a png"), 0o644))
	dest := filepath.Join(dir, "photo-x3.png")

	out, err := runApp(t, "process", "--env", "", "--api-url", ts.URL, "--scale", "3", "--model", "ultrasharp", "--timeout", "5s", "--out", dest, input)

	require.NoError(t, err)
	assert.Contains(t, out, "Submitted job img-1")
	assert.Contains(t, out, "Processing: 100%")
	assert.Contains(t, out, "img-1: completed (output out-1)")
	assert.Contains(t, out, "Saved "+dest)
	assert.Equal(t, int32(2), statusQueries.Load())

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "processed image", string(data))
}

func TestProcessCommand_ReportsJobFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/jobs/process":
			_, _ = w.Write([]byte(`{"jobId":"img-2","status":"QUEUED"}`))
		case "/jobs/img-2":
			_, _ = w.Write([]byte(`{"jobId":"img-2","status":"FAILED","errorMessage":"model crashed"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()
	t.Setenv("POLL_INTERVAL_MS", "5")

	input := filepath.Join(t.TempDir(), "photo.png")
	require.NoError(t, os.WriteFile(input, []byte("png bytes"), 0o644))

	out, err := runApp(t, "process", "--env", "", "--api-url", ts.URL, input)

	require.Error(t, err)
	assert.Contains(t, out, "img-2: failed: model crashed")
}
