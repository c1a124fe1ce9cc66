package httpapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/MimeLyc/stratum/internal/filecheck"
	"github.com/MimeLyc/stratum/internal/job"
	"github.com/MimeLyc/stratum/internal/watch"
)

type enqueueWatchRequest struct {
	Kind      string `json:"kind"`
	JobID     string `json:"job_id"`
	Source    string `json:"source"`
	DedupeKey string `json:"dedupe_key"`
}

func (s *Server) handleWatches(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.queue.List())
	case http.MethodPost:
		var req enqueueWatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		req.JobID = strings.TrimSpace(req.JobID)
		if req.JobID == "" {
			writeError(w, http.StatusBadRequest, "job_id is required")
			return
		}
		if req.Kind == "" {
			req.Kind = string(job.KindFile)
		}
		kind, err := job.ParseKind(req.Kind)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.Source == "" {
			req.Source = "manual"
		}

		item, created := s.queue.Enqueue(watch.Request{
			Kind:      kind,
			JobID:     req.JobID,
			Source:    req.Source,
			DedupeKey: req.DedupeKey,
		})
		code := http.StatusCreated
		if !created {
			code = http.StatusOK
		}
		writeJSON(w, code, map[string]any{
			"created": created,
			"watch":   item,
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleWatchByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// /api/watches/{id}
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/watches/"), "/")
	if decoded, err := url.PathUnescape(id); err == nil {
		id = decoded
	}
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	item, ok := s.queue.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "watch not found")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type validateResponse struct {
	filecheck.Result
	Type          string `json:"type"`
	FormattedSize string `json:"formatted_size"`
	IsImage       bool   `json:"is_image"`
	IsDDS         bool   `json:"is_dds"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var file filecheck.FileInfo
	if err := json.NewDecoder(r.Body).Decode(&file); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if strings.TrimSpace(file.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if file.Type == "" {
		file.Type = filecheck.TypeFromName(file.Name)
	}

	writeJSON(w, http.StatusOK, validateResponse{
		Result:        filecheck.Validate(file, s.fileCheck),
		Type:          file.Type,
		FormattedSize: filecheck.FormatSize(file.Size),
		IsImage:       filecheck.IsImage(file),
		IsDDS:         filecheck.IsDDS(file),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}
