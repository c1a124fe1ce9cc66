package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/MimeLyc/stratum/internal/watch"
)

const watchEventName = "watches"

// watchFeed renders the watch list as stream payloads and drops a payload
// identical to the one sent before it.
type watchFeed struct {
	list func() []*watch.Watch
	last []byte
}

func (f *watchFeed) next() ([]byte, bool, error) {
	payload, err := json.Marshal(f.list())
	if err != nil {
		return nil, false, err
	}
	if f.last != nil && bytes.Equal(payload, f.last) {
		return nil, false, nil
	}
	f.last = payload
	return payload, true, nil
}

func (s *Server) handleWatchStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	feed := &watchFeed{list: s.queue.List}
	send := func() bool {
		payload, changed, err := feed.next()
		if err != nil {
			return false
		}
		if !changed {
			return true
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", watchEventName, payload); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !send() {
		return
	}

	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if !send() {
				return
			}
		}
	}
}
