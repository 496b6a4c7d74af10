package httpapi

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"

	"ragservice/internal/domain"
)

// handleActiveIngestions returns the latest known ProgressEvent for every
// non-terminal document visible to the caller.
func (s *Server) handleActiveIngestions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vis := VisibilityFromContext(ctx)

	queued, err := s.deps.Meta.ListDocuments(ctx, vis, string(domain.StatusQueued))
	if err != nil {
		writeError(w, err)
		return
	}
	processing, err := s.deps.Meta.ListDocuments(ctx, vis, string(domain.StatusProcessing))
	if err != nil {
		writeError(w, err)
		return
	}

	active := make([]domain.ProgressEvent, 0, len(queued)+len(processing))
	for _, doc := range append(queued, processing...) {
		event, ok, err := s.deps.Queue.GetProgress(ctx, doc.DocID)
		if err != nil || !ok {
			event = domain.ProgressEvent{
				DocID: doc.DocID, ScopeKey: doc.ScopeKey, Filename: doc.Filename,
				Stage: doc.Stage, Progress: doc.Progress, Timestamp: doc.UpdatedAt,
			}
		}
		active = append(active, event)
	}
	respondJSON(w, http.StatusOK, map[string]any{"active": active})
}

// handleIngestionsStream upgrades the connection to Server-Sent Events,
// writing a connected frame and then every ProgressEvent this caller's
// visibility allows, one JSON object per line, until the client
// disconnects.
func (s *Server) handleIngestionsStream(w http.ResponseWriter, r *http.Request) {
	vis := VisibilityFromContext(r.Context())

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, fmt.Errorf("streaming unsupported"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	events, cancel := s.deps.Broadcaster.Subscribe(vis)
	defer cancel()

	bw := bufio.NewWriter(w)
	writeFrame(bw, map[string]any{"type": "connected"})
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			writeFrame(bw, event)
			flusher.Flush()
		}
	}
}

func writeFrame(bw *bufio.Writer, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(bw, "data: %s\n\n", raw)
	bw.Flush()
}
