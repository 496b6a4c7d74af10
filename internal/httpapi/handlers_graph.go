package httpapi

import (
	"net/http"
	"strconv"

	"ragservice/internal/apperr"
)

func (s *Server) handleGraphEntities(w http.ResponseWriter, r *http.Request) {
	vis := VisibilityFromContext(r.Context())
	q := r.URL.Query()

	limit, err := parseLimit(q.Get("limit"), 50, 1, 500)
	if err != nil {
		writeError(w, err)
		return
	}
	entities, err := s.deps.Graph.TopEntities(r.Context(), vis, q.Get("q"), q.Get("entity_type"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"entities": entities})
}

func (s *Server) handleGraphEntityChunks(w http.ResponseWriter, r *http.Request) {
	vis := VisibilityFromContext(r.Context())
	entityID := r.PathValue("entityID")

	limit, err := parseLimit(r.URL.Query().Get("limit"), 25, 1, 200)
	if err != nil {
		writeError(w, err)
		return
	}
	chunkIDs, err := s.deps.Graph.ChunksForEntity(r.Context(), entityID, vis, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"chunk_ids": chunkIDs})
}

func (s *Server) handleGraphDocumentEntities(w http.ResponseWriter, r *http.Request) {
	vis := VisibilityFromContext(r.Context())
	docID := r.PathValue("docID")

	if _, err := parseLimit(r.URL.Query().Get("limit"), 50, 1, 500); err != nil {
		writeError(w, err)
		return
	}
	// EntitiesForDocument is not itself visibility-filtered, so confirm the
	// document is actually visible to this caller before returning anything.
	if _, err := s.deps.Meta.GetDocument(r.Context(), docID, vis); err != nil {
		writeError(w, err)
		return
	}
	entities, err := s.deps.Graph.EntitiesForDocument(r.Context(), docID)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"entities": entities})
}

func parseLimit(raw string, fallback, min, max int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min || n > max {
		return 0, apperr.New(apperr.KindValidation, "limit out of range")
	}
	return n, nil
}
