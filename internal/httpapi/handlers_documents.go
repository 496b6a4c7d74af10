package httpapi

import (
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"ragservice/internal/apperr"
	"ragservice/internal/domain"
	"ragservice/internal/objectstore"
)

func (s *Server) handleWhoami(w http.ResponseWriter, r *http.Request) {
	vis := VisibilityFromContext(r.Context())
	respondJSON(w, http.StatusOK, map[string]any{
		"tenant_id":    vis.TenantID,
		"workspace_id": emptyToOmit(vis.WorkspaceID),
		"principal_id": emptyToOmit(vis.PrincipalID),
	})
}

func emptyToOmit(s string) any {
	if s == "" {
		return nil
	}
	return s
}

const maxUploadMemory = 32 << 20 // buffer this much in memory before spilling to temp files

func (s *Server) handleIngestDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vis := VisibilityFromContext(ctx)

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, apperr.Wrap(apperr.KindValidation, "parse multipart form", err))
		return
	}

	scopeKey, err := scopeKeyFromForm(vis, r.FormValue("scope"))
	if err != nil {
		writeError(w, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, apperr.Wrap(apperr.KindValidation, "missing file field", err))
		return
	}
	defer file.Close()

	if header.Size == 0 {
		writeError(w, apperr.New(apperr.KindValidation, "uploaded file is empty"))
		return
	}

	docID := uuid.NewString()
	basename := sanitizeBasename(header.Filename)
	storagePath := strings.Join([]string{"uploads", scopeKey.TenantID, docID, basename}, "/")

	contentType := header.Header.Get("Content-Type")
	if _, err := s.deps.Objects.Put(ctx, storagePath, file, objectstore.PutOptions{ContentType: contentType}); err != nil {
		writeError(w, apperr.Wrap(apperr.KindDependencyFatal, "store uploaded file", err))
		return
	}

	now := time.Now()
	doc := domain.Document{
		DocID:       docID,
		ScopeKey:    scopeKey,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		StoragePath: storagePath,
		Status:      domain.StatusQueued,
		Stage:       domain.StageQueued,
		Progress:    domain.StageProgress[domain.StageQueued],
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.deps.Meta.InsertDocument(ctx, doc); err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Queue.Push(ctx, domain.Job{DocID: docID}); err != nil {
		writeError(w, err)
		return
	}

	event := domain.ProgressEvent{
		DocID: docID, ScopeKey: scopeKey, Filename: header.Filename,
		Stage: domain.StageQueued, Progress: domain.StageProgress[domain.StageQueued],
		Message: "queued", Timestamp: now,
	}
	_ = s.deps.Queue.SetProgress(ctx, event)
	_ = s.deps.Queue.Publish(ctx, event)
	s.deps.Broadcaster.Broadcast(event)

	respondJSON(w, http.StatusOK, map[string]any{"doc_id": docID, "status": string(domain.StatusQueued)})
}

// sanitizeBasename drops any directory components and backslash segments
// from an untrusted client-supplied filename, keeping only the basename.
func sanitizeBasename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	if name == "" || name == "." || name == "/" {
		return "upload"
	}
	return name
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	vis := VisibilityFromContext(r.Context())
	docID := r.PathValue("docID")
	doc, err := s.deps.Meta.GetDocument(r.Context(), docID, vis)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

var documentSortColumns = map[string]bool{
	"created_at": true, "updated_at": true, "filename": true, "status": true,
	"stage": true, "progress": true, "chunk_count": true, "entity_count": true,
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	vis := VisibilityFromContext(r.Context())
	q := r.URL.Query()

	limit := 100
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			writeError(w, apperr.New(apperr.KindValidation, "limit must be in [1,500]"))
			return
		}
		limit = n
	}
	offset := 0
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, apperr.New(apperr.KindValidation, "offset must be >= 0"))
			return
		}
		offset = n
	}
	sortBy := q.Get("sort")
	if sortBy == "" {
		sortBy = "created_at"
	}
	if !documentSortColumns[sortBy] {
		writeError(w, apperr.New(apperr.KindValidation, "unrecognized sort column"))
		return
	}
	order := q.Get("order")
	if order == "" {
		order = "desc"
	}
	if order != "asc" && order != "desc" {
		writeError(w, apperr.New(apperr.KindValidation, "order must be asc or desc"))
		return
	}

	docs, err := s.deps.Meta.ListDocuments(r.Context(), vis, q.Get("status"))
	if err != nil {
		writeError(w, err)
		return
	}
	docs = sortDocuments(docs, sortBy, order)
	docs = paginate(docs, offset, limit)
	respondJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleDocumentCounts(w http.ResponseWriter, r *http.Request) {
	vis := VisibilityFromContext(r.Context())
	counts, err := s.deps.Meta.CountsByStatus(r.Context(), vis)
	if err != nil {
		writeError(w, err)
		return
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"total":      total,
		"queued":     counts[domain.StatusQueued],
		"processing": counts[domain.StatusProcessing],
		"indexed":    counts[domain.StatusIndexed],
		"failed":     counts[domain.StatusFailed],
	})
}

func paginate(docs []domain.Document, offset, limit int) []domain.Document {
	if offset >= len(docs) {
		return []domain.Document{}
	}
	end := offset + limit
	if end > len(docs) {
		end = len(docs)
	}
	return docs[offset:end]
}
