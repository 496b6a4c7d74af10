// Package httpapi exposes the tenant-facing HTTP surface: document
// ingestion, document/progress queries, retrieval, and graph queries.
// Grounded on the teacher's internal/httpapi: a *http.ServeMux with Go
// 1.22+ "METHOD /path/{param}" routing, registerRoutes, and
// respondJSON/respondError helpers.
package httpapi

import (
	"net/http"

	"github.com/rs/zerolog"

	"ragservice/internal/objectstore"
	"ragservice/internal/progress"
	"ragservice/internal/rag/retrieve"
	"ragservice/internal/store/graph"
	"ragservice/internal/store/meta"
	"ragservice/internal/store/queue"
)

// Deps bundles every collaborator the tenant-facing API calls into.
type Deps struct {
	Meta           *meta.Store
	Queue          *queue.Store
	Objects        objectstore.ObjectStore
	Retrieve       *retrieve.Pipeline
	Graph          graph.Store
	Broadcaster    *progress.Broadcaster
	TenantsByToken map[string]string
	DataDir        string
	Logger         zerolog.Logger
	HealthCheckers []HealthChecker
}

// Server is the tenant-facing API's http.Handler.
type Server struct {
	deps Deps
	mux  *http.ServeMux
}

// NewServer builds a Server with every route registered.
func NewServer(deps Deps) *Server {
	s := &Server{deps: deps, mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

// ServeHTTP satisfies http.Handler; requests are logged after completion.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	loggingMiddleware(s.deps.Logger, s.mux).ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	auth := func(h http.HandlerFunc) http.HandlerFunc {
		return authMiddleware(s.deps.TenantsByToken, h)
	}

	s.mux.HandleFunc("GET /v1/whoami", auth(s.handleWhoami))

	s.mux.HandleFunc("POST /v1/ingest/document", auth(s.handleIngestDocument))
	s.mux.HandleFunc("GET /v1/documents/{docID}", auth(s.handleGetDocument))
	s.mux.HandleFunc("GET /v1/documents", auth(s.handleListDocuments))
	s.mux.HandleFunc("GET /v1/documents/counts", auth(s.handleDocumentCounts))

	s.mux.HandleFunc("GET /v1/ingestions/active", auth(s.handleActiveIngestions))
	s.mux.HandleFunc("GET /v1/ingestions/stream", auth(s.handleIngestionsStream))

	s.mux.HandleFunc("POST /v1/retrieve", auth(s.handleRetrieve))

	s.mux.HandleFunc("GET /v1/graph/entities", auth(s.handleGraphEntities))
	s.mux.HandleFunc("GET /v1/graph/entities/{entityID}/chunks", auth(s.handleGraphEntityChunks))
	s.mux.HandleFunc("GET /v1/graph/documents/{docID}/entities", auth(s.handleGraphDocumentEntities))

	s.mux.HandleFunc("GET /health", s.handleHealth)
}
