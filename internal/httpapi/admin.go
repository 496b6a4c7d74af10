package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"ragservice/internal/apperr"
	"ragservice/internal/rag/ingest"
)

// AdminDeps bundles what the admin surface needs.
type AdminDeps struct {
	Supervisor *ingest.Supervisor
	Token      string
	Logger     zerolog.Logger
	// Start/Stop are provided as funcs rather than calling Supervisor
	// directly, since starting the supervisor requires the long-lived
	// worker context owned by cmd/worker, not the admin handler.
	Start func()
	Stop  func()
	// ResetTenant/ResetAll are hooks for the reset operations the spec
	// names; wiring a concrete implementation (e.g. truncating per-tenant
	// rows across MetaStore/VectorStore/GraphStore) is left to the
	// caller that constructs AdminDeps.
	ResetTenant func(tenantID string) error
	ResetAll    func() error
}

// AdminServer is a second, separately registered mux gated by a static
// admin token rather than the tenant bearer-token scheme, per the
// external interfaces spec's "session-gated, separate auth" admin
// surface. A static token is a documented simplification — see DESIGN.md.
type AdminServer struct {
	deps AdminDeps
	mux  *http.ServeMux
}

// NewAdminServer builds an AdminServer with every admin route registered.
func NewAdminServer(deps AdminDeps) *AdminServer {
	s := &AdminServer{deps: deps, mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

func (s *AdminServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *AdminServer) registerRoutes() {
	gate := s.gate
	s.mux.HandleFunc("POST /admin/worker/start", gate(s.handleStart))
	s.mux.HandleFunc("POST /admin/worker/stop", gate(s.handleStop))
	s.mux.HandleFunc("POST /admin/worker/concurrency", gate(s.handleSetConcurrency))
	s.mux.HandleFunc("POST /admin/reset/tenant/{tenantID}", gate(s.handleResetTenant))
	s.mux.HandleFunc("POST /admin/reset/all", gate(s.handleResetAll))
	s.mux.HandleFunc("GET /admin/status", gate(s.handleStatus))
}

func (s *AdminServer) gate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Token == "" || bearerToken(r) != s.deps.Token {
			writeError(w, apperr.New(apperr.KindAuth, "invalid admin token"))
			return
		}
		next(w, r)
	}
}

func (s *AdminServer) handleStart(w http.ResponseWriter, r *http.Request) {
	if s.deps.Start != nil {
		s.deps.Start()
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "started"})
}

func (s *AdminServer) handleStop(w http.ResponseWriter, r *http.Request) {
	if s.deps.Stop != nil {
		s.deps.Stop()
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "stopped"})
}

func (s *AdminServer) handleSetConcurrency(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Concurrency int `json:"concurrency"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.Wrap(apperr.KindValidation, "decode concurrency request", err))
		return
	}
	if body.Concurrency < 1 || body.Concurrency > 32 {
		writeError(w, apperr.New(apperr.KindValidation, "concurrency must be in [1,32]"))
		return
	}
	s.deps.Supervisor.SetConcurrency(body.Concurrency)
	respondJSON(w, http.StatusOK, map[string]any{"concurrency": body.Concurrency})
}

func (s *AdminServer) handleResetTenant(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Confirm string `json:"confirm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Confirm != "RESET" {
		writeError(w, apperr.New(apperr.KindValidation, `confirm must equal "RESET"`))
		return
	}
	if s.deps.ResetTenant == nil {
		writeError(w, apperr.New(apperr.KindInternal, "tenant reset not wired"))
		return
	}
	if err := s.deps.ResetTenant(r.PathValue("tenantID")); err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "reset"})
}

func (s *AdminServer) handleResetAll(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Confirm string `json:"confirm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Confirm != "RESET ALL" {
		writeError(w, apperr.New(apperr.KindValidation, `confirm must equal "RESET ALL"`))
		return
	}
	if s.deps.ResetAll == nil {
		writeError(w, apperr.New(apperr.KindInternal, "global reset not wired"))
		return
	}
	if err := s.deps.ResetAll(); err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "reset"})
}

// handleStatus renders a minimal status page; the spec names this as a
// required operation without prescribing a layout.
func (s *AdminServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	var b strings.Builder
	b.WriteString("<html><body><h1>rag ingestion admin</h1><p>Use the admin API to start/stop the worker or change concurrency.</p></body></html>")
	_, _ = w.Write([]byte(b.String()))
}
