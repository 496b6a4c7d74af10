package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ragservice/internal/apperr"
	"ragservice/internal/domain"
	"ragservice/internal/scope"
)

// authMiddleware resolves a Bearer token to a tenant via tenantsByToken,
// builds the request's Visibility from the resolved tenant plus the
// X-Workspace-Id/X-Principal-Id headers, and stores it in the request
// context. It never validates scope requirements for a specific
// operation — handlers that write a scoped artifact do that themselves
// against the "scope" field they decode.
func authMiddleware(tenantsByToken map[string]string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, apperr.New(apperr.KindAuth, "missing bearer token"))
			return
		}
		tenantID, ok := tenantsByToken[token]
		if !ok {
			writeError(w, apperr.New(apperr.KindAuth, "invalid bearer token"))
			return
		}
		vis := scope.New(tenantID, r.Header.Get("X-Workspace-Id"), r.Header.Get("X-Principal-Id"))
		next(w, r.WithContext(withVisibility(r.Context(), vis)))
	}
}

func bearerToken(r *http.Request) string {
	raw := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(raw, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(raw, prefix))
}

// scopeKeyFromForm builds the ScopeKey a new document/chunk should be
// tagged with, from the decoded "scope" form field plus vis's headers,
// enforcing the header requirements from the external interfaces spec.
func scopeKeyFromForm(vis scope.Visibility, scopeParam string) (domain.ScopeKey, error) {
	level := domain.ScopeLevel(strings.TrimSpace(scopeParam))
	if level == "" {
		level = domain.ScopeTenant
	}
	key := domain.ScopeKey{TenantID: vis.TenantID, Scope: level}
	switch level {
	case domain.ScopeTenant:
	case domain.ScopeWorkspace:
		if vis.WorkspaceID == "" {
			return domain.ScopeKey{}, apperr.New(apperr.KindValidation, "scope=workspace requires X-Workspace-Id")
		}
		key.WorkspaceID = vis.WorkspaceID
	case domain.ScopeUser:
		if vis.WorkspaceID == "" || vis.PrincipalID == "" {
			return domain.ScopeKey{}, apperr.New(apperr.KindValidation, "scope=user requires X-Workspace-Id and X-Principal-Id")
		}
		key.WorkspaceID = vis.WorkspaceID
		key.PrincipalID = vis.PrincipalID
	default:
		return domain.ScopeKey{}, apperr.New(apperr.KindValidation, "unknown scope value")
	}
	if err := key.Validate(); err != nil {
		return domain.ScopeKey{}, apperr.Wrap(apperr.KindValidation, "invalid scope", err)
	}
	return key, nil
}

// loggingMiddleware logs one structured line per request after it completes.
func loggingMiddleware(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// Flush forwards to the wrapped writer so SSE handlers still see an
// http.Flusher behind the logging middleware.
func (s *statusWriter) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
