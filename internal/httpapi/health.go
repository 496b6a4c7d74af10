package httpapi

import (
	"context"
	"net/http"
)

// HealthChecker probes one dependency; Check returns a human-readable
// error, never a failure to produce a result — /health always returns
// 200 with per-dependency state, per the error handling design.
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	deps := make(map[string]string, len(s.deps.HealthCheckers))
	healthy := true
	for _, checker := range s.deps.HealthCheckers {
		if err := checker.Check(r.Context()); err != nil {
			deps[checker.Name()] = err.Error()
			healthy = false
			continue
		}
		deps[checker.Name()] = "ok"
	}
	status := "ok"
	if !healthy {
		status = "degraded"
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": status, "dependencies": deps})
}
