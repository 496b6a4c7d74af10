package httpapi

import (
	"encoding/json"
	"net/http"

	"ragservice/internal/apperr"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]any{"error": err.Error()})
}

// writeError maps an apperr.Kind to its HTTP status and writes the body,
// the one place the error taxonomy meets the transport.
func writeError(w http.ResponseWriter, err error) {
	respondError(w, statusFromError(err), err)
}

func statusFromError(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindAuth:
		return http.StatusUnauthorized
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindDependencyFatal, apperr.KindInternal:
		return http.StatusInternalServerError
	case apperr.KindDependencyTransient, apperr.KindMalformedUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
