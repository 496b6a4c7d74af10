package httpapi

import (
	"encoding/json"
	"net/http"

	"ragservice/internal/apperr"
	"ragservice/internal/domain"
)

// retrieveBody decodes limit/alpha as pointers so an explicit 0 (a valid,
// meaningful alpha value) can be told apart from "field omitted".
type retrieveBody struct {
	Query string   `json:"query"`
	Limit *int     `json:"limit"`
	Alpha *float64 `json:"alpha"`
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var body retrieveBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.Wrap(apperr.KindValidation, "decode retrieve request", err))
		return
	}
	if body.Query == "" {
		writeError(w, apperr.New(apperr.KindValidation, "query is required"))
		return
	}
	req := domain.RetrieveRequest{Query: body.Query, Limit: 10, Alpha: 0.5}
	if body.Limit != nil {
		req.Limit = *body.Limit
	}
	if req.Limit < 1 || req.Limit > 50 {
		writeError(w, apperr.New(apperr.KindValidation, "limit must be in [1,50]"))
		return
	}
	if body.Alpha != nil {
		req.Alpha = *body.Alpha
	}
	if req.Alpha < 0 || req.Alpha > 1 {
		writeError(w, apperr.New(apperr.KindValidation, "alpha must be in [0,1]"))
		return
	}

	vis := VisibilityFromContext(r.Context())
	resp, err := s.deps.Retrieve.Retrieve(r.Context(), req, vis)
	if err != nil {
		writeError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}
