// Package reranker defines the pluggable cross-encoder collaborator.
// No reranker is implemented here beyond a Noop fallback and a generic
// HTTP client; operators bring their own cross-encoder service.
package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ragservice/internal/apperr"
)

// Candidate is one item to be scored against a query.
type Candidate struct {
	ID   string
	Text string
}

// Scored pairs a Candidate's ID with its rerank score.
type Scored struct {
	ID    string
	Score float64
}

// Reranker scores candidates against a query; higher is more relevant.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []Candidate) ([]Scored, error)
}

// NoopReranker returns each candidate's input order as a descending score,
// so a pipeline wired without a cross-encoder degrades to "keep hybrid
// ranking" rather than failing.
type NoopReranker struct{}

func (NoopReranker) Rerank(ctx context.Context, query string, candidates []Candidate) ([]Scored, error) {
	out := make([]Scored, len(candidates))
	n := len(candidates)
	for i, c := range candidates {
		out[i] = Scored{ID: c.ID, Score: float64(n - i)}
	}
	return out, nil
}

// HTTPReranker calls an external cross-encoder service that accepts
// {query, documents: [...]string} and returns {scores: [...]float64} in
// the same order as the request.
type HTTPReranker struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// NewHTTPReranker builds an HTTPReranker; a zero timeout defaults to 10s.
func NewHTTPReranker(baseURL string, timeout time.Duration) *HTTPReranker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPReranker{baseURL: baseURL, httpClient: &http.Client{}, timeout: timeout}
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Scores []float64 `json:"scores"`
}

func (r *HTTPReranker) Rerank(ctx context.Context, query string, candidates []Candidate) ([]Scored, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Text
	}
	body, err := json.Marshal(rerankRequest{Query: query, Documents: docs})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "marshal rerank request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "build rerank request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyTransient, "call reranker", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyTransient, "read rerank response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.New(apperr.KindDependencyFatal,
			fmt.Sprintf("reranker returned %d: %s", resp.StatusCode, string(raw)))
	}
	var rr rerankResponse
	if err := json.Unmarshal(raw, &rr); err != nil {
		return nil, apperr.Wrap(apperr.KindMalformedUpstream, "decode rerank response", err)
	}
	if len(rr.Scores) != len(candidates) {
		return nil, apperr.New(apperr.KindMalformedUpstream, "reranker returned mismatched score count")
	}
	out := make([]Scored, len(candidates))
	for i, c := range candidates {
		out[i] = Scored{ID: c.ID, Score: rr.Scores[i]}
	}
	return out, nil
}

var (
	_ Reranker = NoopReranker{}
	_ Reranker = (*HTTPReranker)(nil)
)
