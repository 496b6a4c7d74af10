package reranker

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragservice/internal/apperr"
)

func TestNoopReranker_PreservesInputOrderAsDescendingScore(t *testing.T) {
	t.Parallel()
	candidates := []Candidate{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	scored, err := NoopReranker{}.Rerank(t.Context(), "query", candidates)
	require.NoError(t, err)
	require.Len(t, scored, 3)
	assert.Greater(t, scored[0].Score, scored[1].Score)
	assert.Greater(t, scored[1].Score, scored[2].Score)
	assert.Equal(t, "a", scored[0].ID)
}

func TestNoopReranker_EmptyInput(t *testing.T) {
	t.Parallel()
	scored, err := NoopReranker{}.Rerank(t.Context(), "query", nil)
	require.NoError(t, err)
	assert.Empty(t, scored)
}

func TestHTTPReranker_ScoresInRequestOrder(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"scores":[0.2,0.9]}`))
	}))
	defer srv.Close()

	r := NewHTTPReranker(srv.URL, 0)
	scored, err := r.Rerank(t.Context(), "q", []Candidate{{ID: "a", Text: "x"}, {ID: "b", Text: "y"}})
	require.NoError(t, err)
	require.Len(t, scored, 2)
	assert.Equal(t, Scored{ID: "a", Score: 0.2}, scored[0])
	assert.Equal(t, Scored{ID: "b", Score: 0.9}, scored[1])
}

func TestHTTPReranker_EmptyCandidates(t *testing.T) {
	t.Parallel()
	r := NewHTTPReranker("http://unused.invalid", 0)
	scored, err := r.Rerank(t.Context(), "q", nil)
	require.NoError(t, err)
	assert.Nil(t, scored)
}

func TestHTTPReranker_NonOKStatusIsDependencyFatal(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	r := NewHTTPReranker(srv.URL, 0)
	_, err := r.Rerank(t.Context(), "q", []Candidate{{ID: "a", Text: "x"}})
	require.Error(t, err)
	assert.Equal(t, apperr.KindDependencyFatal, apperr.KindOf(err))
}

func TestHTTPReranker_MismatchedScoreCountIsMalformedUpstream(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"scores":[0.1]}`))
	}))
	defer srv.Close()

	r := NewHTTPReranker(srv.URL, 0)
	_, err := r.Rerank(t.Context(), "q", []Candidate{{ID: "a", Text: "x"}, {ID: "b", Text: "y"}})
	require.Error(t, err)
	assert.Equal(t, apperr.KindMalformedUpstream, apperr.KindOf(err))
}

func TestHTTPReranker_TransportFailureIsDependencyTransient(t *testing.T) {
	t.Parallel()
	r := NewHTTPReranker("http://127.0.0.1:0", 0)
	_, err := r.Rerank(t.Context(), "q", []Candidate{{ID: "a", Text: "x"}})
	require.Error(t, err)
	assert.Equal(t, apperr.KindDependencyTransient, apperr.KindOf(err))
}
