package embedder

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragservice/internal/apperr"
)

func TestEmbed_OrdersVectorsByResponseIndexNotRequestOrder(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.2],"index":1},{"embedding":[0.1],"index":0}]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "m"})
	vectors, err := c.Embed(t.Context(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0.1}, vectors[0])
	assert.Equal(t, []float32{0.2}, vectors[1])
}

func TestEmbed_EmptyInputShortCircuits(t *testing.T) {
	t.Parallel()
	c := New(Config{BaseURL: "http://unused.invalid", Model: "m"})
	vectors, err := c.Embed(t.Context(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestEmbed_MismatchedVectorCountIsMalformedUpstream(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1],"index":0}]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "m"})
	_, err := c.Embed(t.Context(), []string{"a", "b"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindMalformedUpstream, apperr.KindOf(err))
}

func TestEmbed_NonOKStatusIsDependencyFatal(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "m"})
	_, err := c.Embed(t.Context(), []string{"a"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindDependencyFatal, apperr.KindOf(err))
}

func TestSetAuth_AuthorizationHeaderGetsBearerPrefix(t *testing.T) {
	t.Parallel()
	var gotAuth, gotCustom string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCustom = r.Header.Get("X-API-Key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1],"index":0}]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "m", APIKey: "secret", APIHeader: "Authorization"})
	_, err := c.Embed(t.Context(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", gotAuth)

	c2 := New(Config{BaseURL: srv.URL, Model: "m", APIKey: "secret", APIHeader: "X-API-Key"})
	_, err = c2.Embed(t.Context(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, "secret", gotCustom)
}

func TestCheckReachability_ProbesWithPingInput(t *testing.T) {
	t.Parallel()
	var gotInputs []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotInputs = req.Input
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.1],"index":0}]}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "m"})
	require.NoError(t, c.CheckReachability(t.Context()))
	assert.Equal(t, []string{"ping"}, gotInputs)
}
