package entityextract

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragservice/internal/apperr"
	"ragservice/internal/llmclient"
)

func TestStableEntityID_SameNormalizedInputSameID(t *testing.T) {
	t.Parallel()
	id1 := stableEntityID(normalizeName("Paris"), normalizeName("Location"))
	id2 := stableEntityID(normalizeName("  paris  "), normalizeName("LOCATION"))
	assert.Equal(t, id1, id2)

	id3 := stableEntityID(normalizeName("Paris"), normalizeName("Person"))
	assert.NotEqual(t, id1, id3)
}

func TestNormalizeName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "jane doe", normalizeName("  Jane   Doe  "))
	assert.Equal(t, "", normalizeName("   "))
}

func TestExtract_DedupesAndNormalizes(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":` +
			`"{\"entities\":[{\"name\":\"Paris\",\"type\":\"location\"},{\"name\":\"paris\",\"type\":\"Location\"}]}"}}]}`))
	}))
	defer srv.Close()

	llm := llmclient.New(llmclient.Config{BaseURL: srv.URL, APIKey: "test", Model: "m"})
	extractor := New(llm)

	entities, err := extractor.Extract(t.Context(), "Paris is lovely in the spring. Paris again.")
	require.NoError(t, err)
	require.Len(t, entities, 1, "the same normalized name+type must collapse to one entity")
	assert.Equal(t, "Paris", entities[0].Name)
}

func TestExtract_EmptyEntitiesIsNotAnError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"entities\":[]}"}}]}`))
	}))
	defer srv.Close()

	llm := llmclient.New(llmclient.Config{BaseURL: srv.URL, APIKey: "test", Model: "m"})
	extractor := New(llm)

	entities, err := extractor.Extract(t.Context(), "nothing of note here")
	require.NoError(t, err)
	assert.Empty(t, entities)
}

func TestExtract_MalformedJSONIsMalformedUpstream(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"not json"}}]}`))
	}))
	defer srv.Close()

	llm := llmclient.New(llmclient.Config{BaseURL: srv.URL, APIKey: "test", Model: "m"})
	extractor := New(llm)

	_, err := extractor.Extract(t.Context(), "text")
	require.Error(t, err)
	assert.Equal(t, apperr.KindMalformedUpstream, apperr.KindOf(err))
}
