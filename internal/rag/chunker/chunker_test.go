package chunker

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragservice/internal/apperr"
	"ragservice/internal/domain"
	"ragservice/internal/llmclient"
)

func TestNew_RejectsWindowNotExceedingOverlap(t *testing.T) {
	t.Parallel()
	llm := llmclient.New(llmclient.Config{Model: "m"})
	_, err := New(llm, 100, 100)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

func TestOverlapRatio(t *testing.T) {
	t.Parallel()
	a := Proposal{StartChar: 0, EndChar: 100}
	b := Proposal{StartChar: 90, EndChar: 190}
	// overlap [90,100) = 10 chars over the shorter span (100) = 0.1
	assert.InDelta(t, 0.1, overlapRatio(a, b), 0.001)

	disjoint := Proposal{StartChar: 200, EndChar: 300}
	assert.Equal(t, 0.0, overlapRatio(a, disjoint))
}

func TestDedupeByOverlap_DropsHeavilyOverlappingLaterProposal(t *testing.T) {
	t.Parallel()
	proposals := []Proposal{
		{Text: "first", StartChar: 0, EndChar: 100},
		{Text: "near-duplicate", StartChar: 5, EndChar: 100}, // >80% overlap with the first
		{Text: "distinct", StartChar: 500, EndChar: 600},
	}
	kept := dedupeByOverlap(proposals)
	require.Len(t, kept, 2)
	assert.Equal(t, "first", kept[0].Text)
	assert.Equal(t, "distinct", kept[1].Text)
}

func TestAttachPages_MapsOverlappingSpans(t *testing.T) {
	t.Parallel()
	pages := []domain.Page{
		{Number: 1, StartChar: 0, EndChar: 100},
		{Number: 2, StartChar: 100, EndChar: 200},
	}
	proposals := []Proposal{
		{StartChar: 50, EndChar: 150},
	}
	attachPages(proposals, pages)
	assert.Equal(t, []int{1, 2}, proposals[0].Pages)
}

func TestChunk_WindowsOneShortDocument(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":` +
			`"{\"chunks\":[{\"text\":\"hello world\",\"title\":\"Intro\"}]}"}}]}`))
	}))
	defer srv.Close()

	llm := llmclient.New(llmclient.Config{BaseURL: srv.URL, APIKey: "test", Model: "m"})
	c, err := New(llm, 2000, 200)
	require.NoError(t, err)

	proposals, err := c.Chunk(t.Context(), "hello world", nil)
	require.NoError(t, err)
	require.Len(t, proposals, 1)
	assert.Equal(t, "hello world", proposals[0].Text)
	assert.Equal(t, "Intro", proposals[0].Title)
}

func TestChunk_EveryWindowFailingIsDependencyFatal(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"not json"}}]}`))
	}))
	defer srv.Close()

	llm := llmclient.New(llmclient.Config{BaseURL: srv.URL, APIKey: "test", Model: "m"})
	c, err := New(llm, 2000, 200)
	require.NoError(t, err)

	_, err = c.Chunk(t.Context(), "some document text", nil)
	require.Error(t, err)
	assert.Equal(t, apperr.KindDependencyFatal, apperr.KindOf(err))
}

func TestChunk_EmptyDocumentIsValidationError(t *testing.T) {
	t.Parallel()
	llm := llmclient.New(llmclient.Config{Model: "m"})
	c, err := New(llm, 2000, 200)
	require.NoError(t, err)

	_, err = c.Chunk(t.Context(), "", nil)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
