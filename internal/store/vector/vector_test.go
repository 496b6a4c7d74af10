package vector

import (
	"testing"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragservice/internal/domain"
)

func TestKeywordTerms_DedupesAndLowercases(t *testing.T) {
	t.Parallel()
	terms := keywordTerms("Capital OF France of")
	assert.Equal(t, []string{"capital", "of", "france"}, terms)
}

func TestKeywordOverlapScore(t *testing.T) {
	t.Parallel()
	terms := keywordTerms("capital of france")
	assert.Equal(t, 3.0, keywordOverlapScore(terms, "Paris is the capital of France"))
	assert.Equal(t, 0.0, keywordOverlapScore(terms, "completely unrelated text"))
	assert.Equal(t, 0.0, keywordOverlapScore(nil, "anything"))
}

func TestSortResultsDesc(t *testing.T) {
	t.Parallel()
	results := []Result{
		{WeaviateUUID: "low", Score: 0.1},
		{WeaviateUUID: "high", Score: 0.9},
		{WeaviateUUID: "mid", Score: 0.5},
	}
	sortResultsDesc(results)
	assert.Equal(t, []string{"high", "mid", "low"}, []string{results[0].WeaviateUUID, results[1].WeaviateUUID, results[2].WeaviateUUID})
}

func TestPointIDFor_PreservesRealUUIDs(t *testing.T) {
	t.Parallel()
	id := uuid.NewString()
	pointID, original := pointIDFor(id)
	assert.Equal(t, id, pointID.GetUuid())
	assert.Empty(t, original, "a genuine UUID chunk_id needs no original-id payload fallback")
}

func TestPointIDFor_SynthesizesDeterministicIDForNonUUID(t *testing.T) {
	t.Parallel()
	first, originalFirst := pointIDFor("chunk-42")
	second, originalSecond := pointIDFor("chunk-42")
	assert.Equal(t, first.GetUuid(), second.GetUuid(), "the same logical id must always synthesize the same point id")
	assert.Equal(t, "chunk-42", originalFirst)
	assert.Equal(t, "chunk-42", originalSecond)

	other, _ := pointIDFor("chunk-43")
	assert.NotEqual(t, first.GetUuid(), other.GetUuid())
}

func TestChunkPayloadRoundTrip(t *testing.T) {
	t.Parallel()
	chunk := domain.Chunk{
		DocID: "doc-1",
		ScopeKey: domain.ScopeKey{
			TenantID: "acme", Scope: domain.ScopeWorkspace, WorkspaceID: "ws-1",
		},
		StartChar: 10,
		EndChar:   200,
		Pages:     []int{1, 2},
		Title:     "Intro",
		Section:   "1.1",
		Summary:   "summary text",
		Text:      "the capital of France is Paris",
	}

	payload := chunkPayload(chunk)
	qvalues := qdrant.NewValueMap(payload)

	roundTripped, originalID := chunkFromPayload(qvalues)
	require.Empty(t, originalID, "chunkPayload never stores _original_id itself")
	assert.Equal(t, chunk.DocID, roundTripped.DocID)
	assert.Equal(t, chunk.ScopeKey, roundTripped.ScopeKey)
	assert.Equal(t, chunk.StartChar, roundTripped.StartChar)
	assert.Equal(t, chunk.EndChar, roundTripped.EndChar)
	assert.Equal(t, chunk.Pages, roundTripped.Pages)
	assert.Equal(t, chunk.Title, roundTripped.Title)
	assert.Equal(t, chunk.Text, roundTripped.Text)
}
