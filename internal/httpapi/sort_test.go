package httpapi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragservice/internal/domain"
)

func TestSortDocuments_ByFilenameAscAndDesc(t *testing.T) {
	t.Parallel()
	docs := []domain.Document{
		{DocID: "1", Filename: "b.txt"},
		{DocID: "2", Filename: "a.txt"},
		{DocID: "3", Filename: "c.txt"},
	}
	sorted := sortDocuments(append([]domain.Document{}, docs...), "filename", "asc")
	require.Len(t, sorted, 3)
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, []string{sorted[0].Filename, sorted[1].Filename, sorted[2].Filename})

	desc := sortDocuments(append([]domain.Document{}, docs...), "filename", "desc")
	assert.Equal(t, []string{"c.txt", "b.txt", "a.txt"}, []string{desc[0].Filename, desc[1].Filename, desc[2].Filename})
}

func TestSortDocuments_DefaultsToCreatedAt(t *testing.T) {
	t.Parallel()
	now := time.Now()
	docs := []domain.Document{
		{DocID: "later", CreatedAt: now.Add(time.Hour)},
		{DocID: "earlier", CreatedAt: now},
	}
	sorted := sortDocuments(docs, "unknown-column", "asc")
	assert.Equal(t, "earlier", sorted[0].DocID)
	assert.Equal(t, "later", sorted[1].DocID)
}

func TestSortDocuments_ByProgressAndChunkAndEntityCount(t *testing.T) {
	t.Parallel()
	docs := []domain.Document{
		{DocID: "a", Progress: 80, ChunkCount: 5, EntityCount: 1},
		{DocID: "b", Progress: 20, ChunkCount: 1, EntityCount: 9},
	}
	byProgress := sortDocuments(append([]domain.Document{}, docs...), "progress", "asc")
	assert.Equal(t, "b", byProgress[0].DocID)

	byChunks := sortDocuments(append([]domain.Document{}, docs...), "chunk_count", "asc")
	assert.Equal(t, "b", byChunks[0].DocID)

	byEntities := sortDocuments(append([]domain.Document{}, docs...), "entity_count", "asc")
	assert.Equal(t, "a", byEntities[0].DocID)
}
