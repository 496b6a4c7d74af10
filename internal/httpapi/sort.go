package httpapi

import (
	"sort"

	"ragservice/internal/domain"
)

func sortDocuments(docs []domain.Document, column, order string) []domain.Document {
	less := func(i, j int) bool {
		a, b := docs[i], docs[j]
		switch column {
		case "updated_at":
			return a.UpdatedAt.Before(b.UpdatedAt)
		case "filename":
			return a.Filename < b.Filename
		case "status":
			return a.Status < b.Status
		case "stage":
			return a.Stage < b.Stage
		case "progress":
			return a.Progress < b.Progress
		case "chunk_count":
			return a.ChunkCount < b.ChunkCount
		case "entity_count":
			return a.EntityCount < b.EntityCount
		default: // created_at
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}
	if order == "desc" {
		inner := less
		less = func(i, j int) bool { return inner(j, i) }
	}
	sort.SliceStable(docs, less)
	return docs
}
