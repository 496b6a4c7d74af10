// Package retrieve implements the hybrid retrieval pipeline: embed the
// query, hybrid-search the vector store, rerank, expand over the graph's
// shared-entity neighborhood, merge, and rerank again.
//
// The teacher's internal/rag/retrieve/fusion.go fuses separate FTS and
// vector candidate sets via Reciprocal Rank Fusion; this pipeline's
// VectorStore already performs that mixing internally behind a single
// hybrid_search call (see internal/store/vector), so the merge step here
// is a plain by-chunk-ID join against the graph-expansion results rather
// than an RRF pass. The general idioms — deterministic sort with
// tie-breakers, map-based ID dedup — carry over.
package retrieve

import (
	"context"
	"sort"

	"ragservice/internal/domain"
	"ragservice/internal/rag/reranker"
	"ragservice/internal/scope"
	"ragservice/internal/store/graph"
	"ragservice/internal/store/vector"
)

// Embedder is the subset of internal/embedder.Client the pipeline needs.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// Pipeline drives the full retrieval algorithm.
type Pipeline struct {
	Embedder Embedder
	Vector   *vector.Store
	Reranker reranker.Reranker
	Graph    graph.Store
}

const (
	minOverFetch  = 20
	minGraphSeeds = 10
	minExpansion  = 10
)

// Retrieve runs the full pipeline for one query under vis's visibility.
func (p *Pipeline) Retrieve(ctx context.Context, req domain.RetrieveRequest, vis scope.Visibility) (domain.RetrieveResponse, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}
	alpha := req.Alpha

	vectors, err := p.Embedder.Embed(ctx, []string{req.Query})
	if err != nil {
		return domain.RetrieveResponse{}, err
	}
	queryVector := vectors[0]

	k1 := limit * 4
	if k1 < minOverFetch {
		k1 = minOverFetch
	}
	hits, err := p.Vector.HybridSearch(ctx, req.Query, queryVector, alpha, k1, vis)
	if err != nil {
		return domain.RetrieveResponse{}, err
	}

	items := make([]domain.RetrievedItem, len(hits))
	for i, h := range hits {
		items[i] = toRetrievedItem(h, "weaviate")
	}
	items, err = p.rerank(ctx, req.Query, items)
	if err != nil {
		return domain.RetrieveResponse{}, err
	}
	sortByRerankScore(items)

	diagnostics := domain.GraphDiagnostics{Enabled: p.Graph.Enabled()}
	if diagnostics.Enabled && len(items) > 0 {
		k2 := minGraphSeeds
		if len(items) < k2 {
			k2 = len(items)
		}
		seeds := make([]string, k2)
		for i := 0; i < k2; i++ {
			seeds[i] = items[i].ChunkID
		}
		diagnostics.SeedChunkIDs = seeds

		kExp := limit * 2
		if kExp < minExpansion {
			kExp = minExpansion
		}
		expansions, err := p.Graph.ExpandByShared(ctx, seeds, vis, kExp)
		if err != nil {
			diagnostics.Error = err.Error()
		} else {
			diagnostics.ExpandedCount = len(expansions)
			items, err = p.mergeExpansions(ctx, items, expansions, vis)
			if err != nil {
				diagnostics.Error = err.Error()
			}
		}
	}

	items, err = p.rerank(ctx, req.Query, items)
	if err != nil {
		return domain.RetrieveResponse{}, err
	}
	sortByRerankScore(items)
	if len(items) > limit {
		items = items[:limit]
	}

	return domain.RetrieveResponse{Results: items, Graph: diagnostics}, nil
}

func (p *Pipeline) rerank(ctx context.Context, query string, items []domain.RetrievedItem) ([]domain.RetrievedItem, error) {
	if len(items) == 0 {
		return items, nil
	}
	candidates := make([]reranker.Candidate, len(items))
	for i, it := range items {
		candidates[i] = reranker.Candidate{ID: it.ChunkID, Text: it.Text}
	}
	scores, err := p.Reranker.Rerank(ctx, query, candidates)
	if err != nil {
		// A reranker failure keeps the hybrid ordering instead of failing retrieval.
		for i := range items {
			items[i].RerankScore = items[i].Score
		}
		return items, nil
	}
	byID := make(map[string]float64, len(scores))
	for _, s := range scores {
		byID[s.ID] = s.Score
	}
	for i := range items {
		items[i].RerankScore = byID[items[i].ChunkID]
	}
	return items, nil
}

// mergeExpansions fetches chunk payloads for expanded-only chunk IDs and
// merges by chunk_id: a chunk already present keeps its hybrid score and
// gains also_from_graph + graph fields; a chunk only reached via
// expansion is appended with source="graph" and a zero hybrid score.
func (p *Pipeline) mergeExpansions(ctx context.Context, items []domain.RetrievedItem, expansions []graph.Expansion, vis scope.Visibility) ([]domain.RetrievedItem, error) {
	byID := make(map[string]int, len(items))
	for i, it := range items {
		byID[it.ChunkID] = i
	}

	var missingIDs []string
	expByID := make(map[string]graph.Expansion, len(expansions))
	for _, e := range expansions {
		expByID[e.ChunkID] = e
		if _, ok := byID[e.ChunkID]; !ok {
			missingIDs = append(missingIDs, e.ChunkID)
		}
	}

	var fetched []vector.Result
	if len(missingIDs) > 0 {
		var err error
		fetched, err = p.Vector.GetByIDs(ctx, missingIDs, vis)
		if err != nil {
			return items, err
		}
	}

	for chunkID, idx := range byID {
		e, ok := expByID[chunkID]
		if !ok {
			continue
		}
		items[idx].AlsoFromGraph = true
		items[idx].GraphSharedEntities = e.SharedEntityCount
		items[idx].GraphEntities = e.EntityNames
	}

	for _, r := range fetched {
		e := expByID[r.Chunk.ChunkID]
		item := toRetrievedItem(r, "graph")
		item.GraphSharedEntities = e.SharedEntityCount
		item.GraphEntities = e.EntityNames
		items = append(items, item)
	}
	return items, nil
}

func toRetrievedItem(h vector.Result, source string) domain.RetrievedItem {
	return domain.RetrievedItem{
		Source:       source,
		WeaviateUUID: h.WeaviateUUID,
		Score:        h.Score,
		ChunkID:      h.Chunk.ChunkID,
		DocID:        h.Chunk.DocID,
		ScopeKey:     h.Chunk.ScopeKey,
		Title:        h.Chunk.Title,
		Section:      h.Chunk.Section,
		Summary:      h.Chunk.Summary,
		Pages:        h.Chunk.Pages,
		Text:         h.Chunk.Text,
	}
}

func sortByRerankScore(items []domain.RetrievedItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].RerankScore != items[j].RerankScore {
			return items[i].RerankScore > items[j].RerankScore
		}
		return items[i].ChunkID < items[j].ChunkID
	})
}
