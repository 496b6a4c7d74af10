// Package vector implements the VectorStore collaborator on top of Qdrant.
//
// Grounded on the teacher's Qdrant adapter: deterministic point IDs via
// uuid.NewSHA1 for non-UUID logical IDs, with the original ID preserved in
// a payload field so it survives the round trip.
package vector

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"ragservice/internal/apperr"
	"ragservice/internal/domain"
	"ragservice/internal/scope"
)

// payloadOriginalID preserves the logical chunk_id when Qdrant requires a
// synthesized UUID point ID.
const payloadOriginalID = "_original_id"

// Result is one hybrid_search hit.
type Result struct {
	WeaviateUUID string
	Score        float64
	Chunk        domain.Chunk
}

// Store is the Qdrant-backed VectorStore.
type Store struct {
	client     *qdrant.Client
	collection string
	dimension  int
	metric     string
}

// New dials Qdrant over gRPC and ensures the target collection exists.
// dsn may carry an api_key query parameter, e.g. "http://host:6334?api_key=...".
func New(ctx context.Context, dsn, collection string, dimension int, metric string) (*Store, error) {
	if collection == "" {
		return nil, fmt.Errorf("vector store: collection name is required")
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("vector store: parse dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("vector store: invalid port in dsn: %w", err)
	}
	qcfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		qcfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		qcfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(qcfg)
	if err != nil {
		return nil, fmt.Errorf("vector store: create client: %w", err)
	}
	s := &Store{
		client:     client,
		collection: collection,
		dimension:  dimension,
		metric:     strings.ToLower(strings.TrimSpace(metric)),
	}
	if err := s.EnsureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

// EnsureCollection is idempotent; it configures an externally-supplied-vector
// collection (callers always bring their own embedding).
func (s *Store) EnsureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return apperr.Wrap(apperr.KindDependencyTransient, "check collection exists", err)
	}
	if exists {
		return nil
	}
	var distance qdrant.Distance
	switch s.metric {
	case "l2", "euclidean":
		distance = qdrant.Distance_Euclid
	case "ip", "dot":
		distance = qdrant.Distance_Dot
	case "manhattan":
		distance = qdrant.Distance_Manhattan
	default:
		distance = qdrant.Distance_Cosine
	}
	if s.dimension <= 0 {
		return apperr.New(apperr.KindInternal, "vector store requires dimensions > 0")
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimension),
			Distance: distance,
		}),
	})
	if err != nil {
		return apperr.Wrap(apperr.KindDependencyTransient, "create collection", err)
	}
	return nil
}

func pointIDFor(logicalID string) (qdrant.PointId, string) {
	if _, err := uuid.Parse(logicalID); err == nil {
		return *qdrant.NewIDUUID(logicalID), ""
	}
	synth := uuid.NewSHA1(uuid.NameSpaceOID, []byte(logicalID)).String()
	return *qdrant.NewIDUUID(synth), logicalID
}

// Insert stores one chunk's embedding tagged with its ScopeKey.
func (s *Store) Insert(ctx context.Context, chunk domain.Chunk, vec []float32) error {
	pointID, originalID := pointIDFor(chunk.ChunkID)
	payload := chunkPayload(chunk)
	if originalID != "" {
		payload[payloadOriginalID] = originalID
	}
	v := make([]float32, len(vec))
	copy(v, vec)
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Points: []*qdrant.PointStruct{{
			Id:      &pointID,
			Vectors: qdrant.NewVectorsDense(v),
			Payload: qdrant.NewValueMap(payload),
		}},
	})
	if err != nil {
		return apperr.Wrap(apperr.KindDependencyTransient, "upsert point", err)
	}
	return nil
}

// DeleteByDoc removes every chunk belonging to docID.
func (s *Store) DeleteByDoc(ctx context.Context, docID string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("doc_id", docID)},
		}),
	})
	if err != nil {
		return apperr.Wrap(apperr.KindDependencyTransient, "delete by doc", err)
	}
	return nil
}

// GetByIDs fetches chunks by their logical chunk_id, recomputing each
// point's deterministic UUID rather than scanning by payload. Results
// outside vis's visibility set are silently dropped.
func (s *Store) GetByIDs(ctx context.Context, chunkIDs []string, vis scope.Visibility) ([]Result, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}
	ids := make([]*qdrant.PointId, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		pointID, _ := pointIDFor(id)
		ids = append(ids, &pointID)
	}
	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            ids,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyTransient, "get points by id", err)
	}
	out := make([]Result, 0, len(points))
	for _, p := range points {
		chunk, originalID := chunkFromPayload(p.Payload)
		uuidStr := p.Id.GetUuid()
		chunk.ChunkID = uuidStr
		if originalID != "" {
			chunk.ChunkID = originalID
		}
		if !vis.Allows(chunk.ScopeKey) {
			continue
		}
		out = append(out, Result{WeaviateUUID: uuidStr, Chunk: chunk})
	}
	return out, nil
}

// HybridSearch runs a dense nearest-neighbor query and, when alpha<1,
// blends it with a sparse keyword-overlap score computed over the
// returned payload text. Qdrant's gRPC API does not expose a native BM25
// stage, so the sparse half is approximated client-side over the
// over-fetched candidate set — see DESIGN.md for the rationale. alpha=0
// degenerates to pure keyword ranking of the same over-fetched set;
// alpha=1 is pure dense ranking.
func (s *Store) HybridSearch(ctx context.Context, query string, vec []float32, alpha float64, limit int, vis scope.Visibility) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}

	filter := visibilityFilter(vis)
	fetch := limit
	if alpha < 1 {
		fetch = limit * 4
		if fetch < 40 {
			fetch = 40
		}
	}
	lim := uint64(fetch)
	v := make([]float32, len(vec))
	copy(v, vec)
	hits, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQueryDense(v),
		Limit:          &lim,
		Filter:         filter,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyFatal, "hybrid search", err)
	}

	terms := keywordTerms(query)
	results := make([]Result, 0, len(hits))
	maxKeyword := 0.0
	keywordScores := make([]float64, len(hits))
	for i, hit := range hits {
		chunk, originalID := chunkFromPayload(hit.Payload)
		if originalID != "" {
			chunk.ChunkID = originalID
		}
		ks := keywordOverlapScore(terms, chunk.Text)
		keywordScores[i] = ks
		if ks > maxKeyword {
			maxKeyword = ks
		}
	}
	for i, hit := range hits {
		chunk, originalID := chunkFromPayload(hit.Payload)
		dense := float64(hit.Score)
		sparse := 0.0
		if maxKeyword > 0 {
			sparse = keywordScores[i] / maxKeyword
		}
		score := alpha*dense + (1-alpha)*sparse

		uuidStr := hit.Id.GetUuid()
		if uuidStr == "" {
			uuidStr = hit.Id.String()
		}
		chunk.ChunkID = uuidStr
		if originalID != "" {
			chunk.ChunkID = originalID
		}
		results = append(results, Result{WeaviateUUID: uuidStr, Score: score, Chunk: chunk})
	}

	sortResultsDesc(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func visibilityFilter(vis scope.Visibility) *qdrant.Filter {
	keys := vis.Keys()
	if len(keys) == 0 {
		return nil
	}
	should := make([]*qdrant.Condition, 0, len(keys))
	for _, k := range keys {
		must := []*qdrant.Condition{
			qdrant.NewMatch("tenant_id", k.TenantID),
			qdrant.NewMatch("scope", string(k.Scope)),
		}
		if k.WorkspaceID != "" {
			must = append(must, qdrant.NewMatch("workspace_id", k.WorkspaceID))
		}
		if k.PrincipalID != "" {
			must = append(must, qdrant.NewMatch("principal_id", k.PrincipalID))
		}
		should = append(should, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Filter{Filter: &qdrant.Filter{Must: must}},
		})
	}
	return &qdrant.Filter{Should: should}
}

func chunkPayload(c domain.Chunk) map[string]any {
	pages := make([]any, len(c.Pages))
	for i, p := range c.Pages {
		pages[i] = int64(p)
	}
	return map[string]any{
		"doc_id":       c.DocID,
		"tenant_id":    c.ScopeKey.TenantID,
		"scope":        string(c.ScopeKey.Scope),
		"workspace_id": c.ScopeKey.WorkspaceID,
		"principal_id": c.ScopeKey.PrincipalID,
		"start_char":   int64(c.StartChar),
		"end_char":     int64(c.EndChar),
		"pages":        pages,
		"title":        c.Title,
		"section":      c.Section,
		"summary":      c.Summary,
		"why":          c.WhyThisChunk,
		"text":         c.Text,
	}
}

func chunkFromPayload(payload map[string]*qdrant.Value) (domain.Chunk, string) {
	get := func(k string) string {
		if v, ok := payload[k]; ok {
			return v.GetStringValue()
		}
		return ""
	}
	getInt := func(k string) int {
		if v, ok := payload[k]; ok {
			return int(v.GetIntegerValue())
		}
		return 0
	}
	var pages []int
	if v, ok := payload["pages"]; ok {
		for _, item := range v.GetListValue().GetValues() {
			pages = append(pages, int(item.GetIntegerValue()))
		}
	}
	c := domain.Chunk{
		DocID: get("doc_id"),
		ScopeKey: domain.ScopeKey{
			TenantID:    get("tenant_id"),
			Scope:       domain.ScopeLevel(get("scope")),
			WorkspaceID: get("workspace_id"),
			PrincipalID: get("principal_id"),
		},
		StartChar:    getInt("start_char"),
		EndChar:      getInt("end_char"),
		Pages:        pages,
		Title:        get("title"),
		Section:      get("section"),
		Summary:      get("summary"),
		WhyThisChunk: get("why"),
		Text:         get("text"),
	}
	return c, get(payloadOriginalID)
}

func keywordTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	seen := map[string]struct{}{}
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

func keywordOverlapScore(terms []string, text string) float64 {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	matches := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			matches++
		}
	}
	return float64(matches)
}

func sortResultsDesc(r []Result) {
	for i := 1; i < len(r); i++ {
		for j := i; j > 0 && r[j].Score > r[j-1].Score; j-- {
			r[j], r[j-1] = r[j-1], r[j]
		}
	}
}

// Close releases the underlying gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping probes collection reachability for health checks.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return apperr.Wrap(apperr.KindDependencyTransient, "ping qdrant", err)
	}
	return nil
}
