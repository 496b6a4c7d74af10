// Package graph implements the GraphStore collaborator on top of Neo4j.
//
// Grounded on the pack's Neo4j adapter: MERGE-based idempotent upserts,
// one session per call, ExecuteWrite for batched transactional writes, and
// a sanitizeRelType-style guard since Cypher relationship types cannot be
// parameterized.
package graph

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"ragservice/internal/apperr"
	"ragservice/internal/domain"
	"ragservice/internal/scope"
)

// mentionsRel is the single relationship type linking chunks to entities.
const mentionsRel = "MENTIONS"

// Expansion is one chunk reached via shared-entity graph expansion,
// together with how many seed-shared entities it mentions and their names.
type Expansion struct {
	ChunkID           string
	SharedEntityCount int
	EntityNames       []string
}

// Store is the GraphStore collaborator.
type Store interface {
	LinkChunkEntities(ctx context.Context, chunk domain.Chunk, entities []domain.Entity) error
	ExpandByShared(ctx context.Context, seedChunkIDs []string, vis scope.Visibility, limit int) ([]Expansion, error)
	TopEntities(ctx context.Context, vis scope.Visibility, q, entityType string, limit int) ([]domain.Entity, error)
	ChunksForEntity(ctx context.Context, entityID string, vis scope.Visibility, limit int) ([]string, error)
	EntitiesForDocument(ctx context.Context, docID string) ([]domain.Entity, error)
	Close(ctx context.Context) error
	// Enabled reports whether this Store can participate in graph
	// expansion, for surfacing in retrieval diagnostics.
	Enabled() bool
	// Ping probes connectivity for health checks.
	Ping(ctx context.Context) error
}

// Neo4jStore is the live Neo4j-backed Store.
type Neo4jStore struct {
	driver neo4j.DriverWithContext
}

// New dials Neo4j with basic auth and verifies connectivity.
func New(ctx context.Context, uri, username, password string) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyFatal, "create neo4j driver", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, apperr.Wrap(apperr.KindDependencyTransient, "verify neo4j connectivity", err)
	}
	return &Neo4jStore{driver: driver}, nil
}

// LinkChunkEntities MERGEs the chunk node, each entity node, and a MENTIONS
// edge between them, all in one transaction so a partial write can never
// leave an entity dangling without its chunk.
func (s *Neo4jStore) LinkChunkEntities(ctx context.Context, chunk domain.Chunk, entities []domain.Entity) error {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx,
			`MERGE (c:Chunk {id: $id})
			 SET c.doc_id = $doc_id, c.tenant_id = $tenant_id, c.scope = $scope,
			     c.workspace_id = $workspace_id, c.principal_id = $principal_id`,
			map[string]any{
				"id":           chunk.ChunkID,
				"doc_id":       chunk.DocID,
				"tenant_id":    chunk.ScopeKey.TenantID,
				"scope":        string(chunk.ScopeKey.Scope),
				"workspace_id": chunk.ScopeKey.WorkspaceID,
				"principal_id": chunk.ScopeKey.PrincipalID,
			})
		if err != nil {
			return nil, err
		}
		for _, e := range entities {
			_, err := tx.Run(ctx,
				`MERGE (e:Entity {id: $id}) SET e.name = $name, e.type = $type, e.tenant_id = $tenant_id`,
				map[string]any{"id": e.EntityID, "name": e.Name, "type": e.Type, "tenant_id": chunk.ScopeKey.TenantID})
			if err != nil {
				return nil, err
			}
			cypher := fmt.Sprintf(
				`MATCH (c:Chunk {id: $chunk_id}), (e:Entity {id: $entity_id})
				 MERGE (c)-[r:%s]->(e)`, mentionsRel)
			if _, err := tx.Run(ctx, cypher, map[string]any{
				"chunk_id": chunk.ChunkID, "entity_id": e.EntityID,
			}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return apperr.Wrap(apperr.KindDependencyTransient, "link chunk entities", err)
	}
	return nil
}

// ExpandByShared returns chunks (excluding the seeds themselves) that
// mention at least one entity also mentioned by one of seedChunkIDs and
// that lie within vis's visibility, along with how many shared entities
// each has and their names.
func (s *Neo4jStore) ExpandByShared(ctx context.Context, seedChunkIDs []string, vis scope.Visibility, limit int) ([]Expansion, error) {
	if len(seedChunkIDs) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	visClause, visParams := visibilityWhere("other", vis)
	cypher := fmt.Sprintf(
		`MATCH (seed:Chunk)-[:%[1]s]->(e:Entity)<-[:%[1]s]-(other:Chunk)
		 WHERE seed.id IN $seed_ids AND NOT other.id IN $seed_ids
		   AND %[2]s
		 RETURN other.id AS id, collect(DISTINCT e.name) AS entity_names, count(DISTINCT e) AS shared
		 ORDER BY shared DESC
		 LIMIT $limit`, mentionsRel, visClause)
	params := map[string]any{
		"seed_ids": seedChunkIDs,
		"limit":    int64(limit),
	}
	for k, v := range visParams {
		params[k] = v
	}
	result, err := sess.Run(ctx, cypher, params)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyTransient, "expand by shared entities", err)
	}
	var out []Expansion
	for result.Next(ctx) {
		rec := result.Record()
		id, _, err := neo4j.GetRecordValue[string](rec, "id")
		if err != nil {
			continue
		}
		shared, _, _ := neo4j.GetRecordValue[int64](rec, "shared")
		var names []string
		if raw, ok := rec.Get("entity_names"); ok {
			if list, ok := raw.([]any); ok {
				for _, n := range list {
					if s, ok := n.(string); ok {
						names = append(names, s)
					}
				}
			}
		}
		out = append(out, Expansion{ChunkID: id, SharedEntityCount: int(shared), EntityNames: names})
	}
	return out, nil
}

// TopEntities returns the entities most frequently mentioned by chunks
// within vis's visibility, ordered by mention count descending,
// optionally filtered by a case-insensitive name substring and/or exact
// type. Filtering on the mentioning chunk (rather than the entity itself)
// ensures a caller never learns of an entity whose only mentions come
// from chunks outside their visibility.
func (s *Neo4jStore) TopEntities(ctx context.Context, vis scope.Visibility, q, entityType string, limit int) ([]domain.Entity, error) {
	if limit <= 0 {
		limit = 50
	}
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	visClause, visParams := visibilityWhere("c", vis)
	cypher := fmt.Sprintf(
		`MATCH (c:Chunk)-[:%s]->(e:Entity)
		 WHERE %s
		   AND ($q = '' OR toLower(e.name) CONTAINS toLower($q))
		   AND ($entity_type = '' OR e.type = $entity_type)
		 RETURN e.id AS id, e.name AS name, e.type AS type, count(*) AS mentions
		 ORDER BY mentions DESC
		 LIMIT $limit`, mentionsRel, visClause)
	params := map[string]any{"q": q, "entity_type": entityType, "limit": int64(limit)}
	for k, v := range visParams {
		params[k] = v
	}
	result, err := sess.Run(ctx, cypher, params)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyTransient, "top entities", err)
	}
	return collectEntities(ctx, result)
}

// ChunksForEntity returns IDs of chunks within vis's visibility that
// mention entityID.
func (s *Neo4jStore) ChunksForEntity(ctx context.Context, entityID string, vis scope.Visibility, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	visClause, visParams := visibilityWhere("c", vis)
	cypher := fmt.Sprintf(
		`MATCH (c:Chunk)-[:%s]->(e:Entity {id: $entity_id})
		 WHERE %s
		 RETURN c.id AS id
		 LIMIT $limit`, mentionsRel, visClause)
	params := map[string]any{"entity_id": entityID, "limit": int64(limit)}
	for k, v := range visParams {
		params[k] = v
	}
	result, err := sess.Run(ctx, cypher, params)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyTransient, "chunks for entity", err)
	}
	var ids []string
	for result.Next(ctx) {
		id, _, err := neo4j.GetRecordValue[string](result.Record(), "id")
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// EntitiesForDocument returns every distinct entity mentioned by docID.
func (s *Neo4jStore) EntitiesForDocument(ctx context.Context, docID string) ([]domain.Entity, error) {
	sess := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := fmt.Sprintf(
		`MATCH (c:Chunk {doc_id: $doc_id})-[:%s]->(e:Entity)
		 RETURN DISTINCT e.id AS id, e.name AS name, e.type AS type`, mentionsRel)
	result, err := sess.Run(ctx, cypher, map[string]any{"doc_id": docID})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyTransient, "entities for document", err)
	}
	return collectEntities(ctx, result)
}

// visibilityWhere builds a "(alias.tenant_id = $p0_tenant AND alias.scope
// = $p0_scope AND ...) OR (...)" clause covering every ScopeKey in vis's
// visibility set, matching properties on the node bound to alias.
// Mirrors internal/store/meta's SQL visibilityWhere and internal/store/
// vector's visibilityFilter, adapted to named Cypher parameters since
// Neo4j has no positional placeholders.
func visibilityWhere(alias string, vis scope.Visibility) (string, map[string]any) {
	keys := vis.Keys()
	params := map[string]any{}
	clauses := make([]string, 0, len(keys))
	for i, k := range keys {
		prefix := "vis" + strconv.Itoa(i)
		tenantParam, scopeParam := prefix+"_tenant", prefix+"_scope"
		params[tenantParam] = k.TenantID
		params[scopeParam] = string(k.Scope)
		clause := fmt.Sprintf("(%s.tenant_id = $%s AND %s.scope = $%s", alias, tenantParam, alias, scopeParam)
		if k.WorkspaceID != "" {
			wsParam := prefix + "_ws"
			params[wsParam] = k.WorkspaceID
			clause += fmt.Sprintf(" AND %s.workspace_id = $%s", alias, wsParam)
		}
		if k.PrincipalID != "" {
			principalParam := prefix + "_principal"
			params[principalParam] = k.PrincipalID
			clause += fmt.Sprintf(" AND %s.principal_id = $%s", alias, principalParam)
		}
		clause += ")"
		clauses = append(clauses, clause)
	}
	return "(" + strings.Join(clauses, " OR ") + ")", params
}

func collectEntities(ctx context.Context, result neo4j.ResultWithContext) ([]domain.Entity, error) {
	var out []domain.Entity
	for result.Next(ctx) {
		rec := result.Record()
		id, _, _ := neo4j.GetRecordValue[string](rec, "id")
		name, _, _ := neo4j.GetRecordValue[string](rec, "name")
		typ, _, _ := neo4j.GetRecordValue[string](rec, "type")
		out = append(out, domain.Entity{EntityID: id, Name: name, Type: typ})
	}
	return out, nil
}

// Close shuts down the driver's connection pool.
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// Enabled always reports true for a live Neo4j connection.
func (s *Neo4jStore) Enabled() bool { return true }

// Ping verifies connectivity for health checks.
func (s *Neo4jStore) Ping(ctx context.Context) error {
	if err := s.driver.VerifyConnectivity(ctx); err != nil {
		return apperr.Wrap(apperr.KindDependencyTransient, "ping neo4j", err)
	}
	return nil
}

// NoopStore is used when GRAPH_ENABLED=0 or Neo4j is unreachable at
// startup: graph expansion silently contributes nothing rather than
// failing ingestion or retrieval.
type NoopStore struct{}

func (NoopStore) LinkChunkEntities(ctx context.Context, chunk domain.Chunk, entities []domain.Entity) error {
	return nil
}

func (NoopStore) ExpandByShared(ctx context.Context, seedChunkIDs []string, vis scope.Visibility, limit int) ([]Expansion, error) {
	return nil, nil
}

func (NoopStore) TopEntities(ctx context.Context, vis scope.Visibility, q, entityType string, limit int) ([]domain.Entity, error) {
	return nil, nil
}

func (NoopStore) ChunksForEntity(ctx context.Context, entityID string, vis scope.Visibility, limit int) ([]string, error) {
	return nil, nil
}

func (NoopStore) EntitiesForDocument(ctx context.Context, docID string) ([]domain.Entity, error) {
	return nil, nil
}

func (NoopStore) Close(ctx context.Context) error { return nil }

// Enabled always reports false for NoopStore.
func (NoopStore) Enabled() bool { return false }

// Ping always succeeds for NoopStore: a disabled graph store is not a
// degraded dependency.
func (NoopStore) Ping(ctx context.Context) error { return nil }

var (
	_ Store = (*Neo4jStore)(nil)
	_ Store = NoopStore{}
)
