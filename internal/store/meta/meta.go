// Package meta implements the MetaStore collaborator on top of Postgres,
// via pgx.
//
// Grounded on the teacher's raw-SQL-over-pgxpool idiom: table creation in
// the constructor and parameterized $1,$2,... placeholders.
package meta

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ragservice/internal/apperr"
	"ragservice/internal/domain"
	"ragservice/internal/scope"
)

// Store is the Postgres-backed MetaStore.
type Store struct {
	pool *pgxpool.Pool
}

// New opens a pgxpool against dsn and ensures the documents table exists.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyFatal, "open postgres pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apperr.Wrap(apperr.KindDependencyTransient, "ping postgres", err)
	}
	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS documents (
  doc_id TEXT PRIMARY KEY,
  tenant_id TEXT NOT NULL,
  scope TEXT NOT NULL,
  workspace_id TEXT NOT NULL DEFAULT '',
  principal_id TEXT NOT NULL DEFAULT '',
  filename TEXT NOT NULL,
  content_type TEXT NOT NULL DEFAULT '',
  storage_path TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL,
  stage TEXT NOT NULL,
  progress INT NOT NULL DEFAULT 0,
  error_message TEXT NOT NULL DEFAULT '',
  chunk_count INT NOT NULL DEFAULT 0,
  entity_count INT NOT NULL DEFAULT 0,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`)
	if err != nil {
		return apperr.Wrap(apperr.KindDependencyFatal, "create documents table", err)
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS documents_scope ON documents(tenant_id, scope, workspace_id, principal_id)`)
	if err != nil {
		return apperr.Wrap(apperr.KindDependencyFatal, "create documents scope index", err)
	}
	return nil
}

// InsertDocument creates the initial queued record for a newly uploaded file.
func (s *Store) InsertDocument(ctx context.Context, doc domain.Document) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO documents (doc_id, tenant_id, scope, workspace_id, principal_id, filename, content_type,
	storage_path, status, stage, progress, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`, doc.DocID, doc.ScopeKey.TenantID, string(doc.ScopeKey.Scope), doc.ScopeKey.WorkspaceID, doc.ScopeKey.PrincipalID,
		doc.Filename, doc.ContentType, doc.StoragePath, string(doc.Status), string(doc.Stage), doc.Progress,
		doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return apperr.Wrap(apperr.KindDependencyTransient, "insert document", err)
	}
	return nil
}

// GetDocument fetches one document by ID, enforcing vis at the row level:
// a document outside vis's visibility set is reported as not found.
func (s *Store) GetDocument(ctx context.Context, docID string, vis scope.Visibility) (domain.Document, error) {
	row := s.pool.QueryRow(ctx, `
SELECT doc_id, tenant_id, scope, workspace_id, principal_id, filename, content_type, storage_path,
	status, stage, progress, error_message, chunk_count, entity_count, created_at, updated_at
FROM documents WHERE doc_id = $1
`, docID)
	doc, err := scanDocument(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Document{}, apperr.New(apperr.KindNotFound, "document not found")
		}
		return domain.Document{}, apperr.Wrap(apperr.KindDependencyTransient, "get document", err)
	}
	if !vis.Allows(doc.ScopeKey) {
		return domain.Document{}, apperr.New(apperr.KindNotFound, "document not found")
	}
	return doc, nil
}

// GetDocumentAdmin fetches one document by ID without a visibility check.
// It is for the ingestion worker's own internal use, never exposed to a
// tenant-facing handler.
func (s *Store) GetDocumentAdmin(ctx context.Context, docID string) (domain.Document, error) {
	row := s.pool.QueryRow(ctx, `
SELECT doc_id, tenant_id, scope, workspace_id, principal_id, filename, content_type, storage_path,
	status, stage, progress, error_message, chunk_count, entity_count, created_at, updated_at
FROM documents WHERE doc_id = $1
`, docID)
	doc, err := scanDocument(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Document{}, apperr.New(apperr.KindNotFound, "document not found")
		}
		return domain.Document{}, apperr.Wrap(apperr.KindDependencyTransient, "get document", err)
	}
	return doc, nil
}

// ListDocuments returns documents visible to vis, optionally filtered by status.
func (s *Store) ListDocuments(ctx context.Context, vis scope.Visibility, statusFilter string) ([]domain.Document, error) {
	clauses, args := visibilityWhere(vis, 1)
	query := `
SELECT doc_id, tenant_id, scope, workspace_id, principal_id, filename, content_type, storage_path,
	status, stage, progress, error_message, chunk_count, entity_count, created_at, updated_at
FROM documents WHERE ` + clauses
	if statusFilter != "" {
		args = append(args, statusFilter)
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyTransient, "list documents", err)
	}
	defer rows.Close()

	out := []domain.Document{}
	for rows.Next() {
		doc, err := scanDocumentRows(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindDependencyTransient, "scan document row", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// CountsByStatus returns the number of documents visible to vis per status.
func (s *Store) CountsByStatus(ctx context.Context, vis scope.Visibility) (map[domain.Status]int, error) {
	clauses, args := visibilityWhere(vis, 1)
	rows, err := s.pool.Query(ctx, `
SELECT status, count(*) FROM documents WHERE `+clauses+` GROUP BY status
`, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyTransient, "counts by status", err)
	}
	defer rows.Close()

	out := map[domain.Status]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, apperr.Wrap(apperr.KindDependencyTransient, "scan status count", err)
		}
		out[domain.Status(status)] = count
	}
	return out, rows.Err()
}

// DocumentUpdate carries the mutable subset of fields a stage transition
// touches; zero-value fields are left unchanged except where noted.
type DocumentUpdate struct {
	Status       *domain.Status
	Stage        *domain.Stage
	Progress     *int
	ErrorMessage *string
	ChunkCount   *int
	EntityCount  *int
}

// UpdateDocument applies a partial update to one document's row.
func (s *Store) UpdateDocument(ctx context.Context, docID string, upd DocumentUpdate) error {
	sets := []string{"updated_at = now()"}
	args := []any{}
	add := func(col string, val any) {
		args = append(args, val)
		sets = append(sets, col+" = $"+strconv.Itoa(len(args)))
	}
	if upd.Status != nil {
		add("status", string(*upd.Status))
	}
	if upd.Stage != nil {
		add("stage", string(*upd.Stage))
	}
	if upd.Progress != nil {
		add("progress", *upd.Progress)
	}
	if upd.ErrorMessage != nil {
		add("error_message", *upd.ErrorMessage)
	}
	if upd.ChunkCount != nil {
		add("chunk_count", *upd.ChunkCount)
	}
	if upd.EntityCount != nil {
		add("entity_count", *upd.EntityCount)
	}
	args = append(args, docID)
	query := "UPDATE documents SET " + strings.Join(sets, ", ") + " WHERE doc_id = $" + strconv.Itoa(len(args))
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return apperr.Wrap(apperr.KindDependencyTransient, "update document", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.KindNotFound, "document not found")
	}
	return nil
}

// DeleteTenantDocuments removes every document row for one tenant. It backs
// the admin tenant-reset operation; the caller is responsible for also
// clearing that tenant's vector points and graph nodes.
func (s *Store) DeleteTenantDocuments(ctx context.Context, tenantID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE tenant_id = $1`, tenantID); err != nil {
		return apperr.Wrap(apperr.KindDependencyTransient, "delete tenant documents", err)
	}
	return nil
}

// DeleteAllDocuments truncates the documents table. It backs the admin
// global-reset operation.
func (s *Store) DeleteAllDocuments(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE TABLE documents`); err != nil {
		return apperr.Wrap(apperr.KindDependencyTransient, "truncate documents", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping probes the connection pool for health checks.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return apperr.Wrap(apperr.KindDependencyTransient, "ping postgres", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row pgx.Row) (domain.Document, error) {
	return scanDocumentRows(row)
}

func scanDocumentRows(row rowScanner) (domain.Document, error) {
	var (
		doc                       domain.Document
		scopeLevel, status, stage string
		createdAt, updatedAt      time.Time
	)
	err := row.Scan(
		&doc.DocID, &doc.ScopeKey.TenantID, &scopeLevel, &doc.ScopeKey.WorkspaceID, &doc.ScopeKey.PrincipalID,
		&doc.Filename, &doc.ContentType, &doc.StoragePath,
		&status, &stage, &doc.Progress, &doc.ErrorMessage, &doc.ChunkCount, &doc.EntityCount,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return domain.Document{}, err
	}
	doc.ScopeKey.Scope = domain.ScopeLevel(scopeLevel)
	doc.Status = domain.Status(status)
	doc.Stage = domain.Stage(stage)
	doc.CreatedAt = createdAt
	doc.UpdatedAt = updatedAt
	return doc, nil
}

// visibilityWhere builds a "(tenant_id=$1 AND scope=$2 AND ...) OR (...)"
// clause covering every ScopeKey in vis's visibility set, starting
// parameter numbering at argStart.
func visibilityWhere(vis scope.Visibility, argStart int) (string, []any) {
	keys := vis.Keys()
	args := []any{}
	n := argStart - 1
	next := func(v any) string {
		n++
		args = append(args, v)
		return "$" + strconv.Itoa(n)
	}
	clauses := make([]string, 0, len(keys))
	for _, k := range keys {
		clause := "(tenant_id = " + next(k.TenantID) + " AND scope = " + next(string(k.Scope))
		if k.WorkspaceID != "" {
			clause += " AND workspace_id = " + next(k.WorkspaceID)
		}
		if k.PrincipalID != "" {
			clause += " AND principal_id = " + next(k.PrincipalID)
		}
		clause += ")"
		clauses = append(clauses, clause)
	}
	return "(" + strings.Join(clauses, " OR ") + ")", args
}
