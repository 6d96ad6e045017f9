package vectorindex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/markdave123-py/docqa/internal/core"
	"github.com/markdave123-py/docqa/internal/models"
)

// PgVectorIndex keeps vectors in the document_vectors table of the main database.
type PgVectorIndex struct {
	db *sql.DB
}

func NewPgVectorIndex(db *sql.DB) *PgVectorIndex {
	return &PgVectorIndex{db: db}
}

// EnsureCollection creates the vector table and its HNSW index. Concurrent
// callers are serialised on an advisory lock; an existing table with a
// different dimension is an error.
func (p *PgVectorIndex) EnsureCollection(ctx context.Context, dim int, metric core.Distance) error {
	if dim <= 0 {
		return errors.New("invalid dimension")
	}
	if metric != core.DistanceCosine {
		return fmt.Errorf("unsupported distance %q", metric)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext('docqa_vectors'))`); err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("create extension: %w", err)
	}

	var existing string
	err = tx.QueryRowContext(ctx, `
		SELECT format_type(a.atttypid, a.atttypmod)
		FROM pg_attribute a
		WHERE a.attrelid = to_regclass('document_vectors') AND a.attname = 'embedding'
	`).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("inspect vector table: %w", err)
	case existing != fmt.Sprintf("vector(%d)", dim):
		return fmt.Errorf("document_vectors.embedding is %s, configured dimension is %d", existing, dim)
	}

	stmts := []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS document_vectors (
			id           UUID PRIMARY KEY,
			user_id      TEXT NOT NULL,
			document_id  TEXT NOT NULL,
			file_name    TEXT NOT NULL DEFAULT '',
			content      TEXT NOT NULL,
			chunk_index  INT  NOT NULL,
			total_chunks INT  NOT NULL,
			embedding    vector(%d) NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, dim),
		`CREATE INDEX IF NOT EXISTS idx_document_vectors_owner_doc ON document_vectors (user_id, document_id)`,
		`CREATE INDEX IF NOT EXISTS idx_document_vectors_embedding ON document_vectors USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("create vector table: %w", err)
		}
	}
	return tx.Commit()
}

// Upsert writes the batch in one transaction; it is acknowledged once the commit returns.
func (p *PgVectorIndex) Upsert(ctx context.Context, points []models.IndexedVector) error {
	if len(points) == 0 {
		return nil
	}
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrIndexWriteFailed, err)
	}

	const q = `
		INSERT INTO document_vectors
			(id, user_id, document_id, file_name, content, chunk_index, total_chunks, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			document_id = EXCLUDED.document_id,
			file_name = EXCLUDED.file_name,
			content = EXCLUDED.content,
			chunk_index = EXCLUDED.chunk_index,
			total_chunks = EXCLUDED.total_chunks,
			embedding = EXCLUDED.embedding
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: %w", core.ErrIndexWriteFailed, err)
	}
	defer stmt.Close()

	for i := range points {
		pt := &points[i]
		vec := pgvector.NewVector(pt.Embedding)
		if _, err := stmt.ExecContext(ctx,
			pt.ID, pt.Payload.UserID, pt.Payload.DocumentID, pt.Payload.FileName,
			pt.Payload.Content, pt.Payload.ChunkIndex, pt.Payload.TotalChunks, vec,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%w: %w", core.ErrIndexWriteFailed, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", core.ErrIndexWriteFailed, err)
	}
	return nil
}

// searchQuery materialises the owner's document before ordering, so rows are
// reached through the (user_id, document_id) btree and ranked exactly. An HNSW
// scan applies the filter only to its ef_search candidates and can return
// nothing for a document in a table holding many other owners' vectors.
const searchQuery = `
	WITH scoped AS MATERIALIZED (
		SELECT user_id, document_id, file_name, content, chunk_index, total_chunks,
		       embedding <=> $1 AS distance
		FROM document_vectors
		WHERE user_id = $2 AND document_id = $3
	)
	SELECT user_id, document_id, file_name, content, chunk_index, total_chunks,
	       1 - distance AS score
	FROM scoped
	WHERE 1 - distance >= $4
	ORDER BY distance, chunk_index
	LIMIT $5
`

func (p *PgVectorIndex) Search(ctx context.Context, vec []float32, filter models.VectorFilter, limit int, threshold float32) ([]models.ScoredChunk, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := p.db.QueryContext(ctx, searchQuery, pgvector.NewVector(vec), filter.UserID, filter.DocumentID, float64(threshold), limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var out []models.ScoredChunk
	for rows.Next() {
		var (
			hit   models.ScoredChunk
			score float64
		)
		if err := rows.Scan(
			&hit.Payload.UserID, &hit.Payload.DocumentID, &hit.Payload.FileName, &hit.Payload.Content,
			&hit.Payload.ChunkIndex, &hit.Payload.TotalChunks, &score,
		); err != nil {
			return nil, err
		}
		hit.Score = float32(score)
		out = append(out, hit)
	}
	return out, rows.Err()
}

func (p *PgVectorIndex) DeleteDocument(ctx context.Context, filter models.VectorFilter) error {
	const q = `DELETE FROM document_vectors WHERE user_id = $1 AND document_id = $2`
	if _, err := p.db.ExecContext(ctx, q, filter.UserID, filter.DocumentID); err != nil {
		return fmt.Errorf("%w: %w", core.ErrIndexWriteFailed, err)
	}
	return nil
}

var _ core.VectorIndex = (*PgVectorIndex)(nil)
