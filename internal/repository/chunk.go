package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/quarrylabs/quarry/internal/domain"
)

// pgUndefinedTable is the SQLSTATE Postgres reports when the chunks table
// has not been created; it marks a setup problem, not a transient failure.
const pgUndefinedTable = "42P01"

// ChunkRepository handles persistence and similarity search over chunks.
type ChunkRepository struct {
	pool *pgxpool.Pool
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{pool: pool}
}

// SearchMatch is one nearest-neighbor row with its cosine distance.
type SearchMatch struct {
	ID       int64
	Content  string
	Source   string
	Distance float32
}

// Insert persists one chunk and fills in its assigned ID and timestamp.
// Vectors of the wrong dimensionality are rejected before touching the
// store so a model mismatch can never corrupt the index.
func (r *ChunkRepository) Insert(ctx context.Context, chunk *domain.Chunk) error {
	if len(chunk.Embedding) != domain.EmbeddingDimensions {
		return domain.ErrWrongDimensions
	}

	err := r.pool.QueryRow(ctx,
		`INSERT INTO chunks (content, embedding, source)
		 VALUES ($1, $2, $3)
		 RETURNING id, added_at`,
		chunk.Content,
		pgvector.NewVector(chunk.Embedding),
		chunk.Source,
	).Scan(&chunk.ID, &chunk.AddedAt)
	if err != nil {
		return mapStorageError(err)
	}

	return nil
}

// InsertBatch persists chunks one by one in slice order. There is no
// transaction across the batch: a failure part-way leaves earlier rows
// committed, which ingestion documents as accepted behavior.
func (r *ChunkRepository) InsertBatch(ctx context.Context, chunks []*domain.Chunk) error {
	for _, chunk := range chunks {
		if err := r.Insert(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

// Search returns the limit nearest chunks to the query embedding in
// ascending cosine distance order. An empty store yields an empty slice.
func (r *ChunkRepository) Search(ctx context.Context, embedding []float32, limit int) ([]*SearchMatch, error) {
	if len(embedding) != domain.EmbeddingDimensions {
		return nil, domain.ErrWrongDimensions
	}
	if limit <= 0 {
		limit = 5
	}

	vec := pgvector.NewVector(embedding)

	rows, err := r.pool.Query(ctx,
		`SELECT id, content, source, embedding <=> $1 AS distance
		 FROM chunks
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		vec, limit,
	)
	if err != nil {
		return nil, mapStorageError(err)
	}
	defer rows.Close()

	matches := make([]*SearchMatch, 0, limit)
	for rows.Next() {
		var m SearchMatch
		if err := rows.Scan(&m.ID, &m.Content, &m.Source, &m.Distance); err != nil {
			return nil, err
		}
		matches = append(matches, &m)
	}

	return matches, rows.Err()
}

// Count returns the total number of stored chunks.
func (r *ChunkRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM chunks`).Scan(&count)
	if err != nil {
		return 0, mapStorageError(err)
	}
	return count, nil
}

func mapStorageError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable {
		return domain.NewDomainErrorWithCause(domain.ErrCodeSchemaMissing, "chunks table does not exist, run migrations", err)
	}
	return err
}
