package service

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/quarrylabs/quarry/internal/domain"
)

const DefaultEmbedBatchSize = 50

// EmbeddingClient defines the provider interface for generating embeddings.
// EmbedBatch must return one vector per input, in input order.
type EmbeddingClient interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ChunkWriter defines the repository interface for persisting chunks.
type ChunkWriter interface {
	InsertBatch(ctx context.Context, chunks []*domain.Chunk) error
}

// DocumentFetcher retrieves a raw document from a remote source.
type DocumentFetcher interface {
	FetchDocument(ctx context.Context, key string) ([]byte, error)
}

// IngestService splits documents into chunks, embeds them in batches, and
// writes the resulting rows.
type IngestService struct {
	embedding EmbeddingClient
	writer    ChunkWriter
	fetcher   DocumentFetcher
	chunkCfg  ChunkConfig
	batchSize int
}

// NewIngestService creates an IngestService with default chunking and batching.
func NewIngestService(embedding EmbeddingClient, writer ChunkWriter) *IngestService {
	return &IngestService{
		embedding: embedding,
		writer:    writer,
		chunkCfg:  DefaultChunkConfig(),
		batchSize: DefaultEmbedBatchSize,
	}
}

// WithChunkConfig overrides the chunking configuration.
func (s *IngestService) WithChunkConfig(cfg ChunkConfig) *IngestService {
	if cfg.MaxChars > 0 {
		s.chunkCfg = cfg
	}
	return s
}

// WithBatchSize overrides the embedding batch size.
func (s *IngestService) WithBatchSize(size int) *IngestService {
	if size > 0 {
		s.batchSize = size
	}
	return s
}

// WithFetcher attaches a remote document source for IngestRemote.
func (s *IngestService) WithFetcher(fetcher DocumentFetcher) *IngestService {
	s.fetcher = fetcher
	return s
}

// IngestFile reads a UTF-8 text file and ingests its contents under the
// file's name as the source label. An unreadable file is fatal to the run.
func (s *IngestService) IngestFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read document %s: %w", path, err)
	}
	return s.IngestText(ctx, string(data), path)
}

// IngestRemote fetches a document from the configured remote source and
// ingests it under its object key as the source label.
func (s *IngestService) IngestRemote(ctx context.Context, key string) (int, error) {
	if s.fetcher == nil {
		return 0, domain.NewDomainError(domain.ErrCodeNotConfigured, "remote document source not configured: S3_ENDPOINT required")
	}
	data, err := s.fetcher.FetchDocument(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch document %s: %w", key, err)
	}
	return s.IngestText(ctx, string(data), key)
}

// IngestText chunks raw text and persists each chunk with its embedding,
// returning the number of chunks stored. Batches are embedded strictly in
// document order and each batch's vectors are zipped back to its inputs by
// position. A failed batch aborts the run; chunks from earlier batches stay
// persisted, so partial ingestion is possible and reported, not masked.
func (s *IngestService) IngestText(ctx context.Context, text, source string) (int, error) {
	pieces := SplitDocument(text, s.chunkCfg)
	if len(pieces) == 0 {
		return 0, nil
	}

	stored := 0
	for start := 0; start < len(pieces); start += s.batchSize {
		end := start + s.batchSize
		if end > len(pieces) {
			end = len(pieces)
		}
		batch := pieces[start:end]

		vectors, err := s.embedding.EmbedBatch(ctx, batch)
		if err != nil {
			return stored, fmt.Errorf("failed to embed batch starting at chunk %d: %w", start, err)
		}
		if len(vectors) != len(batch) {
			return stored, fmt.Errorf("embedding batch returned %d vectors for %d inputs", len(vectors), len(batch))
		}

		chunks := make([]*domain.Chunk, len(batch))
		for i, content := range batch {
			chunks[i] = &domain.Chunk{
				Content:   content,
				Embedding: vectors[i],
				Source:    source,
			}
		}

		if err := s.writer.InsertBatch(ctx, chunks); err != nil {
			return stored, fmt.Errorf("failed to store batch starting at chunk %d: %w", start, err)
		}

		stored += len(batch)
		log.Printf("ingest: stored %d/%d chunks from %s", stored, len(pieces), source)
	}

	return stored, nil
}
