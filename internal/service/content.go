package service

import (
	"context"

	"github.com/quarrylabs/quarry/internal/domain"
	"github.com/quarrylabs/quarry/internal/telemetry"
)

// ChunkStore defines the repository interface for single-chunk persistence.
type ChunkStore interface {
	Insert(ctx context.Context, chunk *domain.Chunk) error
	Count(ctx context.Context) (int64, error)
}

// AddContentInput is one user-submitted piece of content.
type AddContentInput struct {
	Content string
	Source  string
}

// ContentService validates, embeds, and stores individual pieces of
// user-submitted content, making them immediately searchable.
type ContentService struct {
	embedding EmbeddingClient
	store     ChunkStore
}

func NewContentService(embedding EmbeddingClient, store ChunkStore) *ContentService {
	return &ContentService{
		embedding: embedding,
		store:     store,
	}
}

// AddContent validates the input, generates its embedding, and commits
// exactly one chunk row. All field violations are reported together.
func (s *ContentService) AddContent(ctx context.Context, input AddContentInput) (*domain.Chunk, error) {
	ctx, span := telemetry.StartSpan(ctx, "ContentService.AddContent", telemetry.SpanAttributes{
		Source:    input.Source,
		Operation: "embed",
	})
	defer span.End()

	if err := domain.ValidateChunkInput(input.Content, input.Source); err != nil {
		return nil, err
	}

	embedding, err := s.embedding.EmbedText(ctx, input.Content)
	if err != nil {
		return nil, err
	}

	chunk := &domain.Chunk{
		Content:   input.Content,
		Embedding: embedding,
		Source:    input.Source,
	}
	if err := s.store.Insert(ctx, chunk); err != nil {
		return nil, err
	}

	return chunk, nil
}

// Count reports the total number of stored chunks.
func (s *ContentService) Count(ctx context.Context) (int64, error) {
	return s.store.Count(ctx)
}
