package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/quarrylabs/quarry/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockChunkStore is a mock implementation of ChunkStore
type MockChunkStore struct {
	mock.Mock
}

func (m *MockChunkStore) Insert(ctx context.Context, chunk *domain.Chunk) error {
	args := m.Called(ctx, chunk)
	if args.Error(0) == nil {
		chunk.ID = 42
	}
	return args.Error(0)
}

func (m *MockChunkStore) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func fieldNames(err error) []string {
	var vErr *domain.ValidationError
	if !errors.As(err, &vErr) {
		return nil
	}
	names := make([]string, 0, len(vErr.Fields))
	for _, f := range vErr.Fields {
		names = append(names, f.Field)
	}
	return names
}

func TestAddContent_Success(t *testing.T) {
	store := new(MockChunkStore)
	svc := NewContentService(&fakeEmbedder{}, store)

	store.On("Insert", mock.Anything, mock.Anything).Return(nil)

	chunk, err := svc.AddContent(context.Background(), AddContentInput{
		Content: "Postgres supports vector columns via pgvector.",
		Source:  "manual entry",
	})

	require.NoError(t, err)
	assert.Equal(t, int64(42), chunk.ID)
	assert.Equal(t, vectorFor(chunk.Content), chunk.Embedding)
	store.AssertExpectations(t)
}

func TestAddContent_ContentBoundary(t *testing.T) {
	store := new(MockChunkStore)
	svc := NewContentService(&fakeEmbedder{}, store)
	store.On("Insert", mock.Anything, mock.Anything).Return(nil)

	// Exactly at the limit is accepted.
	_, err := svc.AddContent(context.Background(), AddContentInput{
		Content: strings.Repeat("a", domain.MaxContentChars),
		Source:  "boundary",
	})
	require.NoError(t, err)

	// One over is rejected with a content field error.
	_, err = svc.AddContent(context.Background(), AddContentInput{
		Content: strings.Repeat("a", domain.MaxContentChars+1),
		Source:  "boundary",
	})
	require.Error(t, err)
	assert.Equal(t, []string{"content"}, fieldNames(err))
}

func TestAddContent_SourceBoundary(t *testing.T) {
	store := new(MockChunkStore)
	svc := NewContentService(&fakeEmbedder{}, store)
	store.On("Insert", mock.Anything, mock.Anything).Return(nil)

	_, err := svc.AddContent(context.Background(), AddContentInput{
		Content: "valid content",
		Source:  strings.Repeat("s", domain.MaxSourceChars),
	})
	require.NoError(t, err)

	_, err = svc.AddContent(context.Background(), AddContentInput{
		Content: "valid content",
		Source:  strings.Repeat("s", domain.MaxSourceChars+1),
	})
	require.Error(t, err)
	assert.Equal(t, []string{"source"}, fieldNames(err))
}

func TestAddContent_BothFieldsInvalidReportedTogether(t *testing.T) {
	svc := NewContentService(&fakeEmbedder{}, new(MockChunkStore))

	_, err := svc.AddContent(context.Background(), AddContentInput{})

	require.Error(t, err)
	assert.ElementsMatch(t, []string{"content", "source"}, fieldNames(err))
}

func TestAddContent_EmptyContentRejectedRegardlessOfSource(t *testing.T) {
	svc := NewContentService(&fakeEmbedder{}, new(MockChunkStore))

	_, err := svc.AddContent(context.Background(), AddContentInput{Source: "valid source"})

	require.Error(t, err)
	assert.Equal(t, []string{"content"}, fieldNames(err))
}

func TestAddContent_EmbedErrorPropagates(t *testing.T) {
	embedder := &fakeEmbedder{err: domain.ErrProviderQuotaExceeded}
	svc := NewContentService(embedder, new(MockChunkStore))

	_, err := svc.AddContent(context.Background(), AddContentInput{
		Content: "valid content",
		Source:  "valid source",
	})

	assert.Equal(t, domain.ErrProviderQuotaExceeded, err)
}

func TestAddContent_StoreErrorPropagates(t *testing.T) {
	store := new(MockChunkStore)
	svc := NewContentService(&fakeEmbedder{}, store)

	store.On("Insert", mock.Anything, mock.Anything).Return(domain.ErrSchemaMissing)

	_, err := svc.AddContent(context.Background(), AddContentInput{
		Content: "valid content",
		Source:  "valid source",
	})

	assert.Equal(t, domain.ErrSchemaMissing, err)
}

func TestContentService_Count(t *testing.T) {
	store := new(MockChunkStore)
	svc := NewContentService(&fakeEmbedder{}, store)

	store.On("Count", mock.Anything).Return(int64(17), nil)

	count, err := svc.Count(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(17), count)
}
