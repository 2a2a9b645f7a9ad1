package service

import (
	"context"
	"errors"
	"testing"

	"github.com/quarrylabs/quarry/internal/domain"
	"github.com/quarrylabs/quarry/internal/repository"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockChunkSearcher is a mock implementation of ChunkSearcher
type MockChunkSearcher struct {
	mock.Mock
}

func (m *MockChunkSearcher) Search(ctx context.Context, embedding []float32, limit int) ([]*repository.SearchMatch, error) {
	args := m.Called(ctx, embedding, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*repository.SearchMatch), args.Error(1)
}

func TestRetrievalService_Search_RanksResults(t *testing.T) {
	embedder := &fakeEmbedder{}
	searcher := new(MockChunkSearcher)
	svc := NewRetrievalService(embedder, searcher)

	matches := []*repository.SearchMatch{
		{ID: 3, Content: "closest passage", Source: "a.txt", Distance: 0.1},
		{ID: 9, Content: "second passage", Source: "b.txt", Distance: 0.3},
		{ID: 1, Content: "third passage", Source: "a.txt", Distance: 0.5},
	}
	searcher.On("Search", mock.Anything, vectorFor("database indexes"), DefaultTopK).Return(matches, nil)

	results, err := svc.Search(context.Background(), "database indexes")

	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, 1, results[0].Rank)
	assert.Equal(t, "closest passage", results[0].Content)
	assert.InDelta(t, 0.9, results[0].Similarity, 1e-6)
	assert.Equal(t, 2, results[1].Rank)
	assert.Equal(t, 3, results[2].Rank)
	assert.Equal(t, "a.txt", results[2].Source)
	searcher.AssertExpectations(t)
}

func TestRetrievalService_Search_EmptyStore(t *testing.T) {
	embedder := &fakeEmbedder{}
	searcher := new(MockChunkSearcher)
	svc := NewRetrievalService(embedder, searcher)

	searcher.On("Search", mock.Anything, mock.Anything, DefaultTopK).Return([]*repository.SearchMatch{}, nil)

	results, err := svc.Search(context.Background(), "anything at all")

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrievalService_Search_EmptyQuery(t *testing.T) {
	svc := NewRetrievalService(&fakeEmbedder{}, new(MockChunkSearcher))

	_, err := svc.Search(context.Background(), "   ")

	assert.Equal(t, domain.ErrEmptyQuery, err)
}

func TestRetrievalService_Search_EmbedErrorPropagates(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("provider down")}
	svc := NewRetrievalService(embedder, new(MockChunkSearcher))

	_, err := svc.Search(context.Background(), "query")

	assert.ErrorContains(t, err, "provider down")
}

func TestRetrievalService_WithTopK(t *testing.T) {
	embedder := &fakeEmbedder{}
	searcher := new(MockChunkSearcher)
	svc := NewRetrievalService(embedder, searcher).WithTopK(2)

	searcher.On("Search", mock.Anything, mock.Anything, 2).Return([]*repository.SearchMatch{}, nil)

	_, err := svc.Search(context.Background(), "query")

	require.NoError(t, err)
	searcher.AssertExpectations(t)
}

func TestToolDefinition(t *testing.T) {
	tool := ToolDefinition()

	assert.Equal(t, openai.ToolTypeFunction, tool.Type)
	require.NotNil(t, tool.Function)
	assert.Equal(t, SearchToolName, tool.Function.Name)
	assert.NotEmpty(t, tool.Function.Description)
}

func TestParseSearchArgs(t *testing.T) {
	query, err := ParseSearchArgs(`{"query": "how do vectors work"}`)
	require.NoError(t, err)
	assert.Equal(t, "how do vectors work", query)

	_, err = ParseSearchArgs(`{"query": ""}`)
	assert.Equal(t, domain.ErrEmptyQuery, err)

	_, err = ParseSearchArgs(`not json`)
	assert.ErrorContains(t, err, "failed to parse tool arguments")
}
