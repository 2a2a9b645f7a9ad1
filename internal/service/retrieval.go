package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/quarrylabs/quarry/internal/domain"
	"github.com/quarrylabs/quarry/internal/repository"
	"github.com/quarrylabs/quarry/internal/telemetry"
	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultTopK is the number of nearest neighbors returned per query.
	DefaultTopK = 5

	// SearchToolName is the stable capability name registered with the
	// conversation orchestrator.
	SearchToolName = "search_knowledge_base"

	searchToolDescription = "Search the knowledge base for text passages relevant to a query. " +
		"Returns the most similar stored passages with their source labels, " +
		"ordered from most to least relevant. Use this whenever the user asks " +
		"about something that may be covered by the knowledge base."
)

// RetrievedChunk is one ranked search result.
type RetrievedChunk struct {
	Content    string  `json:"content"`
	Source     string  `json:"source"`
	Rank       int     `json:"rank"`
	Similarity float32 `json:"similarity"`
}

// ChunkSearcher defines the repository interface for similarity search.
type ChunkSearcher interface {
	Search(ctx context.Context, embedding []float32, limit int) ([]*repository.SearchMatch, error)
}

// RetrievalService embeds queries and answers top-K nearest-neighbor
// lookups; it is the capability the conversation orchestrator invokes.
type RetrievalService struct {
	embedding EmbeddingClient
	searcher  ChunkSearcher
	topK      int
}

func NewRetrievalService(embedding EmbeddingClient, searcher ChunkSearcher) *RetrievalService {
	return &RetrievalService{
		embedding: embedding,
		searcher:  searcher,
		topK:      DefaultTopK,
	}
}

// WithTopK overrides the number of results per query.
func (s *RetrievalService) WithTopK(k int) *RetrievalService {
	if k > 0 {
		s.topK = k
	}
	return s
}

// Search embeds the query with the same model used at ingestion and returns
// the topK most similar chunks in ascending distance order, annotated with
// 1-based ranks and normalized similarity scores. An empty store yields an
// empty slice.
func (s *RetrievalService) Search(ctx context.Context, query string) ([]RetrievedChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.ErrEmptyQuery
	}

	ctx, span := telemetry.StartSpan(ctx, "RetrievalService.Search", telemetry.SpanAttributes{
		Operation: "search",
	})
	defer span.End()

	embedding, err := s.embedding.EmbedText(ctx, query)
	if err != nil {
		return nil, err
	}

	matches, err := s.searcher.Search(ctx, embedding, s.topK)
	if err != nil {
		return nil, err
	}

	results := make([]RetrievedChunk, 0, len(matches))
	for i, m := range matches {
		results = append(results, RetrievedChunk{
			Content:    m.Content,
			Source:     m.Source,
			Rank:       i + 1,
			Similarity: 1 - m.Distance,
		})
	}

	return results, nil
}

// ToolDefinition describes the search capability to the orchestrator: a
// stable name, a natural-language description, and a single string
// parameter. Any capability satisfying the same contract is substitutable.
func ToolDefinition() openai.Tool {
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        SearchToolName,
			Description: searchToolDescription,
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {
						"type": "string",
						"description": "Free-text search query"
					}
				},
				"required": ["query"]
			}`),
		},
	}
}

// searchToolArgs is the wire shape of the orchestrator's tool arguments.
type searchToolArgs struct {
	Query string `json:"query"`
}

// ParseSearchArgs decodes the orchestrator-provided JSON arguments for the
// search tool.
func ParseSearchArgs(raw string) (string, error) {
	var args searchToolArgs
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return "", fmt.Errorf("failed to parse tool arguments: %w", err)
	}
	if strings.TrimSpace(args.Query) == "" {
		return "", domain.ErrEmptyQuery
	}
	return args.Query, nil
}
