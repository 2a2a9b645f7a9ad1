package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/database"
	"github.com/quarrylabs/quarry/internal/openai"
	"github.com/quarrylabs/quarry/internal/repository"
	"github.com/quarrylabs/quarry/internal/service"
	goopenai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
)

const defaultProbeQuery = "What is stored in the knowledge base?"

// QueryCmd returns the query command, a retrieval probe that searches the
// store directly without going through the HTTP API.
func QueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query [text]",
		Short: "Run a similarity search against the knowledge base",
		Args:  cobra.ArbitraryArgs,
		RunE:  runQuery,
	}

	cmd.Flags().IntP("top-k", "k", service.DefaultTopK, "Number of results to return")

	return cmd
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	query := strings.Join(args, " ")
	if strings.TrimSpace(query) == "" {
		query = defaultProbeQuery
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if !cfg.HasOpenAI() {
		return fmt.Errorf("OPENAI_API_KEY is required for search")
	}

	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	client := openai.NewClientWithConfig(openai.Config{
		APIKey:         cfg.OpenAIAPIKey,
		EmbeddingModel: goopenai.EmbeddingModel(cfg.EmbeddingModel),
	})

	topK, _ := cmd.Flags().GetInt("top-k")
	retrievalSvc := service.NewRetrievalService(client, repository.NewChunkRepository(pool)).WithTopK(topK)

	results, err := retrievalSvc.Search(ctx, query)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if len(results) == 0 {
		fmt.Printf("no results for %q\n", query)
		return nil
	}

	fmt.Printf("results for %q:\n\n", query)
	for _, r := range results {
		fmt.Printf("%d. [%s] similarity %.4f\n   %s\n\n", r.Rank, r.Source, r.Similarity, r.Content)
	}
	return nil
}
