package cli

import (
	"context"
	"fmt"
	"log"

	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/database"
	"github.com/quarrylabs/quarry/internal/openai"
	"github.com/quarrylabs/quarry/internal/repository"
	"github.com/quarrylabs/quarry/internal/service"
	"github.com/quarrylabs/quarry/internal/storage"
	goopenai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
)

// IngestCmd returns the ingest command
func IngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Chunk and embed a document into the knowledge base",
		Long: "Split a document into chunks, embed each chunk, and store the results. " +
			"Reads from a local file path, or from S3-compatible storage with --s3-key.",
		Args: cobra.MaximumNArgs(1),
		RunE: runIngest,
	}

	cmd.Flags().String("s3-key", "", "Object key to fetch from the configured S3 bucket instead of a local file")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	s3Key, _ := cmd.Flags().GetString("s3-key")
	if len(args) == 0 && s3Key == "" {
		return fmt.Errorf("a file path or --s3-key is required")
	}
	if len(args) == 1 && s3Key != "" {
		return fmt.Errorf("a file path and --s3-key are mutually exclusive")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if !cfg.HasOpenAI() {
		return fmt.Errorf("OPENAI_API_KEY is required for ingestion")
	}

	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := database.Migrate(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	client := openai.NewClientWithConfig(openai.Config{
		APIKey:         cfg.OpenAIAPIKey,
		ChatModel:      cfg.ChatModel,
		EmbeddingModel: goopenai.EmbeddingModel(cfg.EmbeddingModel),
	})

	chunkRepo := repository.NewChunkRepository(pool)

	chunkCfg := service.DefaultChunkConfig()
	chunkCfg.MaxChars = cfg.ChunkMaxChars
	chunkCfg.Overlap = cfg.ChunkOverlap

	ingestSvc := service.NewIngestService(client, chunkRepo).
		WithChunkConfig(chunkCfg).
		WithBatchSize(cfg.EmbedBatchSize)

	if s3Key != "" {
		if !cfg.HasS3() {
			return fmt.Errorf("--s3-key requires S3_ENDPOINT, S3_ACCESS_KEY_ID, and S3_SECRET_ACCESS_KEY")
		}
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		ingestSvc = ingestSvc.WithFetcher(s3Client)

		stored, err := ingestSvc.IngestRemote(ctx, s3Key)
		if err != nil {
			return fmt.Errorf("ingestion failed after storing %d chunks: %w", stored, err)
		}
		log.Printf("ingested %d chunks from s3://%s/%s", stored, cfg.S3Bucket, s3Key)
		return nil
	}

	stored, err := ingestSvc.IngestFile(ctx, args[0])
	if err != nil {
		return fmt.Errorf("ingestion failed after storing %d chunks: %w", stored, err)
	}
	log.Printf("ingested %d chunks from %s", stored, args[0])
	return nil
}
