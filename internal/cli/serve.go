package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quarrylabs/quarry/internal/api/handlers"
	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/database"
	"github.com/quarrylabs/quarry/internal/domain"
	"github.com/quarrylabs/quarry/internal/openai"
	"github.com/quarrylabs/quarry/internal/repository"
	"github.com/quarrylabs/quarry/internal/server"
	"github.com/quarrylabs/quarry/internal/service"
	"github.com/quarrylabs/quarry/internal/telemetry"
	goopenai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the quarry API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize Sentry with tracing if SENTRY_DSN is set
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
			TracesSampleRate: sampleRate,
			Debug:            cfg.Debug,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Println("connected to database")

	// Run migrations unless --no-migrate flag is set
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := database.Migrate(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	chunkRepo := repository.NewChunkRepository(pool)

	var contentHandler *handlers.ContentHandler
	var chatHandler *handlers.ChatHandler
	if cfg.HasOpenAI() {
		client := openai.NewClientWithConfig(openai.Config{
			APIKey:         cfg.OpenAIAPIKey,
			ChatModel:      cfg.ChatModel,
			EmbeddingModel: goopenai.EmbeddingModel(cfg.EmbeddingModel),
		})

		contentSvc := service.NewContentService(client, chunkRepo)
		retrievalSvc := service.NewRetrievalService(client, chunkRepo).WithTopK(cfg.SearchTopK)
		chatSvc := service.NewChatService(client, retrievalSvc).WithMaxToolRounds(cfg.MaxToolRounds)

		contentHandler = handlers.NewContentHandler(contentSvc)
		chatHandler = handlers.NewChatHandler(chatSvc)
	} else {
		log.Println("OPENAI_API_KEY not set: embedding and chat endpoints will report not configured")
		contentHandler = handlers.NewContentHandler(&countOnlyContentService{store: chunkRepo})
		chatHandler = handlers.NewChatHandler(&unconfiguredChatService{})
	}

	routerCfg := server.RouterConfig{
		ContentHandler: contentHandler,
		ChatHandler:    chatHandler,
	}

	router := server.NewRouter(routerCfg)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

// countOnlyContentService serves count queries from the database but rejects
// embedding requests when no provider credentials are configured.
type countOnlyContentService struct {
	store *repository.ChunkRepository
}

func (s *countOnlyContentService) AddContent(ctx context.Context, input service.AddContentInput) (*domain.Chunk, error) {
	return nil, domain.ErrEmbeddingNotConfigured
}

func (s *countOnlyContentService) Count(ctx context.Context) (int64, error) {
	return s.store.Count(ctx)
}

type unconfiguredChatService struct{}

func (s *unconfiguredChatService) Stream(ctx context.Context, history []service.ChatMessage) (<-chan service.ChatEvent, error) {
	return nil, domain.ErrChatNotConfigured
}
