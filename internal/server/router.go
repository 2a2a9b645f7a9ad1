package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/quarrylabs/quarry/internal/api"
	"github.com/quarrylabs/quarry/internal/api/handlers"
	"github.com/quarrylabs/quarry/internal/api/middleware"
)

type RouterConfig struct {
	ContentHandler *handlers.ContentHandler
	ChatHandler    *handlers.ChatHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/embed", cfg.ContentHandler.Embed)
		r.Get("/embeddings/count", cfg.ContentHandler.Count)
		r.Post("/chat", cfg.ChatHandler.Chat)
	})

	return r
}
