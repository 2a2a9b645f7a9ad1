package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/quarrylabs/quarry/internal/api"
	"github.com/quarrylabs/quarry/internal/domain"
	"github.com/quarrylabs/quarry/internal/service"
)

type ContentService interface {
	AddContent(ctx context.Context, input service.AddContentInput) (*domain.Chunk, error)
	Count(ctx context.Context) (int64, error)
}

type ContentHandler struct {
	svc ContentService
}

func NewContentHandler(svc ContentService) *ContentHandler {
	return &ContentHandler{svc: svc}
}

type EmbedRequest struct {
	Content string `json:"content"`
	Source  string `json:"source"`
}

type EmbedResponse struct {
	Success bool  `json:"success"`
	ID      int64 `json:"id"`
}

type CountResponse struct {
	TotalEmbeddings int64 `json:"totalEmbeddings"`
}

// Embed validates and stores one piece of user-submitted content, making
// it immediately searchable.
func (h *ContentHandler) Embed(w http.ResponseWriter, r *http.Request) {
	var req EmbedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	chunk, err := h.svc.AddContent(r.Context(), service.AddContentInput{
		Content: req.Content,
		Source:  req.Source,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.JSON(w, http.StatusCreated, EmbedResponse{Success: true, ID: chunk.ID})
}

// Count reports the total number of stored embeddings as a health probe.
func (h *ContentHandler) Count(w http.ResponseWriter, r *http.Request) {
	count, err := h.svc.Count(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.JSON(w, http.StatusOK, CountResponse{TotalEmbeddings: count})
}
