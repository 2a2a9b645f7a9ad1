package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/quarrylabs/quarry/internal/api"
	"github.com/quarrylabs/quarry/internal/service"
)

type ChatService interface {
	Stream(ctx context.Context, history []service.ChatMessage) (<-chan service.ChatEvent, error)
}

type ChatHandler struct {
	svc ChatService
}

func NewChatHandler(svc ChatService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

type ChatRequest struct {
	Messages []service.ChatMessage `json:"messages"`
}

type deltaPayload struct {
	Text string `json:"text"`
}

type errorPayload struct {
	Error string `json:"error"`
}

// Chat streams an incrementally generated assistant answer over SSE.
// Events: "delta" carries text increments, "tool" carries retrieval
// invocation records for debugging, "done" marks completion, "error"
// reports a failed generation.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	events, err := h.svc.Stream(r.Context(), req.Messages)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		api.Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// A write failure means the client went away; stop consuming and let
	// the producer wind down on context cancellation.
	for ev := range events {
		var writeErr error
		switch ev.Type {
		case service.ChatEventDelta:
			writeErr = sse.WriteEvent("delta", deltaPayload{Text: ev.Delta})
		case service.ChatEventTool:
			writeErr = sse.WriteEvent("tool", ev.Tool)
		case service.ChatEventError:
			writeErr = sse.WriteEvent("error", errorPayload{Error: ev.Err.Error()})
		case service.ChatEventDone:
			writeErr = sse.WriteEvent("done", struct{}{})
		}
		if writeErr != nil {
			log.Printf("chat stream write failed: %v", writeErr)
			return
		}
	}
}
