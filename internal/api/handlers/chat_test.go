package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/quarrylabs/quarry/internal/domain"
	"github.com/quarrylabs/quarry/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockChatService struct {
	mock.Mock
}

func (m *MockChatService) Stream(ctx context.Context, history []service.ChatMessage) (<-chan service.ChatEvent, error) {
	args := m.Called(ctx, history)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(<-chan service.ChatEvent), args.Error(1)
}

func eventChannel(events ...service.ChatEvent) <-chan service.ChatEvent {
	ch := make(chan service.ChatEvent, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}

func postChat(t *testing.T, handler *ChatHandler, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(payload))
	w := httptest.NewRecorder()
	handler.Chat(w, req)
	return w
}

func TestChatHandler_Chat_StreamsEvents(t *testing.T) {
	svc := new(MockChatService)
	handler := NewChatHandler(svc)

	history := []service.ChatMessage{{Role: "user", Content: "hello"}}
	svc.On("Stream", mock.Anything, history).Return(eventChannel(
		service.ChatEvent{Type: service.ChatEventDelta, Delta: "Hi "},
		service.ChatEvent{Type: service.ChatEventDelta, Delta: "there"},
		service.ChatEvent{Type: service.ChatEventDone},
	), nil)

	w := postChat(t, handler, ChatRequest{Messages: history})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	assert.Contains(t, body, "event: delta\ndata: {\"text\":\"Hi \"}\n\n")
	assert.Contains(t, body, "event: delta\ndata: {\"text\":\"there\"}\n\n")
	assert.Contains(t, body, "event: done\ndata: {}\n\n")
	svc.AssertExpectations(t)
}

func TestChatHandler_Chat_ToolEvent(t *testing.T) {
	svc := new(MockChatService)
	handler := NewChatHandler(svc)

	tool := &service.ToolInvocation{
		ToolName: service.SearchToolName,
		Args:     map[string]string{"query": "pricing"},
		Result: service.ToolResult{Results: []service.RetrievedChunk{
			{Content: "plans start at $5", Source: "pricing.md", Rank: 1, Similarity: 0.91},
		}},
	}
	svc.On("Stream", mock.Anything, mock.Anything).Return(eventChannel(
		service.ChatEvent{Type: service.ChatEventTool, Tool: tool},
		service.ChatEvent{Type: service.ChatEventDelta, Delta: "Plans start at $5."},
		service.ChatEvent{Type: service.ChatEventDone},
	), nil)

	w := postChat(t, handler, ChatRequest{Messages: []service.ChatMessage{{Role: "user", Content: "pricing?"}}})

	assert.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	toolLine := ""
	for _, block := range strings.Split(body, "\n\n") {
		if strings.HasPrefix(block, "event: tool\n") {
			toolLine = strings.TrimPrefix(block, "event: tool\ndata: ")
		}
	}
	require.NotEmpty(t, toolLine)

	var decoded service.ToolInvocation
	require.NoError(t, json.Unmarshal([]byte(toolLine), &decoded))
	assert.Equal(t, service.SearchToolName, decoded.ToolName)
	assert.Equal(t, "pricing", decoded.Args["query"])
	require.Len(t, decoded.Result.Results, 1)
	assert.Equal(t, "pricing.md", decoded.Result.Results[0].Source)
}

func TestChatHandler_Chat_ErrorEvent(t *testing.T) {
	svc := new(MockChatService)
	handler := NewChatHandler(svc)

	svc.On("Stream", mock.Anything, mock.Anything).Return(eventChannel(
		service.ChatEvent{Type: service.ChatEventError, Err: domain.ErrProviderQuotaExceeded},
	), nil)

	w := postChat(t, handler, ChatRequest{Messages: []service.ChatMessage{{Role: "user", Content: "hi"}}})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "event: error\n")
}

func TestChatHandler_Chat_InvalidBody(t *testing.T) {
	handler := NewChatHandler(new(MockChatService))

	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader([]byte("{")))
	w := httptest.NewRecorder()
	handler.Chat(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatHandler_Chat_EmptyHistory(t *testing.T) {
	svc := new(MockChatService)
	handler := NewChatHandler(svc)

	svc.On("Stream", mock.Anything, mock.Anything).Return(nil, domain.ErrEmptyMessageList)

	w := postChat(t, handler, ChatRequest{Messages: nil})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
