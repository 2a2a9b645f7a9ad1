package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/quarrylabs/quarry/internal/domain"
	llm "github.com/quarrylabs/quarry/internal/openai"
	openai "github.com/sashabaranov/go-openai"
)

// DefaultMaxToolRounds bounds how many times the model may invoke the
// retrieval tool for one user message before it must answer.
const DefaultMaxToolRounds = 4

const defaultSystemPrompt = "You are a helpful assistant that answers questions " +
	"using a knowledge base. When a question may be covered by stored knowledge, " +
	"call the search tool to retrieve relevant passages and ground your answer in " +
	"them, citing their sources. If nothing relevant is found, say so plainly " +
	"instead of guessing."

// ChatMessage is one turn of conversation history supplied by the caller.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatEventType discriminates events on the chat stream.
type ChatEventType string

const (
	ChatEventDelta ChatEventType = "delta"
	ChatEventTool  ChatEventType = "tool"
	ChatEventDone  ChatEventType = "done"
	ChatEventError ChatEventType = "error"
)

// ToolInvocation records one retrieval call made by the model, surfaced so
// callers can show what grounded the answer.
type ToolInvocation struct {
	ToolName string            `json:"toolName"`
	Args     map[string]string `json:"args"`
	Result   ToolResult        `json:"result"`
}

// ToolResult is the retrieval output handed back to the model.
type ToolResult struct {
	Results []RetrievedChunk `json:"results"`
}

// ChatEvent is one increment of a streamed answer: a text delta, a tool
// invocation record, an error, or completion.
type ChatEvent struct {
	Type  ChatEventType
	Delta string
	Tool  *ToolInvocation
	Err   error
}

// Searcher is the retrieval capability the orchestrator may invoke.
type Searcher interface {
	Search(ctx context.Context, query string) ([]RetrievedChunk, error)
}

// ChatStreamClient opens streaming chat completion calls.
type ChatStreamClient interface {
	StreamChat(ctx context.Context, req openai.ChatCompletionRequest) (llm.ChatStream, error)
}

// ChatService drives the conversation loop: per user message the model may
// call the retrieval tool a bounded number of rounds, then must produce a
// final answer streamed incrementally over the event channel.
type ChatService struct {
	client        ChatStreamClient
	retrieval     Searcher
	maxToolRounds int
	systemPrompt  string
}

func NewChatService(client ChatStreamClient, retrieval Searcher) *ChatService {
	return &ChatService{
		client:        client,
		retrieval:     retrieval,
		maxToolRounds: DefaultMaxToolRounds,
		systemPrompt:  defaultSystemPrompt,
	}
}

// WithMaxToolRounds overrides the tool-round bound.
func (s *ChatService) WithMaxToolRounds(rounds int) *ChatService {
	if rounds > 0 {
		s.maxToolRounds = rounds
	}
	return s
}

// Stream validates the history and starts producing events. The returned
// channel is closed when the answer is complete or an error event has been
// sent. A consumer that stops pulling simply abandons the channel; issued
// provider calls run to completion.
func (s *ChatService) Stream(ctx context.Context, history []ChatMessage) (<-chan ChatEvent, error) {
	if len(history) == 0 {
		return nil, domain.ErrEmptyMessageList
	}
	for _, m := range history {
		switch m.Role {
		case openai.ChatMessageRoleUser, openai.ChatMessageRoleAssistant, openai.ChatMessageRoleSystem:
		default:
			return nil, domain.ErrInvalidMessageRole
		}
	}

	events := make(chan ChatEvent)
	go s.run(ctx, history, events)
	return events, nil
}

func (s *ChatService) run(ctx context.Context, history []ChatMessage, events chan<- ChatEvent) {
	defer close(events)

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: s.systemPrompt,
	})
	for _, m := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	for round := 0; ; round++ {
		// Past the bound the model loses tool access and must answer.
		allowTools := round < s.maxToolRounds

		req := openai.ChatCompletionRequest{Messages: messages}
		if allowTools {
			req.Tools = []openai.Tool{ToolDefinition()}
		}

		content, toolCalls, err := s.streamOneRound(ctx, req, events)
		if err != nil {
			s.emit(ctx, events, ChatEvent{Type: ChatEventError, Err: err})
			return
		}

		// Tool calls on a round where no tools were offered are a
		// provider violation; treating the round as final keeps the
		// bound enforced rather than assumed.
		if len(toolCalls) == 0 || !allowTools {
			s.emit(ctx, events, ChatEvent{Type: ChatEventDone})
			return
		}

		messages = append(messages, openai.ChatCompletionMessage{
			Role:      openai.ChatMessageRoleAssistant,
			Content:   content,
			ToolCalls: toolCalls,
		})

		for _, call := range toolCalls {
			reply, invocation := s.invokeTool(ctx, call)
			if invocation != nil {
				s.emit(ctx, events, ChatEvent{Type: ChatEventTool, Tool: invocation})
			}
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: call.ID,
				Content:    reply,
			})
		}
	}
}

// streamOneRound consumes one streaming completion call, forwarding content
// deltas as events and accumulating any tool calls the model emits.
func (s *ChatService) streamOneRound(ctx context.Context, req openai.ChatCompletionRequest, events chan<- ChatEvent) (string, []openai.ToolCall, error) {
	stream, err := s.client.StreamChat(ctx, req)
	if err != nil {
		return "", nil, err
	}
	defer stream.Close()

	var content strings.Builder
	pending := make(map[int]*openai.ToolCall)

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", nil, fmt.Errorf("stream receive failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}

		delta := resp.Choices[0].Delta
		if delta.Content != "" {
			content.WriteString(delta.Content)
			s.emit(ctx, events, ChatEvent{Type: ChatEventDelta, Delta: delta.Content})
		}

		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			call, ok := pending[idx]
			if !ok {
				call = &openai.ToolCall{Type: openai.ToolTypeFunction}
				pending[idx] = call
			}
			if tc.ID != "" {
				call.ID = tc.ID
			}
			if tc.Function.Name != "" {
				call.Function.Name = tc.Function.Name
			}
			call.Function.Arguments += tc.Function.Arguments
		}
	}

	if len(pending) == 0 {
		return content.String(), nil, nil
	}

	indexes := make([]int, 0, len(pending))
	for idx := range pending {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	toolCalls := make([]openai.ToolCall, 0, len(pending))
	for _, idx := range indexes {
		toolCalls = append(toolCalls, *pending[idx])
	}
	return content.String(), toolCalls, nil
}

// invokeTool executes one model-requested retrieval and renders the result
// for the next round. Failures are reported back to the model as tool
// output rather than aborting the conversation.
func (s *ChatService) invokeTool(ctx context.Context, call openai.ToolCall) (string, *ToolInvocation) {
	if call.Function.Name != SearchToolName {
		return fmt.Sprintf(`{"error": "unknown tool %q"}`, call.Function.Name), nil
	}

	query, err := ParseSearchArgs(call.Function.Arguments)
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error()), nil
	}

	results, err := s.retrieval.Search(ctx, query)
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error()), nil
	}

	invocation := &ToolInvocation{
		ToolName: SearchToolName,
		Args:     map[string]string{"query": query},
		Result:   ToolResult{Results: results},
	}

	payload, err := json.Marshal(invocation.Result)
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error()), invocation
	}
	return string(payload), invocation
}

func (s *ChatService) emit(ctx context.Context, events chan<- ChatEvent, ev ChatEvent) {
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}
