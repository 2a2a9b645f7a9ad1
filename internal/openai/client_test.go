package openai

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/quarrylabs/quarry/internal/domain"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockOpenAIAPI is a mock for the OpenAI API
type MockOpenAIAPI struct {
	mock.Mock
}

func (m *MockOpenAIAPI) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func makeVector(seed float32) []float32 {
	v := make([]float32, 1536)
	for i := range v {
		v[i] = seed + float32(i)*0.001
	}
	return v
}

func TestClient_EmbedText_Success(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := &Client{api: mockAPI}

	ctx := context.Background()
	text := "This is a test document about Go programming."
	expected := makeVector(0.5)

	mockAPI.On("CreateEmbeddings", ctx, []string{text}).Return([][]float32{expected}, nil)

	embedding, err := client.EmbedText(ctx, text)

	assert.NoError(t, err)
	assert.Len(t, embedding, 1536)
	assert.Equal(t, expected, embedding)
	mockAPI.AssertExpectations(t)
}

func TestClient_EmbedText_EmptyText(t *testing.T) {
	client := NewClient("")

	ctx := context.Background()
	embedding, err := client.EmbedText(ctx, "")

	assert.Error(t, err)
	assert.Nil(t, embedding)
	assert.Equal(t, ErrEmptyText, err)
}

func TestClient_EmbedBatch_PreservesOrder(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := &Client{api: mockAPI}

	ctx := context.Background()
	texts := []string{"first", "second", "third"}
	vectors := [][]float32{makeVector(1), makeVector(2), makeVector(3)}

	mockAPI.On("CreateEmbeddings", ctx, texts).Return(vectors, nil)

	got, err := client.EmbedBatch(ctx, texts)

	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := range vectors {
		assert.Equal(t, vectors[i], got[i])
	}
	mockAPI.AssertExpectations(t)
}

func TestClient_EmbedBatch_Empty(t *testing.T) {
	client := NewClient("")

	got, err := client.EmbedBatch(context.Background(), nil)

	assert.Nil(t, got)
	assert.Equal(t, ErrEmptyBatch, err)
}

func TestClient_EmbedBatch_WrongDimensions(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := &Client{api: mockAPI}

	ctx := context.Background()
	texts := []string{"test text"}
	wrong := [][]float32{make([]float32, 512)}

	mockAPI.On("CreateEmbeddings", ctx, texts).Return(wrong, nil)

	got, err := client.EmbedBatch(ctx, texts)

	assert.Error(t, err)
	assert.Nil(t, got)
	assert.Equal(t, ErrWrongDimensions, err)
	mockAPI.AssertExpectations(t)
}

func TestClient_EmbedBatch_QuotaError(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := &Client{api: mockAPI}

	ctx := context.Background()
	texts := []string{"test text"}
	apiErr := &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "rate limit exceeded"}

	mockAPI.On("CreateEmbeddings", ctx, texts).Return(nil, apiErr)

	got, err := client.EmbedBatch(ctx, texts)

	assert.Nil(t, got)
	var domainErr *domain.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, domain.ErrCodeRateLimited, domainErr.Code)
	mockAPI.AssertExpectations(t)
}

func TestClient_EmbedBatch_AuthError(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := &Client{api: mockAPI}

	ctx := context.Background()
	texts := []string{"test text"}
	apiErr := &openai.APIError{HTTPStatusCode: http.StatusUnauthorized, Message: "invalid api key"}

	mockAPI.On("CreateEmbeddings", ctx, texts).Return(nil, apiErr)

	got, err := client.EmbedBatch(ctx, texts)

	assert.Nil(t, got)
	var domainErr *domain.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, domain.ErrCodeProviderAuth, domainErr.Code)
	mockAPI.AssertExpectations(t)
}

func TestClient_EmbedBatch_GenericError(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := &Client{api: mockAPI}

	ctx := context.Background()
	texts := []string{"test text"}

	mockAPI.On("CreateEmbeddings", ctx, texts).Return(nil, errors.New("connection reset"))

	got, err := client.EmbedBatch(ctx, texts)

	assert.Nil(t, got)
	assert.Contains(t, err.Error(), "provider request failed")
	mockAPI.AssertExpectations(t)
}

func TestNewClient(t *testing.T) {
	client := NewClient("test-api-key")

	assert.NotNil(t, client)
	assert.NotNil(t, client.api)
	assert.Equal(t, DefaultChatModel, client.ChatModel())
}

func TestNewClientFromEnv_NoAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	client, err := NewClientFromEnv()

	assert.Nil(t, client)
	assert.Error(t, err)
	assert.Equal(t, ErrNoAPIKey, err)
}

func TestNewClientFromEnv_WithAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-api-key")

	client, err := NewClientFromEnv()

	assert.NotNil(t, client)
	assert.NoError(t, err)
}
