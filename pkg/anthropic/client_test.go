package anthropic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockClient is a test double for the Client interface.
type MockClient struct {
	CreateMessageFunc func(ctx context.Context, req MessageRequest) (*MessageResponse, error)
	Requests          []MessageRequest
}

func (m *MockClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	m.Requests = append(m.Requests, req)
	if m.CreateMessageFunc != nil {
		return m.CreateMessageFunc(ctx, req)
	}
	return &MessageResponse{}, nil
}

func TestCreateMessage_MockClient(t *testing.T) {
	mock := &MockClient{
		CreateMessageFunc: func(_ context.Context, req MessageRequest) (*MessageResponse, error) {
			return &MessageResponse{
				ID:      "msg_123",
				Model:   req.Model,
				Content: []ContentBlock{{Type: "text", Text: "hello"}},
				Usage:   TokenUsage{InputTokens: 10, OutputTokens: 5},
			}, nil
		},
	}

	resp, err := mock.CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-sonnet-4-5-20250929",
		MaxTokens: 1024,
		Messages:  []Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "msg_123", resp.ID)
	assert.Equal(t, "hello", resp.Text())
	require.Len(t, mock.Requests, 1)
	assert.Equal(t, "claude-sonnet-4-5-20250929", mock.Requests[0].Model)
}

func TestMessageResponse_Text_SkipsNonText(t *testing.T) {
	resp := &MessageResponse{
		Content: []ContentBlock{
			{Type: "text", Text: "part one "},
			{Type: "tool_use", Text: "ignored"},
			{Type: "text", Text: "part two"},
		},
	}
	assert.Equal(t, "part one part two", resp.Text())
}

func TestSDKTypeConversion_toSDKMessages(t *testing.T) {
	msgs := toSDKMessages([]Message{
		{Role: "user", Content: "question"},
		{Role: "assistant", Content: "answer"},
		{Role: "other", Content: "defaults to user"},
	})
	require.Len(t, msgs, 3)
	assert.Equal(t, "user", string(msgs[0].Role))
	assert.Equal(t, "assistant", string(msgs[1].Role))
	assert.Equal(t, "user", string(msgs[2].Role))
}

func TestSDKTypeConversion_toSDKSystemBlocks(t *testing.T) {
	blocks := toSDKSystemBlocks([]SystemBlock{
		{Text: "plain"},
		{Text: "cached", CacheControl: &CacheControl{TTL: "1h"}},
	})
	require.Len(t, blocks, 2)
	assert.Equal(t, "plain", blocks[0].Text)
	assert.Equal(t, "1h", string(blocks[1].CacheControl.TTL))
}

func TestBuildCachedSystemBlocks(t *testing.T) {
	blocks := BuildCachedSystemBlocks("document text")
	require.Len(t, blocks, 1)
	assert.Equal(t, "document text", blocks[0].Text)
	require.NotNil(t, blocks[0].CacheControl)
	assert.Equal(t, "1h", blocks[0].CacheControl.TTL)
}

func TestPrimerRequest(t *testing.T) {
	mock := &MockClient{
		CreateMessageFunc: func(_ context.Context, _ MessageRequest) (*MessageResponse, error) {
			return &MessageResponse{
				Usage: TokenUsage{CacheCreationInputTokens: 5000},
			}, nil
		},
	}

	resp, err := PrimerRequest(context.Background(), mock, MessageRequest{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 16,
		System:    BuildCachedSystemBlocks("long document"),
		Messages:  []Message{{Role: "user", Content: "ok"}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5000), resp.Usage.CacheCreationInputTokens)
}

func TestEstimateCost_Sonnet(t *testing.T) {
	u := TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
	assert.InDelta(t, 18.00, u.EstimateCost("claude-sonnet-4-5-20250929"), 1e-9)
}

func TestEstimateCost_WithCache(t *testing.T) {
	u := TokenUsage{
		InputTokens:              100_000,
		OutputTokens:             10_000,
		CacheCreationInputTokens: 50_000,
		CacheReadInputTokens:     500_000,
	}
	// haiku: 0.08 in + 0.04 out + 0.05 cache write + 0.04 cache read
	assert.InDelta(t, 0.21, u.EstimateCost("claude-haiku-4-5-20251001"), 1e-9)
}

func TestEstimateCost_UnknownModel(t *testing.T) {
	u := TokenUsage{InputTokens: 1_000_000}
	assert.Zero(t, u.EstimateCost("some-other-model"))
}

func TestNewClient_ReturnsNonNil(t *testing.T) {
	assert.NotNil(t, NewClient("test-key"))
}
