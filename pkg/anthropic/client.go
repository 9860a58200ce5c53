// Package anthropic wraps anthropic-sdk-go behind the narrow message surface
// the extraction pipeline uses: plain request/response structs, cached system
// blocks for document text, and token-cost accounting.
package anthropic

import (
	"context"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
)

// Client is the one API operation the pipeline depends on. Tests substitute
// their own implementation; production wiring uses NewClient.
type Client interface {
	CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error)
}

// MessageRequest carries everything one extraction call needs. Document text
// travels in System (cached), the task prompt in Messages.
type MessageRequest struct {
	Model       string
	MaxTokens   int64
	System      []SystemBlock
	Messages    []Message
	Temperature *float64
}

// SystemBlock is one system prompt segment. A non-nil CacheControl places a
// cache breakpoint after it; the block's text must repeat byte for byte on
// later calls or the cache misses.
type SystemBlock struct {
	Text         string
	CacheControl *CacheControl
}

// CacheControl sets the cache TTL for a block, "5m" or "1h".
type CacheControl struct {
	TTL string
}

// Message is one conversational turn. Role is "user" or "assistant".
type Message struct {
	Role    string
	Content string
}

// MessageResponse is the subset of the API response the pipeline reads.
type MessageResponse struct {
	ID           string
	Model        string
	Content      []ContentBlock
	StopReason   string
	Usage        TokenUsage
	StopSequence string
}

// ContentBlock is one response segment; only "text" blocks matter here.
type ContentBlock struct {
	Type string
	Text string
}

// Text concatenates the response's text blocks, skipping everything else.
func (r *MessageResponse) Text() string {
	var sb strings.Builder
	for _, b := range r.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// sdkClient adapts the official SDK to the Client interface.
type sdkClient struct {
	client sdk.Client
}

// NewClient returns a Client backed by anthropic-sdk-go.
func NewClient(apiKey string) Client {
	return &sdkClient{client: sdk.NewClient(option.WithAPIKey(apiKey))}
}

func (c *sdkClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: req.MaxTokens,
		Messages:  toSDKMessages(req.Messages),
	}
	if len(req.System) > 0 {
		params.System = toSDKSystemBlocks(req.System)
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, eris.Wrap(err, "anthropic: create message")
	}
	return fromSDKMessage(msg), nil
}

// toSDKMessages maps conversational turns onto SDK params. Unknown roles
// become user turns rather than failing the call.
func toSDKMessages(msgs []Message) []sdk.MessageParam {
	out := make([]sdk.MessageParam, len(msgs))
	for i, m := range msgs {
		block := sdk.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			out[i] = sdk.NewAssistantMessage(block)
		} else {
			out[i] = sdk.NewUserMessage(block)
		}
	}
	return out
}

func toSDKSystemBlocks(blocks []SystemBlock) []sdk.TextBlockParam {
	out := make([]sdk.TextBlockParam, len(blocks))
	for i, b := range blocks {
		out[i] = sdk.TextBlockParam{Text: b.Text}
		if b.CacheControl == nil {
			continue
		}
		cc := sdk.NewCacheControlEphemeralParam()
		if ttl := b.CacheControl.TTL; ttl != "" {
			cc.TTL = sdk.CacheControlEphemeralTTL(ttl)
		}
		out[i].CacheControl = cc
	}
	return out
}

func fromSDKMessage(msg *sdk.Message) *MessageResponse {
	resp := &MessageResponse{
		ID:           msg.ID,
		Model:        string(msg.Model),
		StopReason:   string(msg.StopReason),
		StopSequence: msg.StopSequence,
		Usage: TokenUsage{
			InputTokens:              msg.Usage.InputTokens,
			OutputTokens:             msg.Usage.OutputTokens,
			CacheCreationInputTokens: msg.Usage.CacheCreationInputTokens,
			CacheReadInputTokens:     msg.Usage.CacheReadInputTokens,
		},
	}
	for _, b := range msg.Content {
		resp.Content = append(resp.Content, ContentBlock{Type: b.Type, Text: b.Text})
	}
	return resp
}
