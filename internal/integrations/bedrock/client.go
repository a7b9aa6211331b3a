package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"repair-agent/internal/agent"
	"repair-agent/internal/domain"
)

const anthropicVersion = "bedrock-2023-05-31"

// bedrockAPI is the minimal Bedrock runtime interface required by Client.
// *bedrockruntime.Client satisfies this interface.
type bedrockAPI interface {
	InvokeModelWithResponseStream(ctx context.Context, in *bedrockruntime.InvokeModelWithResponseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelWithResponseStreamOutput, error)
}

// invokeRequest is the minimal Anthropic messages payload for Bedrock.
type invokeRequest struct {
	AnthropicVersion string               `json:"anthropic_version"`
	MaxTokens        int                  `json:"max_tokens"`
	System           string               `json:"system,omitempty"`
	Messages         []domain.ChatMessage `json:"messages"`
	Temperature      *float64             `json:"temperature,omitempty"`
}

// chunkEvent is the minimal shape of one streamed Anthropic event.
type chunkEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

// Client streams Claude generations from Amazon Bedrock.
type Client struct {
	api         bedrockAPI
	maxTokens   int
	temperature *float64
}

type Option func(*Client)

func WithMaxTokens(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

func WithTemperature(t float64) Option {
	return func(c *Client) {
		c.temperature = &t
	}
}

// New creates a Client over the given Bedrock runtime API.
func New(api bedrockAPI, opts ...Option) (*Client, error) {
	if api == nil {
		return nil, errors.New("bedrock: api must not be nil")
	}
	c := &Client{api: api, maxTokens: 1024}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Stream invokes the model with response streaming and adapts the event
// stream to the agent token-stream contract.
func (c *Client) Stream(ctx context.Context, modelID, system string, messages []domain.ChatMessage) (agent.TokenStream, error) {
	if modelID == "" {
		return nil, errors.New("bedrock: model id must not be empty")
	}
	if len(messages) == 0 {
		return nil, errors.New("bedrock: messages must not be empty")
	}

	body, err := json.Marshal(invokeRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        c.maxTokens,
		System:           system,
		Messages:         messages,
		Temperature:      c.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock: marshal request: %w", err)
	}

	out, err := c.api.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     aws.String(modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock: invoke model: %w", err)
	}
	return &tokenStream{events: out.GetStream()}, nil
}

// tokenStream adapts the SDK event stream. Recv skips non-text events and
// returns io.EOF once the event channel closes cleanly.
type tokenStream struct {
	events *bedrockruntime.InvokeModelWithResponseStreamEventStream
}

func (s *tokenStream) Recv() (string, error) {
	for event := range s.events.Events() {
		chunk, ok := event.(*brtypes.ResponseStreamMemberChunk)
		if !ok || chunk.Value.Bytes == nil {
			continue
		}
		var evt chunkEvent
		if err := json.Unmarshal(chunk.Value.Bytes, &evt); err != nil {
			continue
		}
		if evt.Type == "content_block_delta" && evt.Delta.Type == "text_delta" && evt.Delta.Text != "" {
			return evt.Delta.Text, nil
		}
	}
	if err := s.events.Err(); err != nil {
		return "", fmt.Errorf("bedrock: response stream: %w", err)
	}
	return "", io.EOF
}

func (s *tokenStream) Close() error {
	return s.events.Close()
}
