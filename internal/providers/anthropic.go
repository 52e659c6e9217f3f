package providers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicConfig configures the Anthropic-backed completer.
type AnthropicConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxRetries int
	RetryDelay time.Duration
}

// AnthropicProvider adapts the Anthropic SDK to ChatCompleter.
// Safe for concurrent use.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
	retry  RetryConfig
}

// NewAnthropicProvider creates the provider, applying defaults for optional
// configuration.
func NewAnthropicProvider(config AnthropicConfig) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if config.Model == "" {
		config.Model = "claude-sonnet-4-20250514"
	}

	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicProvider{
		client: anthropic.NewClient(options...),
		model:  config.Model,
		retry:  RetryConfig{MaxRetries: config.MaxRetries, RetryDelay: config.RetryDelay},
	}, nil
}

// Model returns the configured model identifier.
func (p *AnthropicProvider) Model() string {
	return p.model
}

// Complete sends one prompt and collects the text blocks of the reply.
func (p *AnthropicProvider) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Type: "text", Text: req.System},
		}
	}

	return withRetries(ctx, p.retry, func() (*CompletionResponse, error) {
		msg, err := p.client.Messages.New(ctx, params)
		if err != nil {
			return nil, err
		}
		var text strings.Builder
		for _, block := range msg.Content {
			if block.Type == "text" {
				text.WriteString(block.Text)
			}
		}
		return &CompletionResponse{
			Text:         text.String(),
			Model:        string(msg.Model),
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		}, nil
	})
}

var _ ChatCompleter = (*AnthropicProvider)(nil)
