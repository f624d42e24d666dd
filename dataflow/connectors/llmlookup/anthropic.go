package llmlookup

import (
	"context"
	"errors"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient implements ChatClient against Anthropic's Messages API.
type AnthropicClient struct {
	apiKey    string
	modelName string
}

// NewAnthropicClient builds a ChatClient for modelName (e.g.
// "claude-sonnet-4-5-20250929"); empty modelName uses that default.
func NewAnthropicClient(apiKey, modelName string) *AnthropicClient {
	if modelName == "" {
		modelName = "claude-sonnet-4-5-20250929"
	}
	return &AnthropicClient{apiKey: apiKey, modelName: modelName}
}

func (c *AnthropicClient) Complete(ctx context.Context, systemPrompt, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", errors.New("llmlookup: anthropic API key is required")
	}

	client := anthropicsdk.NewClient(option.WithAPIKey(c.apiKey))
	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(c.modelName),
		MaxTokens: 1024,
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(prompt)),
		},
	}
	if systemPrompt != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: systemPrompt}}
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("llmlookup: anthropic request: %w", err)
	}

	var out string
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropicsdk.TextBlock); ok {
			out += text.Text
		}
	}
	return out, nil
}
