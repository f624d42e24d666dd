package llmlookup

import (
	"context"
	"errors"
	"fmt"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIClient implements ChatClient against OpenAI's Chat Completions API.
type OpenAIClient struct {
	apiKey    string
	modelName string
}

// NewOpenAIClient builds a ChatClient for modelName (e.g. "gpt-4o"); empty
// modelName uses that default.
func NewOpenAIClient(apiKey, modelName string) *OpenAIClient {
	if modelName == "" {
		modelName = "gpt-4o"
	}
	return &OpenAIClient{apiKey: apiKey, modelName: modelName}
}

func (c *OpenAIClient) Complete(ctx context.Context, systemPrompt, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", errors.New("llmlookup: OpenAI API key is required")
	}

	client := openaisdk.NewClient(option.WithAPIKey(c.apiKey))
	var messages []openaisdk.ChatCompletionMessageParamUnion
	if systemPrompt != "" {
		messages = append(messages, openaisdk.SystemMessage(systemPrompt))
	}
	messages = append(messages, openaisdk.UserMessage(prompt))

	resp, err := client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model:    openaisdk.ChatModel(c.modelName),
		Messages: messages,
	})
	if err != nil {
		return "", fmt.Errorf("llmlookup: openai request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
