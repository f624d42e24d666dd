package llmlookup

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GoogleClient implements ChatClient against Google's Gemini API.
type GoogleClient struct {
	apiKey    string
	modelName string
}

// NewGoogleClient builds a ChatClient for modelName (e.g.
// "gemini-2.5-flash"); empty modelName uses that default.
func NewGoogleClient(apiKey, modelName string) *GoogleClient {
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}
	return &GoogleClient{apiKey: apiKey, modelName: modelName}
}

func (c *GoogleClient) Complete(ctx context.Context, systemPrompt, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", errors.New("llmlookup: google API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return "", fmt.Errorf("llmlookup: create google client: %w", err)
	}
	defer func() { _ = client.Close() }()

	genModel := client.GenerativeModel(c.modelName)
	if systemPrompt != "" {
		genModel.SystemInstruction = genai.NewUserContent(genai.Text(systemPrompt))
	}

	resp, err := genModel.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("llmlookup: google request: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}

	var out string
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			out += string(text)
		}
	}
	return out, nil
}
