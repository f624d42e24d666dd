package llmlookup

import (
	"context"
	"testing"
)

// These clients build a provider SDK client internally, so without a live
// API key the only behavior exercisable offline is construction and the
// missing-key guard in Complete.

func TestNewAnthropicClientDefaultsModelName(t *testing.T) {
	c := NewAnthropicClient("key", "")
	if c.modelName == "" {
		t.Fatal("expected a default model name")
	}

	withModel := NewAnthropicClient("key", "claude-3-haiku")
	if withModel.modelName != "claude-3-haiku" {
		t.Fatalf("expected explicit model name preserved, got %q", withModel.modelName)
	}
}

func TestAnthropicClientRequiresAPIKey(t *testing.T) {
	c := NewAnthropicClient("", "")
	if _, err := c.Complete(context.Background(), "", "hi"); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestNewOpenAIClientDefaultsModelName(t *testing.T) {
	c := NewOpenAIClient("key", "")
	if c.modelName == "" {
		t.Fatal("expected a default model name")
	}

	withModel := NewOpenAIClient("key", "gpt-4o-mini")
	if withModel.modelName != "gpt-4o-mini" {
		t.Fatalf("expected explicit model name preserved, got %q", withModel.modelName)
	}
}

func TestOpenAIClientRequiresAPIKey(t *testing.T) {
	c := NewOpenAIClient("", "")
	if _, err := c.Complete(context.Background(), "", "hi"); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestNewGoogleClientDefaultsModelName(t *testing.T) {
	c := NewGoogleClient("key", "")
	if c.modelName == "" {
		t.Fatal("expected a default model name")
	}

	withModel := NewGoogleClient("key", "gemini-2.5-pro")
	if withModel.modelName != "gemini-2.5-pro" {
		t.Fatalf("expected explicit model name preserved, got %q", withModel.modelName)
	}
}

func TestGoogleClientRequiresAPIKey(t *testing.T) {
	c := NewGoogleClient("", "")
	if _, err := c.Complete(context.Background(), "", "hi"); err == nil {
		t.Fatal("expected error for missing API key")
	}
}
