package llmlookup

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// mockChatClient returns Responses in sequence, repeating the last one once
// exhausted, and records every prompt it was sent.
type mockChatClient struct {
	mu        sync.Mutex
	Responses []string
	Err       error
	Prompts   []string
	next      int
}

func (m *mockChatClient) Complete(ctx context.Context, systemPrompt, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Prompts = append(m.Prompts, prompt)
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Responses) == 0 {
		return "", nil
	}
	idx := m.next
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.next++
	}
	return m.Responses[idx], nil
}

func TestNewLookupRendersPromptAndParsesResponse(t *testing.T) {
	client := &mockChatClient{Responses: []string{"42"}}
	r := Resolver[string, int]{
		Client:       client,
		SystemPrompt: "classify the input",
		Prompt:       func(key string) string { return "key: " + key },
		Parse: func(text string) (int, error) {
			return strconv.Atoi(strings.TrimSpace(text))
		},
	}
	lookup := NewLookup(r)

	got, err := lookup(context.Background(), "seven")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	if len(client.Prompts) != 1 || client.Prompts[0] != "key: seven" {
		t.Fatalf("expected rendered prompt 'key: seven', got %v", client.Prompts)
	}
}

func TestNewLookupPropagatesClientError(t *testing.T) {
	boom := errors.New("rate limited")
	client := &mockChatClient{Err: boom}
	r := Resolver[string, string]{
		Client: client,
		Prompt: func(key string) string { return key },
		Parse:  func(text string) (string, error) { return text, nil },
	}
	lookup := NewLookup(r)

	_, err := lookup(context.Background(), "anything")
	if !errors.Is(err, boom) {
		t.Fatalf("expected client error propagated, got %v", err)
	}
}

func TestNewLookupPropagatesParseError(t *testing.T) {
	client := &mockChatClient{Responses: []string{"not-a-number"}}
	parseErr := errors.New("cannot parse")
	r := Resolver[string, int]{
		Client: client,
		Prompt: func(key string) string { return key },
		Parse: func(text string) (int, error) {
			return 0, parseErr
		},
	}
	lookup := NewLookup(r)

	_, err := lookup(context.Background(), "k")
	if !errors.Is(err, parseErr) {
		t.Fatalf("expected parse error propagated, got %v", err)
	}
}

func TestNewLookupResolvesDistinctKeysIndependently(t *testing.T) {
	client := &mockChatClient{Responses: []string{"10", "20", "30"}}
	r := Resolver[int, int]{
		Client: client,
		Prompt: func(key int) string { return fmt.Sprintf("resolve %d", key) },
		Parse: func(text string) (int, error) {
			return strconv.Atoi(text)
		},
	}
	lookup := NewLookup(r)

	ctx := context.Background()
	for i, want := range []int{10, 20, 30} {
		got, err := lookup(ctx, i)
		if err != nil {
			t.Fatalf("lookup %d: %v", i, err)
		}
		if got != want {
			t.Fatalf("lookup %d: expected %d, got %d", i, want, got)
		}
	}
	if len(client.Prompts) != 3 {
		t.Fatalf("expected 3 prompts sent, got %d", len(client.Prompts))
	}
}
