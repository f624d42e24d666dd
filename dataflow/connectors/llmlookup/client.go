// Package llmlookup provides dataflow.LookupFunc implementations backed by
// an LLM completion: a key is rendered to a prompt, the model's text
// response is parsed into the enrichment value. Useful for classification,
// extraction, or summarization steps embedded as a Lookup node.
package llmlookup

import "context"

// ChatClient sends a single prompt to a provider and returns its text
// response. Deliberately narrower than a full multi-turn chat interface —
// a Lookup resolves one key to one value, not a conversation.
type ChatClient interface {
	Complete(ctx context.Context, systemPrompt, prompt string) (string, error)
}

// PromptFunc renders a lookup key into the user-turn prompt sent to the model.
type PromptFunc[K any] func(key K) string

// ParseFunc turns the model's raw text response into the resolved value.
type ParseFunc[V any] func(text string) (V, error)

// Resolver bundles a ChatClient with the prompt/parse functions needed to
// build a dataflow.LookupFunc via NewLookup.
type Resolver[K, V any] struct {
	Client       ChatClient
	SystemPrompt string
	Prompt       PromptFunc[K]
	Parse        ParseFunc[V]
}

// NewLookup returns a function suitable for dataflow.NewLookup's lookup
// parameter: it renders key via r.Prompt, sends it (with r.SystemPrompt) to
// r.Client, and parses the response via r.Parse.
func NewLookup[K, V any](r Resolver[K, V]) func(ctx context.Context, key K) (V, error) {
	return func(ctx context.Context, key K) (V, error) {
		var zero V
		text, err := r.Client.Complete(ctx, r.SystemPrompt, r.Prompt(key))
		if err != nil {
			return zero, err
		}
		return r.Parse(text)
	}
}
