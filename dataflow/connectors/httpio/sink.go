package httpio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/coriolis-labs/dataflow"
)

// PostOptions configures a POSTing Sink.
type PostOptions struct {
	// Headers are set on every request; Content-Type defaults to
	// "application/json" if not present.
	Headers map[string]string
	// Client is the HTTP client to use; http.DefaultClient if nil.
	Client *http.Client
}

// NewJSONPostSink builds a dataflow.Node that POSTs each item to url as a
// JSON body. A non-2xx response is returned as an error, which the node's
// error handling policy (retry, dead-letter, fail) then applies.
func NewJSONPostSink[T any](id, url string, opts PostOptions) dataflow.Node {
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	return dataflow.NewSink[T](id, func(ctx context.Context, item T) error {
		body, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("httpio: marshal item: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("httpio: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range opts.Headers {
			req.Header.Set(k, v)
		}

		resp, err := opts.Client.Do(req)
		if err != nil {
			return fmt.Errorf("httpio: request failed: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("httpio: unexpected status %d from %s", resp.StatusCode, url)
		}
		return nil
	})
}
