// Package httpio provides HTTP-backed Source and Sink nodes: a polling
// Source that turns successive GET responses into a stream of decoded JSON
// items, and a Sink that POSTs each item as JSON to a target URL.
package httpio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/coriolis-labs/dataflow"
)

// PollOptions configures a polling Source.
type PollOptions struct {
	// Interval between successive polls. Required.
	Interval time.Duration
	// MaxPolls bounds the number of requests issued before the source
	// finishes; zero means poll until ctx is cancelled.
	MaxPolls int
	// Headers are set on every request.
	Headers map[string]string
	// Client is the HTTP client to use; http.DefaultClient if nil.
	Client *http.Client
}

// Decode turns one HTTP response body into a batch of items. Implementations
// typically unmarshal a JSON array; (*json.Decoder).Decode works directly as
// a Decode for a response whose body is exactly one JSON value.
type Decode[T any] func(body io.Reader) ([]T, error)

// JSONArrayDecode decodes a response body containing a single JSON array of T.
func JSONArrayDecode[T any](body io.Reader) ([]T, error) {
	var items []T
	if err := json.NewDecoder(body).Decode(&items); err != nil {
		return nil, fmt.Errorf("httpio: decode response body: %w", err)
	}
	return items, nil
}

// NewPollingSource builds a dataflow.Node that GETs url on a fixed interval,
// decodes each response with decode, and emits the resulting items in order.
// A non-2xx response or a decode failure ends the source with an error.
func NewPollingSource[T any](id, url string, opts PollOptions, decode Decode[T]) dataflow.Node {
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	return dataflow.NewSource[T](id, func(ctx context.Context) (dataflow.DataPipe[T], error) {
		pipe, writer := dataflow.NewStreamingPipe[T](id, 0)
		go func() {
			ticker := time.NewTicker(opts.Interval)
			defer ticker.Stop()

			polls := 0
			for {
				items, err := fetch(ctx, opts, url, decode)
				if err != nil {
					writer.CloseWithError(err)
					return
				}
				for _, item := range items {
					if sendErr := writer.Send(ctx, item); sendErr != nil {
						return
					}
				}

				polls++
				if opts.MaxPolls > 0 && polls >= opts.MaxPolls {
					writer.Close()
					return
				}

				select {
				case <-ctx.Done():
					writer.Close()
					return
				case <-ticker.C:
				}
			}
		}()
		return pipe, nil
	})
}

func fetch[T any](ctx context.Context, opts PollOptions, url string, decode Decode[T]) ([]T, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("httpio: build request: %w", err)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := opts.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpio: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("httpio: unexpected status %d from %s", resp.StatusCode, url)
	}
	return decode(resp.Body)
}
