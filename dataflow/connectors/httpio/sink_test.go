package httpio

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/coriolis-labs/dataflow"
)

func TestNewJSONPostSinkPostsEachItem(t *testing.T) {
	var mu sync.Mutex
	var received []item

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected Content-Type application/json, got %q", ct)
		}
		var v item
		if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		mu.Lock()
		received = append(received, v)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewJSONPostSink[item]("sink", srv.URL, PostOptions{})
	src := dataflow.NewSource[item]("src", func(ctx context.Context) (dataflow.DataPipe[item], error) {
		return dataflow.NewMaterializedPipe("src", []item{{ID: 1}, {ID: 2}}), nil
	})

	b := dataflow.NewBuilder()
	b.AddNode(src)
	b.AddNode(sink)
	b.Connect("src", "sink")
	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := g.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("expected 2 POSTs, got %d", len(received))
	}
}

func TestNewJSONPostSinkFailsOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	sink := NewJSONPostSink[item]("sink", srv.URL, PostOptions{})
	src := dataflow.NewSource[item]("src", func(ctx context.Context) (dataflow.DataPipe[item], error) {
		return dataflow.NewMaterializedPipe("src", []item{{ID: 1}}), nil
	})

	b := dataflow.NewBuilder()
	b.AddNode(src)
	b.AddNode(sink)
	b.Connect("src", "sink")
	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := g.Run(context.Background()); err == nil {
		t.Fatal("expected Run to fail for a non-2xx POST response")
	}
}
