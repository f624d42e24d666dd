package httpio

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coriolis-labs/dataflow"
)

type item struct {
	ID int `json:"id"`
}

func TestNewPollingSourceEmitsDecodedItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]item{{ID: 1}, {ID: 2}})
	}))
	defer srv.Close()

	src := NewPollingSource[item]("poll", srv.URL, PollOptions{
		Interval: 10 * time.Millisecond,
		MaxPolls: 1,
	}, JSONArrayDecode[item])

	var mu sync.Mutex
	var got []item
	sink := dataflow.NewSink[item]("sink", func(ctx context.Context, v item) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, v)
		return nil
	})

	b := dataflow.NewBuilder()
	b.AddNode(src)
	b.AddNode(sink)
	b.Connect("poll", "sink")
	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := g.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 2 {
		t.Fatalf("got %v", got)
	}
}

func TestNewPollingSourceFailsOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	src := NewPollingSource[item]("poll", srv.URL, PollOptions{
		Interval: 10 * time.Millisecond,
		MaxPolls: 1,
	}, JSONArrayDecode[item])

	sink := dataflow.NewSink[item]("sink", func(ctx context.Context, v item) error { return nil })

	b := dataflow.NewBuilder()
	b.AddNode(src)
	b.AddNode(sink)
	b.Connect("poll", "sink")
	g, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := g.Run(ctx); err == nil {
		t.Fatal("expected Run to fail for a non-2xx polling response")
	}
}
