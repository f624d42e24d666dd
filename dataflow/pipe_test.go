package dataflow

import (
	"context"
	"errors"
	"testing"
)

func TestMaterializedPipe(t *testing.T) {
	t.Run("replays full slice on each Each call", func(t *testing.T) {
		p := NewMaterializedPipe("nums", []int{1, 2, 3})
		if !p.Replayable() {
			t.Fatal("expected Replayable to report true")
		}

		for attempt := 0; attempt < 2; attempt++ {
			var got []int
			err := p.Each(context.Background(), func(v int) error {
				got = append(got, v)
				return nil
			})
			if err != nil {
				t.Fatalf("attempt %d: unexpected error: %v", attempt, err)
			}
			if len(got) != 3 || got[0] != 1 || got[2] != 3 {
				t.Fatalf("attempt %d: got %v", attempt, got)
			}
		}
	})

	t.Run("stops on first fn error", func(t *testing.T) {
		p := NewMaterializedPipe("nums", []int{1, 2, 3})
		boom := errors.New("boom")
		count := 0
		err := p.Each(context.Background(), func(int) error {
			count++
			if count == 2 {
				return boom
			}
			return nil
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		if count != 2 {
			t.Fatalf("expected 2 calls before stopping, got %d", count)
		}
	})

	t.Run("respects cancellation", func(t *testing.T) {
		p := NewMaterializedPipe("nums", []int{1, 2, 3})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := p.Each(ctx, func(int) error { return nil })
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})
}

func TestStreamingPipe(t *testing.T) {
	t.Run("delivers items in order then closes cleanly", func(t *testing.T) {
		pipe, w := NewStreamingPipe[string]("words", 2)
		if pipe.Replayable() {
			t.Fatal("expected Replayable to report false")
		}

		go func() {
			_ = w.Send(context.Background(), "a")
			_ = w.Send(context.Background(), "b")
			w.Close()
		}()

		got, err := Collect(context.Background(), pipe)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 2 || got[0] != "a" || got[1] != "b" {
			t.Fatalf("got %v", got)
		}
	})

	t.Run("surfaces producer error to the single consumer", func(t *testing.T) {
		pipe, w := NewStreamingPipe[int]("nums", 1)
		boom := errors.New("producer failed")

		go func() {
			_ = w.Send(context.Background(), 1)
			w.CloseWithError(boom)
		}()

		_, err := Collect(context.Background(), pipe)
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
	})

	t.Run("rejects a second Each call", func(t *testing.T) {
		pipe, w := NewStreamingPipe[int]("nums", 0)
		w.Close()

		if _, err := Collect(context.Background(), pipe); err != nil {
			t.Fatalf("first Each: unexpected error: %v", err)
		}
		if _, err := Collect(context.Background(), pipe); err == nil {
			t.Fatal("expected an error on second Each call")
		}
	})
}
