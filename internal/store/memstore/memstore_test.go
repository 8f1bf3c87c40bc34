package memstore

import (
	"context"
	"testing"
)

func TestQueuePopDedupesWithinOneCall(t *testing.T) {
	ctx := context.Background()
	q := NewQueue()
	_ = q.Push(ctx, "job-a")
	_ = q.Push(ctx, "job-a")
	_ = q.Push(ctx, "job-b")

	ids, err := q.Pop(ctx, 10)
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 distinct ids, got %v", ids)
	}
}

func TestQueuePopClampsToTen(t *testing.T) {
	ctx := context.Background()
	q := NewQueue()
	for i := 0; i < 15; i++ {
		_ = q.Push(ctx, "job")
	}
	ids, err := q.Pop(ctx, 20)
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	// all duplicates of "job", so only one distinct id is returned even
	// though more than 10 messages were queued.
	if len(ids) != 1 {
		t.Fatalf("expected 1 distinct id, got %v", ids)
	}
	// Only 10 of the 15 messages were taken, so the other 5 remain.
	rest, err := q.Pop(ctx, 20)
	if err != nil {
		t.Fatalf("Pop: %v", err)
	}
	if len(rest) != 1 {
		t.Fatalf("expected the 5 messages beyond the 10-message clamp to remain queued, got %v", rest)
	}
}
