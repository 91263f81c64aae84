package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCounter(t *testing.T, maxSize int, trimProb float64) (*QueryCounter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewQueryCounter(client, maxSize, trimProb), mr
}

func TestBumpAndTopOrdering(t *testing.T) {
	counter, _ := newTestCounter(t, 100, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := counter.Bump(ctx, "queries", "aspirin"); err != nil {
			t.Fatalf("Bump failed: %v", err)
		}
	}
	counter.Bump(ctx, "queries", "ibuprofen")
	counter.Bump(ctx, "queries", "ibuprofen")
	counter.Bump(ctx, "queries", "melatonin")

	top, err := counter.Top(ctx, "queries", 2)
	if err != nil {
		t.Fatalf("Top failed: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("expected 2 members, got %d", len(top))
	}
	if top[0] != "aspirin" || top[1] != "ibuprofen" {
		t.Errorf("unexpected ranking %v", top)
	}
}

func TestTopTrimsWhenForced(t *testing.T) {
	counter, mr := newTestCounter(t, 2, 1.0)
	ctx := context.Background()

	for i, member := range []string{"low", "mid", "high"} {
		for j := 0; j <= i; j++ {
			counter.Bump(ctx, "queries", member)
		}
	}

	top, err := counter.Top(ctx, "queries", 10)
	if err != nil {
		t.Fatalf("Top failed: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("expected trim to maxSize 2, got %v", top)
	}
	if top[0] != "high" || top[1] != "mid" {
		t.Errorf("trim dropped the wrong members: %v", top)
	}
	if members, _ := mr.ZMembers("queries"); len(members) != 2 {
		t.Errorf("expected 2 members left in redis, got %v", members)
	}
}

func TestTopEmptySet(t *testing.T) {
	counter, _ := newTestCounter(t, 10, 0)

	top, err := counter.Top(context.Background(), "queries", 5)
	if err != nil {
		t.Fatalf("Top failed: %v", err)
	}
	if len(top) != 0 {
		t.Errorf("expected empty ranking, got %v", top)
	}
}
