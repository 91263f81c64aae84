package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/medsage/medsage-api/internal/apperr"
)

type payload struct {
	Value string `json:"value"`
}

func mustTemplate(t *testing.T) *KeyTemplate {
	t.Helper()
	tmpl, err := ParseKeyTemplate("test.{id}", "id")
	if err != nil {
		t.Fatalf("ParseKeyTemplate failed: %v", err)
	}
	return tmpl
}

func countingFetch(calls *int, err error) FetchFunc[payload] {
	return func(ctx context.Context, args map[string]string) (payload, error) {
		*calls++
		return payload{Value: "fetched-" + args["id"]}, err
	}
}

func TestCachedMemoryBackendHitAndMiss(t *testing.T) {
	backend, err := NewMemoryBackend(16, time.Minute)
	if err != nil {
		t.Fatalf("NewMemoryBackend failed: %v", err)
	}

	var calls int
	fetch, err := Cached(mustTemplate(t), backend, time.Minute, countingFetch(&calls, nil))
	if err != nil {
		t.Fatalf("Cached failed: %v", err)
	}

	ctx := context.Background()
	first, err := fetch(ctx, map[string]string{"id": "a"})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	second, err := fetch(ctx, map[string]string{"id": "a"})
	if err != nil {
		t.Fatalf("cached fetch failed: %v", err)
	}
	if first != second {
		t.Errorf("cache hit returned different value: %v vs %v", first, second)
	}
	if calls != 1 {
		t.Errorf("expected one underlying call, got %d", calls)
	}

	if _, err := fetch(ctx, map[string]string{"id": "b"}); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if calls != 2 {
		t.Errorf("distinct key must miss, got %d calls", calls)
	}
}

func TestCachedRedisBackendRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	backend := NewRedisBackendFromClient(client, time.Minute)

	var calls int
	fetch, err := Cached(mustTemplate(t), backend, time.Minute, countingFetch(&calls, nil))
	if err != nil {
		t.Fatalf("Cached failed: %v", err)
	}

	ctx := context.Background()
	if _, err := fetch(ctx, map[string]string{"id": "a"}); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if _, err := fetch(ctx, map[string]string{"id": "a"}); err != nil {
		t.Fatalf("cached fetch failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected one underlying call, got %d", calls)
	}
	if !mr.Exists("test.a") {
		t.Error("expected key test.a in redis")
	}

	if err := backend.Delete(ctx, "test.a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := fetch(ctx, map[string]string{"id": "a"}); err != nil {
		t.Fatalf("fetch after delete failed: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected refetch after delete, got %d calls", calls)
	}
}

func TestCachedRedisOutageDegradesToMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	backend := NewRedisBackendFromClient(client, time.Minute)

	var calls int
	fetch, err := Cached(mustTemplate(t), backend, time.Minute, countingFetch(&calls, nil))
	if err != nil {
		t.Fatalf("Cached failed: %v", err)
	}

	mr.Close()

	got, err := fetch(context.Background(), map[string]string{"id": "a"})
	if err != nil {
		t.Fatalf("cache outage must not fail the fetch: %v", err)
	}
	if got.Value != "fetched-a" {
		t.Errorf("unexpected value %+v", got)
	}
}

func TestCachedFetchErrorIsNotStored(t *testing.T) {
	backend, err := NewMemoryBackend(16, time.Minute)
	if err != nil {
		t.Fatalf("NewMemoryBackend failed: %v", err)
	}

	fetchErr := errors.New("upstream down")
	var calls int
	fetch, err := Cached(mustTemplate(t), backend, time.Minute, countingFetch(&calls, fetchErr))
	if err != nil {
		t.Fatalf("Cached failed: %v", err)
	}

	ctx := context.Background()
	if _, err := fetch(ctx, map[string]string{"id": "a"}); !errors.Is(err, fetchErr) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if _, err := fetch(ctx, map[string]string{"id": "a"}); !errors.Is(err, fetchErr) {
		t.Fatalf("expected fetch error again, got %v", err)
	}
	if calls != 2 {
		t.Errorf("failed results must not be cached, got %d calls", calls)
	}
}

func TestCachedRejectsUnknownBackend(t *testing.T) {
	if _, err := Cached(mustTemplate(t), struct{}{}, time.Minute, countingFetch(new(int), nil)); !errors.Is(err, apperr.ErrConfiguration) {
		t.Errorf("expected ErrConfiguration for unsupported backend, got %v", err)
	}
}
