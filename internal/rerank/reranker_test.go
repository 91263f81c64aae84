package rerank

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/medsage/medsage-api/internal/apperr"
	"github.com/medsage/medsage-api/internal/domain"
	"github.com/medsage/medsage-api/internal/resilience"
)

func newTestReranker(t *testing.T, topCount int, handler http.HandlerFunc) *Reranker {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(srv.URL, "", 2*time.Second)
	return NewReranker(client, topCount, resilience.NewBreaker("rerank", 3, time.Minute))
}

func candidates(texts ...string) []domain.Candidate {
	out := make([]domain.Candidate, len(texts))
	for i, text := range texts {
		out[i] = domain.Candidate{
			ID:     text,
			Text:   text,
			Origin: domain.OriginWeb,
			Source: domain.WebSource{URL: "https://example.org/" + text},
		}
	}
	return out
}

func TestRerankReordersByModelScore(t *testing.T) {
	reranker := newTestReranker(t, 10, func(w http.ResponseWriter, r *http.Request) {
		var req scoreRequest
		json.NewDecoder(r.Body).Decode(&req)
		// Reverse the incoming order.
		scores := make([]TextScore, len(req.Texts))
		for i := range req.Texts {
			scores[i] = TextScore{Index: i, Score: float32(i)}
		}
		json.NewEncoder(w).Encode(scores)
	})

	got, err := reranker.Rerank(context.Background(), "q", candidates("a", "b", "c"))
	if err != nil {
		t.Fatalf("Rerank failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(got))
	}
	if got[0].ID != "c" || got[2].ID != "a" {
		t.Errorf("expected reversed order, got %v %v %v", got[0].ID, got[1].ID, got[2].ID)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Errorf("scores not non-increasing at %d", i)
		}
	}
	// Source attribution must ride along with the reordered candidate.
	if src := got[0].Source.(domain.WebSource); src.URL != "https://example.org/c" {
		t.Errorf("source did not follow candidate: %+v", src)
	}
}

func TestRerankTruncatesToTopCount(t *testing.T) {
	reranker := newTestReranker(t, 2, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]TextScore{{Index: 0, Score: 3}, {Index: 1, Score: 2}, {Index: 2, Score: 1}})
	})

	got, err := reranker.Rerank(context.Background(), "q", candidates("a", "b", "c"))
	if err != nil {
		t.Fatalf("Rerank failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected truncation to 2, got %d", len(got))
	}
	if got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("unexpected survivors %v %v", got[0].ID, got[1].ID)
	}
}

func TestRerankTruncatesLongTexts(t *testing.T) {
	reranker := newTestReranker(t, 10, func(w http.ResponseWriter, r *http.Request) {
		var req scoreRequest
		json.NewDecoder(r.Body).Decode(&req)
		for _, text := range req.Texts {
			if len(text) > maxCharsPerText {
				t.Errorf("text of %d chars sent to reranker", len(text))
			}
		}
		json.NewEncoder(w).Encode([]TextScore{{Index: 0, Score: 1}})
	})

	long := strings.Repeat("x", 4*maxCharsPerText)
	got, err := reranker.Rerank(context.Background(), "q", candidates(long))
	if err != nil {
		t.Fatalf("Rerank failed: %v", err)
	}
	// The stored candidate keeps its full text; only the scoring request is cut.
	if len(got[0].Text) != len(long) {
		t.Errorf("candidate text was truncated to %d chars", len(got[0].Text))
	}
}

func TestRerankTruncatesOnRuneBoundary(t *testing.T) {
	reranker := newTestReranker(t, 10, func(w http.ResponseWriter, r *http.Request) {
		var req scoreRequest
		json.NewDecoder(r.Body).Decode(&req)
		for _, text := range req.Texts {
			if !utf8.ValidString(text) {
				t.Errorf("truncation split a rune at the end of %q", text[len(text)-4:])
			}
			if len(text) > maxCharsPerText {
				t.Errorf("text of %d bytes sent to reranker", len(text))
			}
		}
		json.NewEncoder(w).Encode([]TextScore{{Index: 0, Score: 1}})
	})

	// The leading byte shifts every µ onto an odd offset, so a plain byte
	// slice at the limit would land mid-rune.
	long := "x" + strings.Repeat("µ", maxCharsPerText)
	if _, err := reranker.Rerank(context.Background(), "q", candidates(long)); err != nil {
		t.Fatalf("Rerank failed: %v", err)
	}
}

func TestRerankIgnoresOutOfRangeIndices(t *testing.T) {
	reranker := newTestReranker(t, 10, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]TextScore{{Index: 0, Score: 1}, {Index: 7, Score: 99}, {Index: -1, Score: 50}})
	})

	got, err := reranker.Rerank(context.Background(), "q", candidates("a", "b"))
	if err != nil {
		t.Fatalf("Rerank failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].ID != "a" {
		t.Errorf("out-of-range score leaked into ranking: %v", got)
	}
}

func TestRerankEmptyInput(t *testing.T) {
	reranker := newTestReranker(t, 10, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no call expected for empty input")
	})

	got, err := reranker.Rerank(context.Background(), "q", nil)
	if err != nil || got != nil {
		t.Errorf("expected nil, nil for empty input, got %v, %v", got, err)
	}
}

func TestRerankUpstreamFailure(t *testing.T) {
	reranker := newTestReranker(t, 10, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	})

	_, err := reranker.Rerank(context.Background(), "q", candidates("a"))
	if !errors.Is(err, apperr.ErrUpstream) {
		t.Errorf("expected ErrUpstream, got %v", err)
	}
}
