package compress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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

func newTestCompressor(t *testing.T, topN int, handler http.HandlerFunc) *Compressor {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(srv.URL, "", 2*time.Second)
	return NewCompressor(client, 300, 512, topN, resilience.NewBreaker("compress", 3, time.Minute))
}

func respond(w http.ResponseWriter, tokens int, prompts []string, sources []int) {
	var resp Response
	resp.Response.CompressedTokens = tokens
	resp.Response.CompressedPromptList = prompts
	resp.Response.Sources = sources
	json.NewEncoder(w).Encode(resp)
}

func candidates(n int) []domain.Candidate {
	out := make([]domain.Candidate, n)
	for i := range out {
		out[i] = domain.Candidate{
			ID:     fmt.Sprintf("c%d", i),
			Text:   fmt.Sprintf("text %d", i),
			Source: domain.DocumentSource{URL: fmt.Sprintf("https://pubmed.ncbi.nlm.nih.gov/%d", i)},
		}
	}
	return out
}

func TestCompressMapsSurvivingSources(t *testing.T) {
	compressor := newTestCompressor(t, 10, func(w http.ResponseWriter, r *http.Request) {
		var req compressRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.TargetToken != 300 {
			t.Errorf("unexpected target_token %d", req.TargetToken)
		}
		respond(w, 120, []string{"compressed a", "compressed b"}, []int{2, 0})
	})

	cands := candidates(3)
	got, err := compressor.Compress(context.Background(), "q", cands)
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected a compressed context")
	}
	if len(got.PromptSegments) != 2 {
		t.Errorf("expected 2 prompt segments, got %d", len(got.PromptSegments))
	}
	if len(got.RetainedSources) != 2 {
		t.Fatalf("expected 2 retained sources, got %d", len(got.RetainedSources))
	}
	// Sources follow the surviving order reported by the service.
	first := got.RetainedSources[0].(domain.DocumentSource)
	if first.URL != "https://pubmed.ncbi.nlm.nih.gov/2" {
		t.Errorf("unexpected first source %+v", first)
	}
}

func TestCompressZeroTokensMeansNoContext(t *testing.T) {
	compressor := newTestCompressor(t, 10, func(w http.ResponseWriter, r *http.Request) {
		respond(w, 0, nil, nil)
	})

	got, err := compressor.Compress(context.Background(), "q", candidates(2))
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil context for zero compressed tokens, got %+v", got)
	}
}

func TestCompressSkipsOutOfRangeSourceIndices(t *testing.T) {
	compressor := newTestCompressor(t, 10, func(w http.ResponseWriter, r *http.Request) {
		respond(w, 50, []string{"x"}, []int{0, 9, -1, 1})
	})

	got, err := compressor.Compress(context.Background(), "q", candidates(2))
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	if len(got.RetainedSources) != 2 {
		t.Errorf("expected only in-range sources, got %d", len(got.RetainedSources))
	}
}

func TestCompressCapsSourcesAtTopN(t *testing.T) {
	compressor := newTestCompressor(t, 2, func(w http.ResponseWriter, r *http.Request) {
		respond(w, 50, []string{"x"}, []int{0, 1, 2, 3})
	})

	got, err := compressor.Compress(context.Background(), "q", candidates(4))
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	if len(got.RetainedSources) != 2 {
		t.Errorf("expected topN cap of 2, got %d", len(got.RetainedSources))
	}
}

func TestCompressTruncatesLongNodes(t *testing.T) {
	compressor := newTestCompressor(t, 10, func(w http.ResponseWriter, r *http.Request) {
		var req compressRequest
		json.NewDecoder(r.Body).Decode(&req)
		for _, text := range req.ContextTextsList {
			if len(text) > 512 {
				t.Errorf("node of %d chars sent to compressor", len(text))
			}
		}
		respond(w, 10, []string{"x"}, []int{0})
	})

	cands := candidates(1)
	cands[0].Text = strings.Repeat("y", 2048)
	if _, err := compressor.Compress(context.Background(), "q", cands); err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
}

func TestCompressTruncatesNodesOnRuneBoundary(t *testing.T) {
	compressor := newTestCompressor(t, 10, func(w http.ResponseWriter, r *http.Request) {
		var req compressRequest
		json.NewDecoder(r.Body).Decode(&req)
		for _, text := range req.ContextTextsList {
			if !utf8.ValidString(text) {
				t.Errorf("truncation split a rune at the end of %q", text[len(text)-4:])
			}
			if len(text) > 512 {
				t.Errorf("node of %d bytes sent to compressor", len(text))
			}
		}
		respond(w, 10, []string{"x"}, []int{0})
	})

	// The leading byte shifts every µ onto an odd offset, so a plain byte
	// slice at the limit would land mid-rune.
	cands := candidates(1)
	cands[0].Text = "x" + strings.Repeat("µ", 512)
	if _, err := compressor.Compress(context.Background(), "q", cands); err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
}

func TestCompressEmptyInput(t *testing.T) {
	compressor := newTestCompressor(t, 10, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no call expected for empty input")
	})

	got, err := compressor.Compress(context.Background(), "q", nil)
	if err != nil || got != nil {
		t.Errorf("expected nil, nil for empty input, got %v, %v", got, err)
	}
}

func TestCompressUpstreamFailure(t *testing.T) {
	compressor := newTestCompressor(t, 10, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "oom", http.StatusInternalServerError)
	})

	_, err := compressor.Compress(context.Background(), "q", candidates(1))
	if !errors.Is(err, apperr.ErrUpstream) {
		t.Errorf("expected ErrUpstream, got %v", err)
	}
}
