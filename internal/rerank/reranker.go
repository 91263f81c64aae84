// Package rerank reorders merged candidates with the cross-encoder
// reranking service.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/medsage/medsage-api/internal/apperr"
	"github.com/medsage/medsage-api/internal/domain"
	"github.com/medsage/medsage-api/internal/resilience"
)

// maxCharsPerText bounds how much of each candidate is sent to the
// cross-encoder; beyond this the model truncates anyway.
const maxCharsPerText = 512

// Client calls the reranking inference server.
type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

func NewClient(url, apiKey string, timeout time.Duration) *Client {
	return &Client{url: url, apiKey: apiKey, httpClient: &http.Client{Timeout: timeout}}
}

type scoreRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type TextScore struct {
	Index int     `json:"index"`
	Score float32 `json:"score"`
}

// Score asks the cross-encoder to score each text against the query.
func (c *Client) Score(ctx context.Context, query string, texts []string) ([]TextScore, error) {
	payload, err := json.Marshal(scoreRequest{Query: query, Texts: texts})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rerank server returned %d: %s", resp.StatusCode, body)
	}

	var scores []TextScore
	if err := json.Unmarshal(body, &scores); err != nil {
		return nil, err
	}
	return scores, nil
}

// Reranker applies cross-source reranking and keeps the top candidates.
type Reranker struct {
	client   *Client
	topCount int
	breaker  *resilience.Breaker
}

func NewReranker(client *Client, topCount int, breaker *resilience.Breaker) *Reranker {
	return &Reranker{client: client, topCount: topCount, breaker: breaker}
}

// Rerank rescores the candidates against the query and returns them sorted
// by the new scores, truncated to the configured count. Candidate identity,
// text, and source attribution pass through unchanged. A reranker failure is
// an upstream error for the caller to handle.
func (r *Reranker) Rerank(ctx context.Context, queryText string, candidates []domain.Candidate) ([]domain.Candidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	if queryText == "" {
		return nil, apperr.Validation("rerank query must not be empty")
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = truncate(c.Text, maxCharsPerText)
	}

	var scores []TextScore
	err := r.breaker.Execute(func() error {
		var err error
		scores, err = r.client.Score(ctx, queryText, texts)
		return err
	})
	if err != nil {
		return nil, apperr.Upstream("rerank", err)
	}

	out := make([]domain.Candidate, len(candidates))
	copy(out, candidates)
	for _, s := range scores {
		if s.Index < 0 || s.Index >= len(out) {
			continue
		}
		out[s.Index].Score = s.Score
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if r.topCount > 0 && len(out) > r.topCount {
		out = out[:r.topCount]
	}
	return out, nil
}

// truncate cuts s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
