// Package compress shrinks the reranked context into a token budget while
// tracking which candidates survive as sources.
package compress

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/medsage/medsage-api/internal/apperr"
	"github.com/medsage/medsage-api/internal/domain"
	"github.com/medsage/medsage-api/internal/resilience"
)

// Client calls the prompt-compression service.
type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

func NewClient(url, apiKey string, timeout time.Duration) *Client {
	return &Client{url: url, apiKey: apiKey, httpClient: &http.Client{Timeout: timeout}}
}

type compressRequest struct {
	Query            string   `json:"query"`
	TargetToken      int      `json:"target_token"`
	ContextTextsList []string `json:"context_texts_list"`
}

type Response struct {
	Response struct {
		CompressedTokens     int      `json:"compressed_tokens"`
		CompressedPromptList []string `json:"compressed_prompt_list"`
		Sources              []int    `json:"sources"`
	} `json:"response"`
}

// Compress sends the candidate texts for compression toward targetToken.
func (c *Client) Compress(ctx context.Context, query string, targetToken int, texts []string) (*Response, error) {
	payload, err := json.Marshal(compressRequest{
		Query:            query,
		TargetToken:      targetToken,
		ContextTextsList: texts,
	})
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
		return nil, fmt.Errorf("compression server returned %d: %s", resp.StatusCode, body)
	}

	var parsed Response
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}

// Compressor reduces reranked candidates to a compressed context with the
// sources that survived compression.
type Compressor struct {
	client          *Client
	targetToken     int
	maxCharsPerNode int
	topNSources     int
	breaker         *resilience.Breaker
}

func NewCompressor(client *Client, targetToken, maxCharsPerNode, topNSources int, breaker *resilience.Breaker) *Compressor {
	return &Compressor{
		client:          client,
		targetToken:     targetToken,
		maxCharsPerNode: maxCharsPerNode,
		topNSources:     topNSources,
		breaker:         breaker,
	}
}

// Compress sends candidate texts to the compression service and maps the
// surviving indices back to their sources in surviving order. A response of
// zero compressed tokens means the context carried nothing relevant, which
// surfaces as a nil result. A service failure is an upstream error.
func (c *Compressor) Compress(ctx context.Context, queryText string, cands []domain.Candidate) (*domain.CompressedContext, error) {
	if len(cands) == 0 {
		return nil, nil
	}

	texts := make([]string, len(cands))
	for i, cand := range cands {
		texts[i] = truncate(cand.Text, c.maxCharsPerNode)
	}

	var resp *Response
	err := c.breaker.Execute(func() error {
		var err error
		resp, err = c.client.Compress(ctx, queryText, c.targetToken, texts)
		return err
	})
	if err != nil {
		return nil, apperr.Upstream("compress", err)
	}

	if resp.Response.CompressedTokens == 0 {
		return nil, nil
	}

	sources := make([]domain.SourceRecord, 0, len(resp.Response.Sources))
	for _, idx := range resp.Response.Sources {
		if idx < 0 || idx >= len(cands) {
			continue
		}
		sources = append(sources, cands[idx].Source)
		if c.topNSources > 0 && len(sources) == c.topNSources {
			break
		}
	}

	return &domain.CompressedContext{
		PromptSegments:  resp.Response.CompressedPromptList,
		RetainedSources: sources,
	}, nil
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
