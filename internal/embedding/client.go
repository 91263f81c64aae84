// Package embedding turns query text into dense and sparse query vectors
// by calling the text-embedding inference endpoints.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/medsage/medsage-api/internal/domain"
)

// Client calls the dense and sparse embedding inference servers over HTTP.
type Client struct {
	denseURL   string
	denseKey   string
	sparseURL  string
	sparseKey  string
	batchSize  int
	httpClient *http.Client
}

// NewClient creates an embedding client. batchSize bounds how many texts
// go into a single inference request.
func NewClient(denseURL, denseKey, sparseURL, sparseKey string, batchSize int, timeout time.Duration) *Client {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &Client{
		denseURL:   denseURL,
		denseKey:   denseKey,
		sparseURL:  sparseURL,
		sparseKey:  sparseKey,
		batchSize:  batchSize,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type embedRequest struct {
	Inputs []string `json:"inputs"`
}

type sparseTerm struct {
	Index uint32  `json:"index"`
	Value float32 `json:"value"`
}

// Dense embeds a batch of texts into dense vectors, preserving input order.
func (c *Client) Dense(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))
	err := c.eachBatch(ctx, texts, func(start int, batch []string) error {
		var vectors [][]float32
		if err := c.post(ctx, c.denseURL, c.denseKey, batch, &vectors); err != nil {
			return err
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("dense embedding returned %d vectors for %d inputs", len(vectors), len(batch))
		}
		for j, v := range vectors {
			results[start+j] = v
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Sparse embeds a batch of texts into sparse term-weight vectors,
// preserving input order.
func (c *Client) Sparse(ctx context.Context, texts []string) ([]domain.SparseEmbedding, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([]domain.SparseEmbedding, len(texts))
	err := c.eachBatch(ctx, texts, func(start int, batch []string) error {
		var terms [][]sparseTerm
		if err := c.post(ctx, c.sparseURL, c.sparseKey, batch, &terms); err != nil {
			return err
		}
		if len(terms) != len(batch) {
			return fmt.Errorf("sparse embedding returned %d vectors for %d inputs", len(terms), len(batch))
		}
		for j, tt := range terms {
			emb := domain.SparseEmbedding{
				Indices: make([]uint32, 0, len(tt)),
				Weights: make([]float32, 0, len(tt)),
			}
			for _, t := range tt {
				emb.Indices = append(emb.Indices, t.Index)
				emb.Weights = append(emb.Weights, t.Value)
			}
			results[start+j] = emb
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// BuildQuery embeds the query text with both models concurrently. A failed
// modality is logged and left empty so retrieval can still run on the
// surviving one; a query with neither modality is reported empty by
// SearchQuery.IsEmpty.
func (c *Client) BuildQuery(ctx context.Context, text string) *domain.SearchQuery {
	query := &domain.SearchQuery{Text: text}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		vectors, err := c.Dense(ctx, []string{text})
		if err != nil {
			log.Printf("[Embedding] Dense embedding failed: %v", err)
			return
		}
		if len(vectors) == 1 {
			query.Dense = vectors[0]
		}
	}()
	go func() {
		defer wg.Done()
		embs, err := c.Sparse(ctx, []string{text})
		if err != nil {
			log.Printf("[Embedding] Sparse embedding failed: %v", err)
			return
		}
		if len(embs) == 1 {
			query.Sparse = embs[0]
		}
	}()
	wg.Wait()

	return query
}

// eachBatch splits texts into sub-batches and processes them concurrently,
// reassembling results by original index inside fn.
func (c *Client) eachBatch(ctx context.Context, texts []string, fn func(start int, batch []string) error) error {
	numBatches := (len(texts) + c.batchSize - 1) / c.batchSize
	if numBatches > 1 {
		log.Printf("[Embedding] Splitting %d texts into %d batches (max %d/batch)", len(texts), numBatches, c.batchSize)
	}

	var wg sync.WaitGroup
	errCh := make(chan error, numBatches)

	for i := 0; i < numBatches; i++ {
		start := i * c.batchSize
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		wg.Add(1)
		go func(start int, batch []string) {
			defer wg.Done()
			if err := fn(start, batch); err != nil {
				errCh <- err
			}
		}(start, texts[start:end])
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) post(ctx context.Context, url, apiKey string, inputs []string, out any) error {
	payload, err := json.Marshal(embedRequest{Inputs: inputs})
	if err != nil {
		return err
	}

	return retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Content-Type", "application/json")
			if apiKey != "" {
				req.Header.Set("Authorization", "Bearer "+apiKey)
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("embedding server returned %d: %s", resp.StatusCode, body)
			}
			return json.Unmarshal(body, out)
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(100*time.Millisecond),
		retry.LastErrorOnly(true),
	)
}
