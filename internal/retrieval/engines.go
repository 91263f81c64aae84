// Package retrieval implements the knowledge-base retrieval engines: one
// over parent documents and one over cluster chunks expanded to their child
// passages.
package retrieval

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/medsage/medsage-api/internal/domain"
	"github.com/medsage/medsage-api/internal/vectorstore"
)

// VectorSearcher is the hybrid similarity search an engine runs against its
// collection.
type VectorSearcher interface {
	HybridSearch(ctx context.Context, query *domain.SearchQuery, denseTopK, sparseTopK int) (dense, sparse []vectorstore.ScoredPoint, err error)
}

// DocumentStore resolves relational metadata referenced from point payloads.
type DocumentStore interface {
	TitlesByID(ctx context.Context, ids []int64) (map[int64]string, error)
	ChildTexts(ctx context.Context, ids []string) (map[string]string, error)
}

// Config carries the per-engine retrieval tuning.
type Config struct {
	SimilarityTopK int
	SparseTopK     int
	Alpha          float32
	Threshold      float32
	URLPrefix      string
}

// ParentEngine retrieves whole parent documents and attaches their article
// titles as citations.
type ParentEngine struct {
	searcher VectorSearcher
	store    DocumentStore
	cfg      Config
}

func NewParentEngine(searcher VectorSearcher, store DocumentStore, cfg Config) *ParentEngine {
	return &ParentEngine{searcher: searcher, store: store, cfg: cfg}
}

// Retrieve runs the hybrid search, fuses and filters the hits, and resolves
// article titles. Failures are logged and absorbed into an empty result.
func (e *ParentEngine) Retrieve(ctx context.Context, query *domain.SearchQuery) []domain.Candidate {
	if query.IsEmpty() {
		return nil
	}

	hits, err := fusedSearch(ctx, e.searcher, query, e.cfg)
	if err != nil {
		log.Printf("[Retrieval] Parent search failed: %v", err)
		return nil
	}
	if len(hits) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.RecordID)
	}
	titles, err := e.store.TitlesByID(ctx, ids)
	if err != nil {
		log.Printf("[Retrieval] Title lookup failed: %v", err)
		return nil
	}

	candidates := make([]domain.Candidate, 0, len(hits))
	for _, h := range hits {
		candidates = append(candidates, domain.Candidate{
			ID:     h.ID,
			Text:   h.Text,
			Score:  h.Score,
			Origin: domain.OriginParentDoc,
			Source: domain.DocumentSource{
				URL:      fmt.Sprintf("%s/%d", e.cfg.URLPrefix, h.RecordID),
				Title:    titles[h.RecordID],
				Abstract: h.Text,
			},
		})
	}
	return candidates
}

// ClusterEngine retrieves cluster chunks and expands each into its child
// passages, one candidate per child.
type ClusterEngine struct {
	searcher VectorSearcher
	store    DocumentStore
	cfg      Config
}

func NewClusterEngine(searcher VectorSearcher, store DocumentStore, cfg Config) *ClusterEngine {
	return &ClusterEngine{searcher: searcher, store: store, cfg: cfg}
}

// Retrieve runs the hybrid search, fuses and filters the hits, then expands
// the surviving clusters into child passages. A child id with no stored text
// is skipped. Failures are logged and absorbed into an empty result.
func (e *ClusterEngine) Retrieve(ctx context.Context, query *domain.SearchQuery) []domain.Candidate {
	if query.IsEmpty() {
		return nil
	}

	hits, err := fusedSearch(ctx, e.searcher, query, e.cfg)
	if err != nil {
		log.Printf("[Retrieval] Cluster search failed: %v", err)
		return nil
	}
	if len(hits) == 0 {
		return nil
	}

	recordIDs := make([]int64, 0, len(hits))
	childIDs := make([]string, 0, len(hits)*4)
	for _, h := range hits {
		recordIDs = append(recordIDs, h.RecordID)
		childIDs = append(childIDs, h.ChildIDs...)
	}

	var titles map[int64]string
	var texts map[string]string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		titles, err = e.store.TitlesByID(gctx, recordIDs)
		return err
	})
	g.Go(func() (err error) {
		texts, err = e.store.ChildTexts(gctx, childIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		log.Printf("[Retrieval] Cluster expansion failed: %v", err)
		return nil
	}

	var candidates []domain.Candidate
	for _, h := range hits {
		source := domain.DocumentSource{
			URL:      fmt.Sprintf("%s/%d", e.cfg.URLPrefix, h.RecordID),
			Title:    titles[h.RecordID],
			Abstract: h.Text,
		}
		for _, childID := range h.ChildIDs {
			text, ok := texts[childID]
			if !ok {
				continue
			}
			candidates = append(candidates, domain.Candidate{
				ID:     childID,
				Text:   text,
				Score:  h.Score,
				Origin: domain.OriginClusterChunk,
				Source: source,
			})
		}
	}
	return candidates
}

func fusedSearch(ctx context.Context, searcher VectorSearcher, query *domain.SearchQuery, cfg Config) ([]vectorstore.ScoredPoint, error) {
	dense, sparse, err := searcher.HybridSearch(ctx, query, cfg.SimilarityTopK, cfg.SparseTopK)
	if err != nil {
		return nil, err
	}
	fused := vectorstore.FuseRelative(dense, sparse, cfg.Alpha, cfg.SimilarityTopK)
	return vectorstore.FilterByScore(fused, cfg.Threshold), nil
}
