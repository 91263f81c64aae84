// Package orchestrator runs the end-to-end search pipeline: routing, fan-out
// retrieval, reranking, compression, and answer synthesis.
package orchestrator

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/medsage/medsage-api/internal/apperr"
	"github.com/medsage/medsage-api/internal/domain"
)

// QueryBuilder embeds the query text into its search representations.
type QueryBuilder interface {
	BuildQuery(ctx context.Context, text string) *domain.SearchQuery
}

// RetrievalEngine is a knowledge-base engine driven by embedded queries.
type RetrievalEngine interface {
	Retrieve(ctx context.Context, query *domain.SearchQuery) []domain.Candidate
}

// WebEngine retrieves candidates from plain query text.
type WebEngine interface {
	Retrieve(ctx context.Context, queryText string) []domain.Candidate
}

// Reranker rescores and truncates the merged candidate set.
type Reranker interface {
	Rerank(ctx context.Context, queryText string, candidates []domain.Candidate) ([]domain.Candidate, error)
}

// Compressor reduces reranked candidates into a budgeted context.
type Compressor interface {
	Compress(ctx context.Context, queryText string, candidates []domain.Candidate) (*domain.CompressedContext, error)
}

// Synthesizer produces the final answer from the compressed context.
type Synthesizer interface {
	Synthesize(ctx context.Context, queryText string, compressed *domain.CompressedContext) (string, error)
}

// Classifier picks the retrieval route for a query.
type Classifier interface {
	Classify(ctx context.Context, queryText string) domain.RouteCategory
}

// SideEngine is a specialized route (clinical trials, drug graph) handled
// outside the main pipeline.
type SideEngine interface {
	Search(ctx context.Context, queryText string) (*domain.SearchResult, error)
}

// Counter records answered queries for the top-queries read path.
type Counter interface {
	Bump(ctx context.Context, space, member string) error
}

// TopQuerySpace keys the sorted set holding answered-query counts.
const TopQuerySpace = "medsage.queries.top"

// Orchestrator wires the pipeline stages together.
type Orchestrator struct {
	builder       QueryBuilder
	parentEngine  RetrievalEngine
	clusterEngine RetrievalEngine
	webEngine     WebEngine
	reranker      Reranker
	compressor    Compressor
	synthesizer   Synthesizer
	classifier    Classifier
	sideEngines   map[domain.RouteCategory]SideEngine
	counter       Counter
	fallbackRoute domain.RouteCategory
	timeout       time.Duration
}

// Options carries the optional pieces of the pipeline. A nil Classifier
// means every unrouted query takes the fallback route; missing side engines
// mean their routes degrade to the fallback.
type Options struct {
	Classifier    Classifier
	SideEngines   map[domain.RouteCategory]SideEngine
	Counter       Counter
	FallbackRoute domain.RouteCategory
	Timeout       time.Duration
}

func New(builder QueryBuilder, parent, cluster RetrievalEngine, web WebEngine, reranker Reranker, compressor Compressor, synthesizer Synthesizer, opts Options) *Orchestrator {
	if opts.FallbackRoute == domain.RouteNotSelected {
		opts.FallbackRoute = domain.RoutePubmedWeb
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Orchestrator{
		builder:       builder,
		parentEngine:  parent,
		clusterEngine: cluster,
		webEngine:     web,
		reranker:      reranker,
		compressor:    compressor,
		synthesizer:   synthesizer,
		classifier:    opts.Classifier,
		sideEngines:   opts.SideEngines,
		counter:       opts.Counter,
		fallbackRoute: opts.FallbackRoute,
		timeout:       opts.Timeout,
	}
}

// HandleSearch answers one query. The route hint, when set, skips
// classification. Specialized routes that fail fall through to the main
// pipeline rather than failing the request.
func (o *Orchestrator) HandleSearch(ctx context.Context, queryText string, routeHint domain.RouteCategory) (*domain.SearchResult, error) {
	queryText = strings.TrimSpace(queryText)
	if queryText == "" {
		return nil, apperr.Validation("query must not be empty")
	}

	route := routeHint
	if route == domain.RouteNotSelected {
		route = o.route(ctx, queryText)
	}

	if engine, ok := o.sideEngines[route]; ok && engine != nil {
		result, err := engine.Search(ctx, queryText)
		if err == nil {
			o.recordQuery(ctx, queryText)
			return result, nil
		}
		log.Printf("[Orchestrator] Route %s failed, falling back to %s: %v", route, o.fallbackRoute, err)
	} else if route != o.fallbackRoute {
		log.Printf("[Orchestrator] No engine for route %s, using %s", route, o.fallbackRoute)
	}

	result, err := o.searchPubmedWeb(ctx, queryText)
	if err != nil {
		return nil, err
	}
	o.recordQuery(ctx, queryText)
	return result, nil
}

func (o *Orchestrator) route(ctx context.Context, queryText string) domain.RouteCategory {
	if o.classifier == nil {
		return o.fallbackRoute
	}
	return o.classifier.Classify(ctx, queryText)
}

// searchPubmedWeb is the main pipeline: embed, fan out to the three
// retrieval engines, merge, rerank, compress, synthesize.
func (o *Orchestrator) searchPubmedWeb(ctx context.Context, queryText string) (*domain.SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	query := o.builder.BuildQuery(ctx, queryText)

	var mu sync.Mutex
	var merged []domain.Candidate
	collect := func(candidates []domain.Candidate) {
		if len(candidates) == 0 {
			return
		}
		mu.Lock()
		merged = append(merged, candidates...)
		mu.Unlock()
	}

	// The engines absorb their own failures, so the fan-out only ends early
	// if the whole context is done.
	var g errgroup.Group
	g.Go(func() error {
		collect(o.parentEngine.Retrieve(ctx, query))
		return nil
	})
	g.Go(func() error {
		collect(o.clusterEngine.Retrieve(ctx, query))
		return nil
	})
	g.Go(func() error {
		collect(o.webEngine.Retrieve(ctx, queryText))
		return nil
	})
	_ = g.Wait()

	if len(merged) == 0 {
		return nil, apperr.ErrNoResults
	}
	log.Printf("[Orchestrator] Merged %d candidates for query %q", len(merged), queryText)

	reranked, err := o.reranker.Rerank(ctx, queryText, merged)
	if err != nil {
		return nil, err
	}
	if len(reranked) == 0 {
		return nil, apperr.ErrNoResults
	}

	compressed, err := o.compressor.Compress(ctx, queryText, reranked)
	if err != nil {
		return nil, err
	}
	if compressed == nil || len(compressed.PromptSegments) == 0 {
		return nil, apperr.ErrNoResults
	}

	answer, err := o.synthesizer.Synthesize(ctx, queryText, compressed)
	if err != nil {
		return nil, err
	}

	return &domain.SearchResult{
		AnswerText: answer,
		Sources:    compressed.RetainedSources,
	}, nil
}

// recordQuery bumps the answered-query counter. Counting is best effort and
// never affects the response.
func (o *Orchestrator) recordQuery(ctx context.Context, queryText string) {
	if o.counter == nil {
		return
	}
	if err := o.counter.Bump(ctx, TopQuerySpace, queryText); err != nil {
		log.Printf("[Orchestrator] Failed to record query: %v", err)
	}
}
