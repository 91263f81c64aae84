package server

import (
	"context"
	"log"
	"time"

	"github.com/medsage/medsage-api/internal/cache"
	"github.com/medsage/medsage-api/internal/domain"
)

const routeCacheSize = 1024

// routeModel is the uncached classifier. An error marks a reply that must
// not be remembered, so a transient outage never pins the fallback route.
type routeModel interface {
	Route(ctx context.Context, queryText string) (domain.RouteCategory, error)
}

// cachedClassifier remembers the route picked for a query text so repeated
// queries skip the classification model call.
type cachedClassifier struct {
	fetch    cache.FetchFunc[string]
	fallback domain.RouteCategory
}

func newCachedClassifier(inner routeModel, fallback domain.RouteCategory, ttl time.Duration) (*cachedClassifier, error) {
	backend, err := cache.NewMemoryBackend(routeCacheSize, ttl)
	if err != nil {
		return nil, err
	}
	tmpl, err := cache.ParseKeyTemplate("medsage.route.{query}", "query")
	if err != nil {
		return nil, err
	}
	fetch, err := cache.Cached(tmpl, backend, ttl, func(ctx context.Context, args map[string]string) (string, error) {
		route, err := inner.Route(ctx, args["query"])
		if err != nil {
			return "", err
		}
		return route.String(), nil
	})
	if err != nil {
		return nil, err
	}
	return &cachedClassifier{fetch: fetch, fallback: fallback}, nil
}

func (c *cachedClassifier) Classify(ctx context.Context, queryText string) domain.RouteCategory {
	label, err := c.fetch(ctx, map[string]string{"query": queryText})
	if err != nil {
		log.Printf("[Router] Classification failed, falling back to %s: %v", c.fallback, err)
		return c.fallback
	}
	route := domain.ParseRoute(label)
	if route == domain.RouteNotSelected {
		return c.fallback
	}
	return route
}
