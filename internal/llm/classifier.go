package llm

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/medsage/medsage-api/internal/domain"
)

const routePromptTemplate = `Classify the medical search query below into exactly one category.
Reply with only the category number.

1. Clinical trials: questions about ongoing or completed clinical studies.
2. Drugs: questions about a drug's interactions, labels, or ingredients.
3. Biomedical literature and general web: everything else.

Query: {query}
Category number:`

// RouteClassifier picks the retrieval route for a query with a lightweight
// model call. Classification is advisory: any failure falls back to the
// configured default route so a broken classifier never fails a search.
type RouteClassifier struct {
	client   Client
	fallback domain.RouteCategory
}

func NewRouteClassifier(client Client, fallback domain.RouteCategory) *RouteClassifier {
	return &RouteClassifier{client: client, fallback: fallback}
}

// Route classifies the query, returning an error when the model call fails
// or its reply names no category. Errors here mark replies a caller must
// not remember.
func (c *RouteClassifier) Route(ctx context.Context, queryText string) (domain.RouteCategory, error) {
	prompt := strings.Replace(routePromptTemplate, "{query}", queryText, 1)

	reply, err := c.client.Generate(ctx, prompt)
	if err != nil {
		return domain.RouteNotSelected, err
	}

	switch firstInteger(reply) {
	case 1:
		return domain.RouteClinicalTrials, nil
	case 2:
		return domain.RouteDrug, nil
	case 3:
		return domain.RoutePubmedWeb, nil
	default:
		return domain.RouteNotSelected, fmt.Errorf("unparseable classification %q", strings.TrimSpace(reply))
	}
}

// Classify returns the route for the query text.
func (c *RouteClassifier) Classify(ctx context.Context, queryText string) domain.RouteCategory {
	route, err := c.Route(ctx, queryText)
	if err != nil {
		log.Printf("[Router] Classification failed, falling back to %s: %v", c.fallback, err)
		return c.fallback
	}
	return route
}

// firstInteger extracts the first integer token in the reply, or 0.
func firstInteger(text string) int {
	start := -1
	for i, r := range text {
		if r >= '0' && r <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			n, _ := strconv.Atoi(text[start:i])
			return n
		}
	}
	if start >= 0 {
		n, _ := strconv.Atoi(text[start:])
		return n
	}
	return 0
}
