// Package websearch retrieves web results from the search provider API,
// with the raw responses served through the cache-aside layer.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/medsage/medsage-api/internal/cache"
	"github.com/medsage/medsage-api/internal/domain"
)

const cacheKeyTemplate = "medsage.web.search.{search_text}"

// Engine queries the web search provider and maps results into candidates.
type Engine struct {
	apiURL     string
	apiKey     string
	count      int
	filters    []string
	httpClient *http.Client
	fetch      cache.FetchFunc[[]byte]
}

// NewEngine builds a web search engine whose raw provider responses are
// cached in backend under a key derived from the query text.
func NewEngine(apiURL, apiKey string, count int, filters []string, timeout time.Duration, backend any, ttl time.Duration) (*Engine, error) {
	if len(filters) == 0 {
		filters = []string{"web"}
	}
	e := &Engine{
		apiURL:     apiURL,
		apiKey:     apiKey,
		count:      count,
		filters:    filters,
		httpClient: &http.Client{Timeout: timeout},
	}

	tmpl, err := cache.ParseKeyTemplate(cacheKeyTemplate, "search_text")
	if err != nil {
		return nil, err
	}
	fetch, err := cache.Cached(tmpl, backend, ttl, e.rawSearch)
	if err != nil {
		return nil, err
	}
	e.fetch = fetch

	return e, nil
}

// Retrieve runs a web search for the query text. Every failure mode is
// absorbed into an empty result so a provider outage degrades the answer
// instead of failing the request.
func (e *Engine) Retrieve(ctx context.Context, queryText string) []domain.Candidate {
	body, err := e.fetch(ctx, map[string]string{"search_text": queryText})
	if err != nil {
		log.Printf("[WebSearch] Search failed for query %q: %v", queryText, err)
		return nil
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		log.Printf("[WebSearch] Undecodable provider response: %v", err)
		return nil
	}

	candidates := make([]domain.Candidate, 0, len(parsed.Web.Results))
	for _, r := range parsed.Web.Results {
		text := r.Description + strings.Join(r.ExtraSnippets, "")
		if text == "" {
			continue
		}
		age := r.PageAge
		if age == "" {
			age = r.Age
		}
		candidates = append(candidates, domain.Candidate{
			ID:     r.URL,
			Text:   text,
			Origin: domain.OriginWeb,
			Source: domain.WebSource{
				URL:         r.URL,
				Title:       r.Title,
				Description: r.Description,
				Age:         age,
			},
		})
	}
	return candidates
}

func (e *Engine) rawSearch(ctx context.Context, args map[string]string) ([]byte, error) {
	params := url.Values{}
	params.Set("q", args["search_text"])
	params.Set("count", strconv.Itoa(e.count))
	params.Set("result_filter", strings.Join(e.filters, ","))
	params.Set("search_lang", "en")
	params.Set("extra_snippets", "true")
	params.Set("safesearch", "strict")

	var body []byte
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.apiURL+"?"+params.Encode(), nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Accept", "application/json")
			req.Header.Set("X-Subscription-Token", e.apiKey)

			resp, err := e.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			body, err = io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("search provider returned %d: %s", resp.StatusCode, body)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.Delay(100*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return body, nil
}
