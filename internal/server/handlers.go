package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/medsage/medsage-api/internal/apperr"
	"github.com/medsage/medsage-api/internal/domain"
	"github.com/medsage/medsage-api/internal/orchestrator"
)

const maxTopQueriesLimit = 100

// Searcher answers one search request end to end.
type Searcher interface {
	HandleSearch(ctx context.Context, queryText string, routeHint domain.RouteCategory) (*domain.SearchResult, error)
}

// TopLister reads the answered-query frequency ranking.
type TopLister interface {
	Top(ctx context.Context, space string, limit int64) ([]string, error)
}

// API holds the dependencies for the HTTP endpoints.
type API struct {
	searcher Searcher
	top      TopLister
}

func NewAPI(searcher Searcher, top TopLister) *API {
	return &API{searcher: searcher, top: top}
}

// RegisterRoutes registers all endpoints on a new ServeMux.
func (a *API) RegisterRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/search", a.handleSearch)
	mux.HandleFunc("GET /api/v1/topqueries", a.handleTopQueries)
	mux.HandleFunc("GET /api/v1/healthz", a.handleHealthz)

	return mux
}

type searchRequest struct {
	Query string `json:"query"`
	Route string `json:"route,omitempty"`
}

// searchResponse is the wire envelope shared by the HTTP and RPC surfaces.
// Status carries 200/500 in-band; a failed search still answers with this
// shape rather than a bare error body.
type searchResponse struct {
	Status  int             `json:"status"`
	Result  string          `json:"result"`
	Sources []domain.Source `json:"sources"`
}

func failedSearchResponse() searchResponse {
	return searchResponse{
		Status:  http.StatusInternalServerError,
		Result:  "Search failed",
		Sources: []domain.Source{},
	}
}

func (a *API) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	route := domain.ParseRoute(req.Route)

	result, err := a.searcher.HandleSearch(r.Context(), req.Query, route)
	if err != nil {
		if errors.Is(err, apperr.ErrValidation) {
			http.Error(w, "Query field is required", http.StatusBadRequest)
			return
		}
		// No-results and upstream failures share one opaque answer so the
		// response body leaks nothing about the pipeline internals.
		log.Printf("[Server] Search failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, failedSearchResponse())
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Status:  http.StatusOK,
		Result:  result.AnswerText,
		Sources: domain.Citations(result.Sources),
	})
}

type topQueriesResponse struct {
	Status  int      `json:"status"`
	Queries []string `json:"queries"`
}

func (a *API) handleTopQueries(w http.ResponseWriter, r *http.Request) {
	limit := int64(10)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 1 || parsed > maxTopQueriesLimit {
			http.Error(w, "limit must be an integer between 1 and 100", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	queries, err := a.top.Top(r.Context(), orchestrator.TopQuerySpace, limit)
	if err != nil {
		log.Printf("[Server] Top queries lookup failed: %v", err)
		http.Error(w, "Top queries unavailable", http.StatusInternalServerError)
		return
	}
	if queries == nil {
		queries = []string{}
	}

	writeJSON(w, http.StatusOK, topQueriesResponse{Status: http.StatusOK, Queries: queries})
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[Server] Failed to encode response: %v", err)
	}
}
