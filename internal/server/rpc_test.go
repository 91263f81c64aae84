package server

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/medsage/medsage-api/internal/apperr"
	"github.com/medsage/medsage-api/internal/domain"
)

func rpcRequest(t *testing.T, method, params string) *jsonrpc2.Request {
	t.Helper()
	req := &jsonrpc2.Request{Method: method}
	if params != "" {
		raw := json.RawMessage(params)
		req.Params = &raw
	}
	return req
}

func TestRPCSearch(t *testing.T) {
	searcher := &fakeSearcher{result: &domain.SearchResult{
		AnswerText: "the answer",
		Sources:    []domain.SourceRecord{domain.WebSource{URL: "https://example.org"}},
	}}
	s := NewRPCServer(searcher)

	result, err := s.handle(context.Background(), nil, rpcRequest(t, "search", `{"query":"aspirin"}`))
	if err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	resp, ok := result.(searchResponse)
	if !ok {
		t.Fatalf("unexpected result type %T", result)
	}
	if resp.Status != http.StatusOK || resp.Result != "the answer" || len(resp.Sources) != 1 {
		t.Errorf("unexpected response %+v", resp)
	}
	if searcher.lastQuery != "aspirin" {
		t.Errorf("query not forwarded: %q", searcher.lastQuery)
	}
}

func TestRPCSearchFailureAnswersInBand(t *testing.T) {
	// Pipeline failures come back as a 500 envelope, not a protocol error.
	s := NewRPCServer(&fakeSearcher{err: apperr.ErrNoResults})

	result, err := s.handle(context.Background(), nil, rpcRequest(t, "search", `{"query":"aspirin"}`))
	if err != nil {
		t.Fatalf("expected in-band failure, got protocol error %v", err)
	}
	resp, ok := result.(searchResponse)
	if !ok {
		t.Fatalf("unexpected result type %T", result)
	}
	if resp.Status != http.StatusInternalServerError || resp.Result != "Search failed" {
		t.Errorf("unexpected envelope %+v", resp)
	}
	if resp.Sources == nil || len(resp.Sources) != 0 {
		t.Errorf("expected empty sources list, got %+v", resp.Sources)
	}
}

func TestRPCSearchValidation(t *testing.T) {
	s := NewRPCServer(&fakeSearcher{err: apperr.Validation("query must not be empty")})

	_, err := s.handle(context.Background(), nil, rpcRequest(t, "search", `{"query":""}`))
	rpcErr, ok := err.(*jsonrpc2.Error)
	if !ok || rpcErr.Code != jsonrpc2.CodeInvalidParams {
		t.Errorf("expected invalid-params error, got %v", err)
	}
}

func TestRPCUnknownMethod(t *testing.T) {
	s := NewRPCServer(&fakeSearcher{})

	_, err := s.handle(context.Background(), nil, rpcRequest(t, "ingest", ""))
	rpcErr, ok := err.(*jsonrpc2.Error)
	if !ok || rpcErr.Code != jsonrpc2.CodeMethodNotFound {
		t.Errorf("expected method-not-found error, got %v", err)
	}
}
