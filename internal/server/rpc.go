package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/medsage/medsage-api/internal/apperr"
	"github.com/medsage/medsage-api/internal/domain"
)

// RPCServer exposes the search pipeline over JSON-RPC for internal callers.
type RPCServer struct {
	searcher Searcher
	listener net.Listener
}

func NewRPCServer(searcher Searcher) *RPCServer {
	return &RPCServer{searcher: searcher}
}

// Serve accepts connections until the listener is closed.
func (s *RPCServer) Serve(ctx context.Context, listener net.Listener) {
	s.listener = listener
	handler := jsonrpc2.HandlerWithError(s.handle)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("[RPC] Accept failed: %v", err)
			continue
		}
		jsonrpc2.NewConn(ctx, jsonrpc2.NewBufferedStream(conn, jsonrpc2.VSCodeObjectCodec{}), handler)
	}
}

// Close stops accepting new connections.
func (s *RPCServer) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *RPCServer) handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	switch req.Method {
	case "search":
		return s.handleSearch(ctx, req)
	default:
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "method not found: " + req.Method}
	}
}

func (s *RPCServer) handleSearch(ctx context.Context, req *jsonrpc2.Request) (any, error) {
	var params searchRequest
	if req.Params != nil {
		if err := json.Unmarshal(*req.Params, &params); err != nil {
			return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: "invalid search params"}
		}
	}

	result, err := s.searcher.HandleSearch(ctx, params.Query, domain.ParseRoute(params.Route))
	if err != nil {
		if errors.Is(err, apperr.ErrValidation) {
			return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: "query must not be empty"}
		}
		// Failures and no-results answer in-band with the 500 envelope, the
		// same shape a successful search carries.
		log.Printf("[RPC] Search failed: %v", err)
		return failedSearchResponse(), nil
	}

	return searchResponse{
		Status:  http.StatusOK,
		Result:  result.AnswerText,
		Sources: domain.Citations(result.Sources),
	}, nil
}
