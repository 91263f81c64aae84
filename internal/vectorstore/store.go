// Package vectorstore wraps one qdrant collection with the hybrid
// dense+sparse query path and the score fusion used by the retrieval engines.
package vectorstore

import (
	"context"
	"fmt"
	"log"

	pb "github.com/qdrant/go-client/qdrant"
	"golang.org/x/sync/errgroup"

	"github.com/medsage/medsage-api/internal/domain"
)

// Named vectors the ingestion pipeline writes per point.
const (
	denseVectorName  = "text-dense"
	sparseVectorName = "text-sparse"
)

// ScoredPoint is one raw similarity hit with the payload fields the engines
// consume, decoupled from the qdrant wire types.
type ScoredPoint struct {
	ID       string
	Score    float32
	Text     string
	RecordID int64
	ChildIDs []string
}

// Store issues similarity searches against a single qdrant collection.
type Store struct {
	client     *pb.Client
	collection string
}

// New connects to qdrant and binds the store to a collection.
func New(host string, port int, apiKey, collection string) (*Store, error) {
	client, err := pb.NewClient(&pb.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
	}

	log.Printf("[VectorStore] Connected to %s:%d, collection=%s", host, port, collection)
	return &Store{client: client, collection: collection}, nil
}

// HybridSearch runs the dense top-K and sparse top-K named-vector searches
// concurrently and returns both raw result sets. A modality with no query
// embedding returns an empty set without touching the backend.
func (s *Store) HybridSearch(ctx context.Context, query *domain.SearchQuery, denseTopK, sparseTopK int) (dense, sparse []ScoredPoint, err error) {
	g, ctx := errgroup.WithContext(ctx)

	if len(query.Dense) > 0 {
		g.Go(func() error {
			points, err := s.client.Query(ctx, &pb.QueryPoints{
				CollectionName: s.collection,
				Query:          pb.NewQueryDense(query.Dense),
				Using:          pb.PtrOf(denseVectorName),
				Limit:          pb.PtrOf(uint64(denseTopK)),
				WithPayload:    pb.NewWithPayload(true),
			})
			if err != nil {
				return fmt.Errorf("dense search: %w", err)
			}
			dense = fromScoredPoints(points)
			return nil
		})
	}

	if len(query.Sparse.Indices) > 0 {
		g.Go(func() error {
			points, err := s.client.Query(ctx, &pb.QueryPoints{
				CollectionName: s.collection,
				Query:          pb.NewQuerySparse(query.Sparse.Indices, query.Sparse.Weights),
				Using:          pb.PtrOf(sparseVectorName),
				Limit:          pb.PtrOf(uint64(sparseTopK)),
				WithPayload:    pb.NewWithPayload(true),
			})
			if err != nil {
				return fmt.Errorf("sparse search: %w", err)
			}
			sparse = fromScoredPoints(points)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return dense, sparse, nil
}

// Close closes the underlying qdrant gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func fromScoredPoints(points []*pb.ScoredPoint) []ScoredPoint {
	out := make([]ScoredPoint, 0, len(points))
	for _, p := range points {
		out = append(out, ScoredPoint{
			ID:       pointID(p.Id),
			Score:    p.Score,
			Text:     payloadString(p.Payload, "text"),
			RecordID: payloadInt(p.Payload, "pubmedid"),
			ChildIDs: payloadStrings(p.Payload, "children_node_ids"),
		})
	}
	return out
}

func pointID(id *pb.PointId) string {
	if id == nil {
		return ""
	}
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	return fmt.Sprintf("%d", id.GetNum())
}

func payloadString(payload map[string]*pb.Value, key string) string {
	if payload == nil {
		return ""
	}
	return payload[key].GetStringValue()
}

// payloadInt tolerates both integer and string payload encodings; the
// ingestion pipeline has written record ids as either over time.
func payloadInt(payload map[string]*pb.Value, key string) int64 {
	if payload == nil {
		return 0
	}
	value := payload[key]
	if value == nil {
		return 0
	}
	if n := value.GetIntegerValue(); n != 0 {
		return n
	}
	var n int64
	_, _ = fmt.Sscanf(value.GetStringValue(), "%d", &n)
	return n
}

func payloadStrings(payload map[string]*pb.Value, key string) []string {
	if payload == nil {
		return nil
	}
	list := payload[key].GetListValue()
	if list == nil {
		return nil
	}
	values := list.GetValues()
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s := v.GetStringValue(); s != "" {
			out = append(out, s)
		}
	}
	return out
}
