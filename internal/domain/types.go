// Package domain holds the request-scoped value types that flow through the
// search pipeline. Everything here is created during one orchestration call
// and discarded at its end.
package domain

// Origin identifies which retrieval engine produced a candidate. Score
// semantics are local to the producing engine until the reranker normalizes
// them.
type Origin int

const (
	OriginParentDoc Origin = iota
	OriginClusterChunk
	OriginWeb
)

func (o Origin) String() string {
	switch o {
	case OriginParentDoc:
		return "parent_doc"
	case OriginClusterChunk:
		return "cluster_chunk"
	case OriginWeb:
		return "web"
	default:
		return "unknown"
	}
}

// SparseEmbedding is an (index, weight) vector pair as produced by the sparse
// embedding backend.
type SparseEmbedding struct {
	Indices []uint32
	Weights []float32
}

// SearchQuery is built once per incoming request and shared read-only by
// every retrieval engine invoked for that request.
type SearchQuery struct {
	Text   string
	Dense  []float32
	Sparse SparseEmbedding
}

// IsEmpty reports whether both embedding modalities are absent. Hybrid
// retrieval treats this as the documented no-op case.
func (q *SearchQuery) IsEmpty() bool {
	return len(q.Dense) == 0 && len(q.Sparse.Indices) == 0
}

// Candidate is one retrieved passage plus its per-engine relevance score and
// source attribution. Ownership transfers fully to the orchestrator's merged
// list once an engine returns it.
type Candidate struct {
	ID     string
	Text   string
	Score  float32
	Origin Origin
	Source SourceRecord
}

// CompressedContext is the output of token-budget compression. RetainedSources
// is a subset, in stable order, of the sources of the candidates passed in,
// so citation numbering is reproducible.
type CompressedContext struct {
	PromptSegments  []string
	RetainedSources []SourceRecord
}

// SearchResult is the terminal entity returned to the caller. Never mutated
// after construction.
type SearchResult struct {
	AnswerText string
	Sources    []SourceRecord
}

// RouteCategory selects which retrieval branch handles a query.
type RouteCategory int

const (
	RouteNotSelected RouteCategory = iota
	RouteClinicalTrials
	RouteDrug
	RoutePubmedWeb
)

func (r RouteCategory) String() string {
	switch r {
	case RouteClinicalTrials:
		return "clinicaltrials"
	case RouteDrug:
		return "drug"
	case RoutePubmedWeb:
		return "pubmed_web"
	default:
		return "not_selected"
	}
}

// ParseRoute maps a wire-level route label to a category. Unknown labels map
// to RouteNotSelected so the classifier decides.
func ParseRoute(s string) RouteCategory {
	switch s {
	case "clinicaltrials":
		return RouteClinicalTrials
	case "drug":
		return RouteDrug
	case "pubmed_web":
		return RoutePubmedWeb
	default:
		return RouteNotSelected
	}
}
