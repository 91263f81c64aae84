// Package server wires the pipeline dependencies together and runs the HTTP
// and JSON-RPC surfaces.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/medsage/medsage-api/internal/cache"
	"github.com/medsage/medsage-api/internal/compress"
	"github.com/medsage/medsage-api/internal/config"
	"github.com/medsage/medsage-api/internal/database"
	"github.com/medsage/medsage-api/internal/domain"
	"github.com/medsage/medsage-api/internal/embedding"
	"github.com/medsage/medsage-api/internal/llm"
	"github.com/medsage/medsage-api/internal/orchestrator"
	"github.com/medsage/medsage-api/internal/rerank"
	"github.com/medsage/medsage-api/internal/resilience"
	"github.com/medsage/medsage-api/internal/retrieval"
	"github.com/medsage/medsage-api/internal/vectorstore"
	"github.com/medsage/medsage-api/internal/websearch"
)

// Server owns the process lifecycle: construct dependencies, serve, drain.
type Server struct {
	cfg        *config.Config
	httpServer *http.Server
	rpcServer  *RPCServer
}

func New(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

// Run builds the pipeline and serves until a shutdown signal arrives.
func (s *Server) Run() error {
	ctx := context.Background()
	cfg := s.cfg

	// ==========================================
	// Initialize Dependencies (Dependency Injection)
	// ==========================================

	redisBackend, err := cache.NewRedisBackend(cfg.RedisURL, cfg.CacheTTL)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer func() { _ = redisBackend.Close() }()

	counter := cache.NewQueryCounter(redisBackend.Client(), cfg.TopQueriesMax, cfg.TopQueriesTrim)

	docStore, err := database.NewStore(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("failed to open document store: %w", err)
	}
	defer func() { _ = docStore.Close() }()

	parentStore, err := vectorstore.New(cfg.ParentQdrant.Host, cfg.ParentQdrant.Port, cfg.ParentQdrant.APIKey, cfg.ParentQdrant.Collection)
	if err != nil {
		return err
	}
	defer func() { _ = parentStore.Close() }()

	clusterStore, err := vectorstore.New(cfg.ClusterQdrant.Host, cfg.ClusterQdrant.Port, cfg.ClusterQdrant.APIKey, cfg.ClusterQdrant.Collection)
	if err != nil {
		return err
	}
	defer func() { _ = clusterStore.Close() }()

	embedClient := embedding.NewClient(cfg.EmbeddingURL, cfg.EmbeddingAPIKey, cfg.SpladeURL, cfg.SpladeAPIKey, cfg.EmbedBatchSize, cfg.DefaultTimeout)

	parentEngine := retrieval.NewParentEngine(parentStore, docStore, retrieval.Config{
		SimilarityTopK: cfg.ParentQdrant.SimilarityTopK,
		SparseTopK:     cfg.ParentQdrant.SparseTopK,
		Alpha:          float32(cfg.FusionAlpha),
		Threshold:      float32(cfg.ParentQdrant.Threshold),
		URLPrefix:      cfg.URLPrefix,
	})
	clusterEngine := retrieval.NewClusterEngine(clusterStore, docStore, retrieval.Config{
		SimilarityTopK: cfg.ClusterQdrant.SimilarityTopK,
		SparseTopK:     cfg.ClusterQdrant.SparseTopK,
		Alpha:          float32(cfg.FusionAlpha),
		Threshold:      float32(cfg.ClusterQdrant.Threshold),
		URLPrefix:      cfg.URLPrefix,
	})

	webEngine, err := websearch.NewEngine(cfg.WebSearchRoot, cfg.WebSearchKey, cfg.WebResultCount, cfg.WebResultFilter, cfg.WebTimeout, redisBackend, cfg.CacheTTL)
	if err != nil {
		return err
	}

	reranker := rerank.NewReranker(
		rerank.NewClient(cfg.RerankURL, cfg.RerankToken, cfg.DefaultTimeout),
		cfg.RerankTopCount,
		resilience.NewBreaker("rerank", 5, 30*time.Second),
	)
	compressor := compress.NewCompressor(
		compress.NewClient(cfg.CompressURL, "", cfg.DefaultTimeout),
		cfg.CompressTargetToken,
		cfg.MaxTokensPerNode,
		cfg.TopNSources,
		resilience.NewBreaker("compress", 5, 30*time.Second),
	)

	var completionClient llm.Client
	if cfg.CompletionURL != "" {
		completionClient = llm.NewCompletionClient(cfg.CompletionURL, cfg.CompletionKey, cfg.CompletionModel, cfg.MaxTokens, float32(cfg.Temperature), float32(cfg.TopP), cfg.DefaultTimeout)
	}

	var geminiClient *llm.GeminiClient
	if cfg.GeminiAPIKey != "" {
		geminiClient, err = llm.NewGeminiClient(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return err
		}
		defer func() { _ = geminiClient.Close() }()
	}

	synthesisClient := completionClient
	if synthesisClient == nil {
		if geminiClient == nil {
			return fmt.Errorf("no synthesis backend configured: set MEDSAGE_COMPLETION_URL or MEDSAGE_GEMINI_API_KEY")
		}
		synthesisClient = geminiClient
	}
	synthesizer := llm.NewSynthesizer(synthesisClient, cfg.PromptTokenLimit)
	log.Printf("[System] Synthesis backend: %s", synthesisClient.Name())

	fallbackRoute := domain.ParseRoute(cfg.FallbackRoute)
	if fallbackRoute == domain.RouteNotSelected {
		fallbackRoute = domain.RoutePubmedWeb
	}

	// Classification prefers the cheap cloud model; with no Gemini key the
	// completion backend doubles as classifier. Routes for repeated query
	// texts are cached in process.
	var routeClassifier *llm.RouteClassifier
	if geminiClient != nil {
		routeClassifier = llm.NewRouteClassifier(geminiClient, fallbackRoute)
	} else {
		routeClassifier = llm.NewRouteClassifier(synthesisClient, fallbackRoute)
	}
	classifier, err := newCachedClassifier(routeClassifier, fallbackRoute, cfg.CacheTTL)
	if err != nil {
		return err
	}

	orch := orchestrator.New(embedClient, parentEngine, clusterEngine, webEngine, reranker, compressor, synthesizer, orchestrator.Options{
		Classifier:    classifier,
		Counter:       counter,
		FallbackRoute: fallbackRoute,
		Timeout:       cfg.DefaultTimeout,
	})

	// ==========================================
	// Start the HTTP and RPC Servers
	// ==========================================

	api := NewAPI(orch, counter)
	s.httpServer = &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.RegisterRoutes(),
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		log.Printf("[System] Starting REST API server on %s", cfg.HTTPAddr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[Error] HTTP server failed: %v", err)
		}
	}()

	if cfg.RPCAddr != "" {
		listener, err := net.Listen("tcp", cfg.RPCAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", cfg.RPCAddr, err)
		}
		s.rpcServer = NewRPCServer(orch)
		go func() {
			log.Printf("[System] Starting JSON-RPC server on %s", cfg.RPCAddr)
			s.rpcServer.Serve(ctx, listener)
		}()
	}

	<-stop
	log.Println("[System] Shutdown signal received. Draining connections...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Error] HTTP shutdown error: %v", err)
	}
	if s.rpcServer != nil {
		if err := s.rpcServer.Close(); err != nil {
			log.Printf("[Error] RPC shutdown error: %v", err)
		}
	}

	log.Println("[System] Server stopped gracefully.")
	return nil
}
