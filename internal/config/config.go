package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// QdrantConfig describes one vector collection endpoint. The service keeps
// two: a parent (coarse) and a cluster (fine) collection.
type QdrantConfig struct {
	Host           string
	Port           int
	APIKey         string
	Collection     string
	SimilarityTopK int
	SparseTopK     int
	Threshold      float64
}

// Config holds all environmentally dependent settings for the MedSage API.
type Config struct {
	HTTPAddr string
	RPCAddr  string

	// Embedding backends
	EmbeddingURL    string
	EmbeddingAPIKey string
	SpladeURL       string
	SpladeAPIKey    string
	EmbedBatchSize  int

	// Vector collections
	ParentQdrant  QdrantConfig
	ClusterQdrant QdrantConfig
	FusionAlpha   float64

	// Relational document store (titles + child passage texts)
	DatabaseDSN string
	URLPrefix   string

	// Cache
	RedisURL       string
	CacheTTL       time.Duration
	TopQueriesMax  int
	TopQueriesTrim float64

	// Web search provider
	WebSearchRoot   string
	WebSearchKey    string
	WebResultCount  int
	WebResultFilter []string
	WebTimeout      time.Duration

	// Rerank endpoint
	RerankURL      string
	RerankToken    string
	RerankTopCount int

	// Compression endpoint
	CompressURL         string
	CompressTargetToken int
	MaxTokensPerNode    int
	TopNSources         int

	// Completion endpoint (synthesis)
	CompletionURL    string
	CompletionKey    string
	CompletionModel  string
	MaxTokens        int
	Temperature      float64
	TopP             float64
	PromptTokenLimit int

	// Route classification
	GeminiAPIKey  string
	FallbackRoute string

	DefaultTimeout time.Duration
}

// Validate ensures that all required configuration is present and valid.
func (c *Config) Validate() error {
	if c.DatabaseDSN == "" {
		return fmt.Errorf("MEDSAGE_DATABASE_DSN is required")
	}
	if c.RedisURL == "" {
		return fmt.Errorf("MEDSAGE_REDIS_URL is required")
	}
	if c.FusionAlpha < 0 || c.FusionAlpha > 1 {
		return fmt.Errorf("MEDSAGE_FUSION_ALPHA must be in [0, 1], got %v", c.FusionAlpha)
	}
	if c.TopQueriesMax <= 0 {
		return fmt.Errorf("MEDSAGE_TOP_QUERIES_MAX must be positive, got %d", c.TopQueriesMax)
	}
	return nil
}

// Load reads settings from environment variables with sensible defaults.
func Load() *Config {
	cfg := &Config{
		HTTPAddr: getEnv("MEDSAGE_HTTP_ADDR", ":8080"),
		RPCAddr:  getEnv("MEDSAGE_RPC_ADDR", ":50051"),

		EmbeddingURL:    getEnv("MEDSAGE_EMBEDDING_URL", "http://localhost:8081"),
		EmbeddingAPIKey: getEnv("MEDSAGE_EMBEDDING_API_KEY", ""),
		SpladeURL:       getEnv("MEDSAGE_SPLADE_URL", "http://localhost:8082"),
		SpladeAPIKey:    getEnv("MEDSAGE_SPLADE_API_KEY", ""),
		EmbedBatchSize:  getEnvInt("MEDSAGE_EMBED_BATCH_SIZE", 4),

		ParentQdrant:  loadQdrant("PARENT", "pubmed_parent"),
		ClusterQdrant: loadQdrant("CLUSTER", "pubmed_cluster"),
		FusionAlpha:   getEnvFloat("MEDSAGE_FUSION_ALPHA", 0.5),

		DatabaseDSN: getEnv("MEDSAGE_DATABASE_DSN", ""),
		URLPrefix:   getEnv("MEDSAGE_DOCUMENT_URL_PREFIX", "https://pubmed.ncbi.nlm.nih.gov"),

		RedisURL:       getEnv("MEDSAGE_REDIS_URL", ""),
		CacheTTL:       getEnvDuration("MEDSAGE_CACHE_TTL_SEC", 86400) * time.Second,
		TopQueriesMax:  getEnvInt("MEDSAGE_TOP_QUERIES_MAX", 100),
		TopQueriesTrim: getEnvFloat("MEDSAGE_TOP_QUERIES_TRIM_PROB", 0.1),

		WebSearchRoot:  getEnv("MEDSAGE_WEB_SEARCH_ROOT", "https://api.search.brave.com/res/v1/web/search"),
		WebSearchKey:   getEnv("MEDSAGE_WEB_SEARCH_KEY", ""),
		WebResultCount: getEnvInt("MEDSAGE_WEB_RESULT_COUNT", 10),
		WebResultFilter: strings.Split(
			getEnv("MEDSAGE_WEB_RESULT_FILTER", "discussions,faq,summarizer,infobox,news,query,web"), ","),
		WebTimeout: getEnvDuration("MEDSAGE_WEB_TIMEOUT_SEC", 2) * time.Second,

		RerankURL:      getEnv("MEDSAGE_RERANK_URL", "http://localhost:8083/rerank"),
		RerankToken:    getEnv("MEDSAGE_RERANK_TOKEN", ""),
		RerankTopCount: getEnvInt("MEDSAGE_RERANK_TOP_COUNT", 10),

		CompressURL:         getEnv("MEDSAGE_COMPRESS_URL", "http://localhost:8000/compress"),
		CompressTargetToken: getEnvInt("MEDSAGE_COMPRESS_TARGET_TOKEN", 300),
		MaxTokensPerNode:    getEnvInt("MEDSAGE_MAX_TOKENS_PER_NODE", 512),
		TopNSources:         getEnvInt("MEDSAGE_TOP_N_SOURCES", 10),

		CompletionURL:    getEnv("MEDSAGE_COMPLETION_URL", "https://api.together.xyz/v1/completions"),
		CompletionKey:    getEnv("MEDSAGE_COMPLETION_KEY", ""),
		CompletionModel:  getEnv("MEDSAGE_COMPLETION_MODEL", "mistralai/Mixtral-8x7B-Instruct-v0.1"),
		MaxTokens:        getEnvInt("MEDSAGE_COMPLETION_MAX_TOKENS", 1024),
		Temperature:      getEnvFloat("MEDSAGE_COMPLETION_TEMPERATURE", 0.7),
		TopP:             getEnvFloat("MEDSAGE_COMPLETION_TOP_P", 0.7),
		PromptTokenLimit: getEnvInt("MEDSAGE_PROMPT_TOKEN_LIMIT", 4096),

		GeminiAPIKey:  getEnv("MEDSAGE_GEMINI_API_KEY", ""),
		FallbackRoute: getEnv("MEDSAGE_FALLBACK_ROUTE", "pubmed_web"),

		DefaultTimeout: getEnvDuration("MEDSAGE_DEFAULT_TIMEOUT_SEC", 30) * time.Second,
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("[Config] Validation failed: %v", err)
	}

	return cfg
}

func loadQdrant(name, defaultCollection string) QdrantConfig {
	prefix := "MEDSAGE_" + name + "_QDRANT_"
	return QdrantConfig{
		Host:           getEnv(prefix+"HOST", "localhost"),
		Port:           getEnvInt(prefix+"PORT", 6334),
		APIKey:         getEnv(prefix+"API_KEY", ""),
		Collection:     getEnv(prefix+"COLLECTION", defaultCollection),
		SimilarityTopK: getEnvInt(prefix+"TOP_K", 10),
		SparseTopK:     getEnvInt(prefix+"SPARSE_TOP_K", 5),
		Threshold:      getEnvFloat(prefix+"RELEVANCE_THRESHOLD", 0.1),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("[Config] Warning: Invalid int for %s: %v. Using fallback %d", key, err, fallback)
		return fallback
	}
	return value
}

func getEnvFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("[Config] Warning: Invalid float for %s: %v. Using fallback %v", key, err, fallback)
		return fallback
	}
	return value
}

func getEnvDuration(key string, fallback int) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return time.Duration(fallback)
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("[Config] Warning: Invalid duration for %s: %v. Using fallback %d", key, err, fallback)
		return time.Duration(fallback)
	}
	return time.Duration(value)
}
