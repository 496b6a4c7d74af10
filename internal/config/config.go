// Package config loads the service's environment-variable configuration,
// per the recognized options table in the external interfaces spec.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds every recognized environment option.
type Config struct {
	// Remote model endpoints.
	EmbeddingsBaseURL string
	EmbeddingsModel   string
	EmbeddingsAPIKey  string
	LLMBaseURL        string
	LLMModel          string
	LLMAPIKey         string
	RerankerBaseURL   string

	// Chunker windowing.
	ChunkerWindowTokens  int
	ChunkerOverlapTokens int

	// Stores.
	PostgresDSN        string
	QdrantDSN          string
	WeaviateCollection string
	VectorDimensions   int
	GraphEnabled       bool
	Neo4jURI           string
	Neo4jUser          string
	Neo4jPassword      string
	RedisAddr          string
	RedisQueue         string
	RedisProgressChan  string

	// Auth & filesystem.
	TenantsByToken map[string]string
	DataDir        string
	ModelCacheDir  string
	AdminToken     string

	// Worker.
	WorkerConcurrency int

	// Ambient.
	LogLevel    string
	HTTPAddr    string
	AdminAddr   string
	OTelEnabled bool
}

// Load reads a .env file if present (best-effort, never fatal) and then
// builds a Config from the process environment, applying the same
// defaults a deployment would rely on.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		EmbeddingsBaseURL:    getEnv("EMBEDDINGS_BASE_URL", "http://localhost:8081"),
		EmbeddingsModel:      getEnv("EMBEDDINGS_MODEL", "text-embedding-3-small"),
		EmbeddingsAPIKey:     getEnv("EMBEDDINGS_API_KEY", ""),
		LLMBaseURL:           getEnv("LLM_BASE_URL", "http://localhost:8080/v1"),
		LLMModel:             getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMAPIKey:            getEnv("LLM_API_KEY", ""),
		RerankerBaseURL:      getEnv("RERANKER_BASE_URL", ""),
		ChunkerWindowTokens:  getEnvInt("CHUNKER_WINDOW_TOKENS", 2000),
		ChunkerOverlapTokens: getEnvInt("CHUNKER_OVERLAP_TOKENS", 200),
		PostgresDSN:          getEnv("POSTGRES_DSN", "postgres://localhost:5432/rag"),
		QdrantDSN:            getEnv("QDRANT_DSN", "http://localhost:6334"),
		WeaviateCollection:   getEnv("WEAVIATE_COLLECTION", "rag_chunks"),
		VectorDimensions:     getEnvInt("VECTOR_DIMENSIONS", 1536),
		GraphEnabled:         getEnvBool("GRAPH_ENABLED", true),
		Neo4jURI:             getEnv("NEO4J_URI", "neo4j://localhost:7687"),
		Neo4jUser:            getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:        getEnv("NEO4J_PASSWORD", ""),
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisQueue:           getEnv("REDIS_QUEUE", "rag:ingest:jobs"),
		RedisProgressChan:    getEnv("REDIS_PROGRESS_CHANNEL", "rag:ingest:progress"),
		DataDir:              getEnv("RAG_DATA_DIR", "./data"),
		ModelCacheDir:        getEnv("MODEL_CACHE_DIR", "./models"),
		AdminToken:           getEnv("RAG_ADMIN_TOKEN", ""),
		WorkerConcurrency:    getEnvInt("WORKER_CONCURRENCY", 4),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		HTTPAddr:             getEnv("HTTP_ADDR", ":8080"),
		AdminAddr:            getEnv("ADMIN_ADDR", ":8081"),
		OTelEnabled:          getEnvBool("OTEL_ENABLED", false),
	}

	tenants, err := parseTenants(os.Getenv("RAG_TENANTS_JSON"))
	if err != nil {
		return nil, fmt.Errorf("parse RAG_TENANTS_JSON: %w", err)
	}
	cfg.TenantsByToken = tenants

	if cfg.WorkerConcurrency < 1 || cfg.WorkerConcurrency > 32 {
		return nil, fmt.Errorf("WORKER_CONCURRENCY must be in [1,32], got %d", cfg.WorkerConcurrency)
	}
	return cfg, nil
}

// parseTenants decodes RAG_TENANTS_JSON, a flat {"token": "tenant_id"} map.
func parseTenants(raw string) (map[string]string, error) {
	out := map[string]string{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
