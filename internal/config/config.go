// Package config loads process configuration from the environment, with an
// optional .env file overlay, via typed getEnv/getEnvInt/getEnvBool helpers.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds every runtime tunable for the embedding, search, and
// connection layers.
type Config struct {
	// Embedding
	EmbeddingModel     string
	EmbeddingDimension int
	Device             string
	BatchSize          int
	MaxSeqTokens       int
	EmbeddingCacheSize int
	NoMLMode           bool

	// Index / search
	UseVectorIndex bool
	QueryCacheSize int
	VerifiedBoost  float64
	RecencyBoost   float64
	RecencyDays    int
	HybridAlpha    float64

	// Connections
	DatabaseURL string
	RedisURL    string
	AMQPURL     string

	// HTTP
	Port string
}

// Load reads a .env file if present (errors ignored, since most deployments
// rely on real environment variables instead) then builds Config from the
// environment with documented defaults.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		EmbeddingModel:     getEnv("EMBEDDING_MODEL", "sts-arabert-multilingual"),
		EmbeddingDimension: getEnvInt("EMBEDDING_DIMENSION", 256),
		Device:             getEnv("EMBEDDING_DEVICE", "cpu"),
		BatchSize:          getEnvInt("EMBEDDING_BATCH_SIZE", 32),
		MaxSeqTokens:       getEnvInt("EMBEDDING_MAX_SEQ_TOKENS", 512),
		EmbeddingCacheSize: getEnvInt("EMBEDDING_CACHE_SIZE", 10000),
		NoMLMode:           getEnvBool("NO_ML_MODE", false),

		UseVectorIndex: getEnvBool("USE_VECTOR_INDEX", true),
		QueryCacheSize: getEnvInt("QUERY_CACHE_SIZE", 200),
		VerifiedBoost:  getEnvFloat("VERIFIED_BOOST", 1.15),
		RecencyBoost:   getEnvFloat("RECENCY_BOOST", 1.10),
		RecencyDays:    getEnvInt("RECENCY_DAYS", 90),
		HybridAlpha:    getEnvFloat("HYBRID_ALPHA", 0.7),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		AMQPURL:     getEnv("AMQP_URL", ""),

		Port: getEnv("PORT", "8080"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return b
}
