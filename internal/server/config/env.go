package config

import (
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "TODO_"

// parseEnv overlays TODO_* environment variables. The prefix is stripped and
// the rest lowercased, so TODO_DATABASE_DSN sets the "database_dsn" key.
func parseEnv(config *Config) {
	k := koanf.New(".")

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil)
	if err != nil {
		panic(err)
	}

	strs := map[string]*string{
		"http_addr":           &config.EndpointAddrHTTP,
		"database_dsn":        &config.DatabaseDSN,
		"secret_key":          &config.SecretKey,
		"jwt_algorithm":       &config.JWTAlgorithm,
		"log_level":           &config.LogLevel,
		"qdrant_host":         &config.QdrantHost,
		"qdrant_api_key":      &config.QdrantAPIKey,
		"qdrant_collection":   &config.QdrantCollection,
		"embedding_provider":  &config.EmbeddingProvider,
		"embedding_model":     &config.EmbeddingModel,
		"embedding_url":       &config.EmbeddingURL,
		"embedding_cache_dir": &config.EmbeddingCacheDir,
	}
	for key, dst := range strs {
		if k.Exists(key) {
			*dst = k.String(key)
		}
	}

	if k.Exists("token_ttl") {
		config.TokenValidityDuration = k.Duration("token_ttl")
	}
	if k.Exists("index_timeout") {
		config.IndexTimeout = k.Duration("index_timeout")
	}
	if k.Exists("embedding_timeout") {
		config.EmbeddingTimeout = k.Duration("embedding_timeout")
	}
	if k.Exists("qdrant_port") {
		config.QdrantPort = k.Int("qdrant_port")
	}
	if k.Exists("vector_size") {
		config.VectorSize = k.Int("vector_size")
	}
	if k.Exists("index_retry_attempts") {
		config.IndexRetryAttempts = k.Int("index_retry_attempts")
	}
	if k.Exists("qdrant_use_tls") {
		config.QdrantUseTLS = k.Bool("qdrant_use_tls")
	}
	if k.Exists("reindex_on_start") {
		config.ReindexOnStart = k.Bool("reindex_on_start")
	}
}
