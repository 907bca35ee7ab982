package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/todoapi/internal/flagx"
	"github.com/dmitrijs2005/todoapi/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations use
// timex.Duration so both "5s" and integer nanoseconds are accepted. Absent
// keys leave the corresponding Config field untouched.
type JsonConfig struct {
	EndpointAddrHTTP      string         `json:"endpoint_addr_http"`
	DatabaseDSN           string         `json:"database_dsn"`
	SecretKey             string         `json:"secret_key"`
	JWTAlgorithm          string         `json:"jwt_algorithm"`
	TokenValidityDuration timex.Duration `json:"token_validity_duration"`
	LogLevel              string         `json:"log_level"`

	QdrantHost         string         `json:"qdrant_host"`
	QdrantPort         int            `json:"qdrant_port"`
	QdrantAPIKey       string         `json:"qdrant_api_key"`
	QdrantUseTLS       *bool          `json:"qdrant_use_tls"`
	QdrantCollection   string         `json:"qdrant_collection"`
	VectorSize         int            `json:"vector_size"`
	IndexTimeout       timex.Duration `json:"index_timeout"`
	IndexRetryAttempts *int           `json:"index_retry_attempts"`

	EmbeddingProvider string         `json:"embedding_provider"`
	EmbeddingModel    string         `json:"embedding_model"`
	EmbeddingURL      string         `json:"embedding_url"`
	EmbeddingCacheDir string         `json:"embedding_cache_dir"`
	EmbeddingTimeout  timex.Duration `json:"embedding_timeout"`

	ReindexOnStart *bool `json:"reindex_on_start"`
}

// parseJson overlays values from the file named by -c / -config in args.
// Without either flag nothing is loaded. An unreadable file or invalid JSON
// panics, the same way a bad command-line flag does.
func parseJson(config *Config, args []string) {
	path := flagx.JSONConfigPath(args)
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.JWTAlgorithm, c.JWTAlgorithm)
	if c.TokenValidityDuration.Duration != 0 {
		config.TokenValidityDuration = c.TokenValidityDuration.Duration
	}
	setString(&config.LogLevel, c.LogLevel)

	setString(&config.QdrantHost, c.QdrantHost)
	if c.QdrantPort != 0 {
		config.QdrantPort = c.QdrantPort
	}
	setString(&config.QdrantAPIKey, c.QdrantAPIKey)
	if c.QdrantUseTLS != nil {
		config.QdrantUseTLS = *c.QdrantUseTLS
	}
	setString(&config.QdrantCollection, c.QdrantCollection)
	if c.VectorSize != 0 {
		config.VectorSize = c.VectorSize
	}
	if c.IndexTimeout.Duration != 0 {
		config.IndexTimeout = c.IndexTimeout.Duration
	}
	if c.IndexRetryAttempts != nil {
		config.IndexRetryAttempts = *c.IndexRetryAttempts
	}

	setString(&config.EmbeddingProvider, c.EmbeddingProvider)
	setString(&config.EmbeddingModel, c.EmbeddingModel)
	setString(&config.EmbeddingURL, c.EmbeddingURL)
	setString(&config.EmbeddingCacheDir, c.EmbeddingCacheDir)
	if c.EmbeddingTimeout.Duration != 0 {
		config.EmbeddingTimeout = c.EmbeddingTimeout.Duration
	}

	if c.ReindexOnStart != nil {
		config.ReindexOnStart = *c.ReindexOnStart
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
