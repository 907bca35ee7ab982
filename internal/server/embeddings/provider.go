// Package embeddings turns task text into fixed-size vectors. Several
// providers are supported: a local ONNX model (fastembed), a remote
// text-embeddings-inference server (tei) and deterministic feature hashing
// (hash) for development and tests. fastembed is the default.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates a provider failed to produce a vector.
	ErrEmbeddingFailed = errors.New("embedding generation failed")

	// ErrEmptyInput indicates empty input text.
	ErrEmptyInput = errors.New("empty input text")

	// ErrFastEmbedNotAvailable is returned when the binary was built without cgo.
	ErrFastEmbedNotAvailable = errors.New("fastembed: not available (binary built without CGO support, use the tei or hash provider instead)")
)

// Provider computes the embedding of a single text.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Close() error
}

const (
	ProviderHash      = "hash"
	ProviderFastEmbed = "fastembed"
	ProviderTEI       = "tei"
)

// ProviderConfig selects and configures a Provider.
type ProviderConfig struct {
	Provider  string
	Model     string
	URL       string
	CacheDir  string
	Dimension int
}

// NewProvider builds the provider named in cfg.Provider.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderHash:
		p, err := NewHashProvider(cfg.Dimension)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "", ProviderFastEmbed:
		p, err := NewFastEmbedProvider(FastEmbedConfig{Model: cfg.Model, CacheDir: cfg.CacheDir})
		if err != nil {
			return nil, err
		}
		return p, nil
	case ProviderTEI:
		p, err := NewTEIProvider(TEIConfig{BaseURL: cfg.URL, Model: cfg.Model, Dimension: cfg.Dimension})
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
