package embeddings

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/todoapi/internal/logging"
	"github.com/dmitrijs2005/todoapi/internal/server/metrics"
)

const (
	fallbackEmpty     = "empty"
	fallbackTimeout   = "timeout"
	fallbackError     = "error"
	fallbackDimension = "dimension"
)

// Service wraps a Provider with a per-call timeout and a zero-vector
// fallback, so callers always get a vector of the configured dimension.
type Service struct {
	provider     Provider
	providerName string
	dimension    int
	timeout      time.Duration
	logger       logging.Logger
	metrics      *metrics.Metrics
}

func NewService(p Provider, providerName string, dimension int, timeout time.Duration, logger logging.Logger, m *metrics.Metrics) *Service {
	return &Service{
		provider:     p,
		providerName: providerName,
		dimension:    dimension,
		timeout:      timeout,
		logger:       logger.With("module", "embeddings"),
		metrics:      m,
	}
}

func (s *Service) Dimension() int { return s.dimension }

// Generate returns the embedding of text. Blank text, provider failure,
// timeout and a vector of the wrong size all yield a zero vector; the
// failure is logged and counted, never returned.
func (s *Service) Generate(ctx context.Context, text string) []float32 {
	if strings.TrimSpace(text) == "" {
		s.metrics.EmbeddingFallback(fallbackEmpty)
		return s.zero()
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	vec, err := s.provider.Embed(ctx, text)
	s.metrics.ObserveEmbedding(s.providerName, time.Since(start))

	if err != nil {
		reason := fallbackError
		if errors.Is(err, context.DeadlineExceeded) {
			reason = fallbackTimeout
		} else if errors.Is(err, ErrEmptyInput) {
			reason = fallbackEmpty
		}
		s.logger.Warn(ctx, "embedding failed, using zero vector", "reason", reason, "error", err)
		s.metrics.EmbeddingFallback(reason)
		return s.zero()
	}

	if len(vec) != s.dimension {
		s.logger.Warn(ctx, "embedding has unexpected dimension, using zero vector", "got", len(vec), "want", s.dimension)
		s.metrics.EmbeddingFallback(fallbackDimension)
		return s.zero()
	}

	return vec
}

// IsZero reports whether vec carries no information (all zeros or empty).
func IsZero(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}

func (s *Service) Close() error {
	return s.provider.Close()
}

func (s *Service) zero() []float32 {
	return make([]float32, s.dimension)
}
