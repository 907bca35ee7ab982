// Package server wires the todo API together: configuration, PostgreSQL,
// the vector index, the embedding provider, services and the HTTP server.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/todoapi/internal/logging"
	"github.com/dmitrijs2005/todoapi/internal/server/config"
	"github.com/dmitrijs2005/todoapi/internal/server/embeddings"
	"github.com/dmitrijs2005/todoapi/internal/server/metrics"
	"github.com/dmitrijs2005/todoapi/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/todoapi/internal/server/rest"
	"github.com/dmitrijs2005/todoapi/internal/server/services"
	"github.com/dmitrijs2005/todoapi/internal/server/vectorindex"
	_ "github.com/jackc/pgx/v5/stdlib"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	index    vectorindex.Index
	embedder *embeddings.Service
	metrics  *metrics.Metrics

	userService   *services.UserService
	taskService   *services.TaskService
	healthService *services.HealthService
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	rm, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("db init error: %w", err)
	}

	if err := rm.RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	m := metrics.New()

	index, err := vectorindex.NewQdrantIndex(vectorindex.QdrantConfig{
		Host:           c.QdrantHost,
		Port:           c.QdrantPort,
		UseTLS:         c.QdrantUseTLS,
		APIKey:         c.QdrantAPIKey,
		Collection:     c.QdrantCollection,
		VectorSize:     uint64(c.VectorSize),
		RequestTimeout: c.IndexTimeout,
		RetryAttempts:  c.IndexRetryAttempts,
	}, logger, m)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("vector index init error: %w", err)
	}

	// the index may come up later; EnsureCollection is retried on first use
	if err := index.EnsureCollection(ctx); err != nil {
		logger.Warn(ctx, "vector index not ready, continuing without it", "error", err)
	}

	provider, providerName, err := newEmbeddingProvider(ctx, c, logger, embeddings.NewProvider)
	if err != nil {
		index.Close()
		db.Close()
		return nil, err
	}
	embedder := embeddings.NewService(provider, providerName, c.VectorSize, c.EmbeddingTimeout, logger, m)

	us := services.NewUserService(db, rm, c, logger)
	ts := services.NewTaskService(db, rm, embedder, index, c, logger, m)
	hs := services.NewHealthService(db, index, c.IndexTimeout)

	return &App{
		config:        c,
		logger:        logger,
		db:            db,
		index:         index,
		embedder:      embedder,
		metrics:       m,
		userService:   us,
		taskService:   ts,
		healthService: hs,
	}, nil
}

type providerFactory func(embeddings.ProviderConfig) (embeddings.Provider, error)

// newEmbeddingProvider builds the configured provider and returns it with the
// name it runs under. When fastembed is requested from a binary built without
// cgo it falls back to hash and logs a warning.
func newEmbeddingProvider(ctx context.Context, c *config.Config, logger logging.Logger, build providerFactory) (embeddings.Provider, string, error) {
	cfg := embeddings.ProviderConfig{
		Provider:  c.EmbeddingProvider,
		Model:     c.EmbeddingModel,
		URL:       c.EmbeddingURL,
		CacheDir:  c.EmbeddingCacheDir,
		Dimension: c.VectorSize,
	}
	name := strings.ToLower(c.EmbeddingProvider)
	if name == "" {
		name = embeddings.ProviderFastEmbed
	}

	provider, err := build(cfg)
	if errors.Is(err, embeddings.ErrFastEmbedNotAvailable) {
		logger.Warn(ctx, "fastembed not available in this build, falling back to hash embeddings", "error", err)
		cfg.Provider = embeddings.ProviderHash
		name = embeddings.ProviderHash
		provider, err = build(cfg)
	}
	if err != nil {
		return nil, "", fmt.Errorf("embedding provider init error: %w", err)
	}

	if provider.Dimension() != c.VectorSize {
		provider.Close()
		return nil, "", fmt.Errorf("embedding provider produces %d dimensions, vector size is %d", provider.Dimension(), c.VectorSize)
	}
	return provider, name, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := rest.NewHTTPServer(app.config.EndpointAddrHTTP, app.logger, app.userService, app.taskService,
		app.healthService, app.metrics, app.config.SecretKey, app.config.JWTAlgorithm)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) reindex(ctx context.Context) {
	res, err := app.taskService.Reindex(ctx)
	if err != nil {
		app.logger.Warn(ctx, "startup reindex failed", "error", err, "indexed", res.Indexed)
	}
}

// Run serves until a termination signal arrives, then releases resources.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	if app.config.ReindexOnStart {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.reindex(ctx)
		}()
	}

	wg.Wait()
	app.close(context.WithoutCancel(ctx))
}

func (app *App) close(ctx context.Context) {
	if err := app.embedder.Close(); err != nil {
		app.logger.Warn(ctx, "embedding provider close failed", "error", err)
	}
	if err := app.index.Close(); err != nil {
		app.logger.Warn(ctx, "vector index close failed", "error", err)
	}
	if err := app.db.Close(); err != nil {
		app.logger.Warn(ctx, "db close failed", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
