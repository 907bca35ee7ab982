// Package rest exposes the todo API over HTTP using echo.
package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/todoapi/internal/logging"
	"github.com/dmitrijs2005/todoapi/internal/server/metrics"
	"github.com/dmitrijs2005/todoapi/internal/server/models"
	"github.com/dmitrijs2005/todoapi/internal/server/services"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	Version = "1.0.0"

	shutdownTimeout = 10 * time.Second
)

type UserService interface {
	Signup(ctx context.Context, email string) (*services.AuthResult, error)
	Signin(ctx context.Context, email string) (*services.AuthResult, error)
}

type TaskService interface {
	Create(ctx context.Context, userID string, in models.TaskInput) (*models.Task, error)
	Get(ctx context.Context, userID, id string) (*models.Task, error)
	List(ctx context.Context, userID string, filter models.TaskFilter) ([]*models.Task, error)
	Update(ctx context.Context, userID, id string, patch models.TaskPatch) (*models.Task, error)
	Delete(ctx context.Context, userID, id string) error
	Similar(ctx context.Context, userID, taskID string, limit int) ([]models.SimilarTask, error)
	Search(ctx context.Context, userID, query string, limit int) ([]models.SimilarTask, error)
}

type HealthChecker interface {
	Check(ctx context.Context) services.HealthReport
}

type HTTPServer struct {
	address      string
	echo         *echo.Echo
	users        UserService
	tasks        TaskService
	health       HealthChecker
	metrics      *metrics.Metrics
	logger       logging.Logger
	jwtSecret    []byte
	jwtAlgorithm string
}

func NewHTTPServer(a string, l logging.Logger, us UserService, ts TaskService, hc HealthChecker,
	m *metrics.Metrics, secretKey, jwtAlgorithm string) *HTTPServer {
	s := &HTTPServer{
		address:      a,
		users:        us,
		tasks:        ts,
		health:       hc,
		metrics:      m,
		logger:       l.With("module", "http_server"),
		jwtSecret:    []byte(secretKey),
		jwtAlgorithm: jwtAlgorithm,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.errorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestLogger)
	e.Use(s.accessTokenMiddleware)

	s.echo = e
	s.registerRoutes()

	return s
}

func (s *HTTPServer) registerRoutes() {
	s.echo.GET("/", s.handleRoot)
	s.echo.GET("/health", s.handleHealth)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	a := s.echo.Group("/auth")
	a.POST("/signup", s.handleSignup)
	a.POST("/signin", s.handleSignin)
	a.GET("/me", s.handleMe)

	t := s.echo.Group("/users/:user_id/tasks")
	t.GET("", s.handleListTasks)
	t.POST("", s.handleCreateTask)
	t.GET("/search", s.handleSearchTasks)
	t.GET("/:task_id", s.handleGetTask)
	t.PUT("/:task_id", s.handleUpdateTask)
	t.DELETE("/:task_id", s.handleDeleteTask)
	t.GET("/:task_id/similar", s.handleSimilarTasks)
}

// Handler returns the configured http.Handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.echo
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")

		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := s.echo.Shutdown(sctx); err != nil {
			s.logger.Error(sctx, "HTTP server shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := s.echo.Start(s.address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
