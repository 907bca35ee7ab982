package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/todoapi/internal/server/vectorindex"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthReport is the outcome of a dependency check.
type HealthReport struct {
	Status   string
	Services map[string]string
}

// HealthService pings PostgreSQL and the vector index. The database is
// required; the index only degrades the report.
type HealthService struct {
	db      *sql.DB
	index   vectorindex.Index
	timeout time.Duration
}

func NewHealthService(db *sql.DB, index vectorindex.Index, timeout time.Duration) *HealthService {
	return &HealthService{db: db, index: index, timeout: timeout}
}

func (s *HealthService) Check(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	report := HealthReport{Status: StatusHealthy, Services: map[string]string{}}

	if err := s.db.PingContext(ctx); err != nil {
		report.Services["database"] = StatusUnhealthy
		report.Status = StatusUnhealthy
	} else {
		report.Services["database"] = StatusHealthy
	}

	if err := s.index.Health(ctx); err != nil {
		report.Services["vector_index"] = StatusUnhealthy
		if report.Status == StatusHealthy {
			report.Status = StatusDegraded
		}
	} else {
		report.Services["vector_index"] = StatusHealthy
	}

	return report
}
