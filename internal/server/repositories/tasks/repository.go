package tasks

import (
	"context"

	"github.com/dmitrijs2005/todoapi/internal/server/models"
)

// Repository stores tasks. Every per-task method takes the owner id and only
// ever sees that owner's rows; a task owned by somebody else is reported as
// common.ErrorNotFound.
type Repository interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, userID, id string) (*models.Task, error)
	GetByIDs(ctx context.Context, userID string, ids []string) ([]*models.Task, error)
	List(ctx context.Context, userID string, filter models.TaskFilter) ([]*models.Task, error)
	Update(ctx context.Context, task *models.Task) error
	UpdateEmbedding(ctx context.Context, userID, id, embedding string) error
	Delete(ctx context.Context, userID, id string) error
	ListBatch(ctx context.Context, afterID string, limit int) ([]*models.Task, error)
	ExistingIDs(ctx context.Context, ids []string) ([]string, error)
}
