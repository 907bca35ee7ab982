// Package vectorindex mirrors tasks into a vector database for similarity
// search. PostgreSQL stays the source of truth; the index only holds
// vectors and a denormalized payload.
package vectorindex

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the index cannot be reached.
var ErrUnavailable = errors.New("vector index unavailable")

// Payload keys stored with every point.
const (
	FieldUserID      = "user_id"
	FieldTaskID      = "task_id"
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldCompleted   = "completed"
	FieldCreatedAt   = "created_at"
	FieldUpdatedAt   = "updated_at"
)

// Point is one task in the index. ID is the task id.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// Hit is a search result ordered by descending Score.
type Hit struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// Index is the subset of vector database operations the task service needs.
type Index interface {
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, p Point) error
	Delete(ctx context.Context, id string) error
	// Search returns up to limit points owned by userID, nearest first.
	Search(ctx context.Context, userID string, vector []float32, limit uint64) ([]Hit, error)
	// ListIDs pages through every point id. offset is the first id of the
	// page ("" for the start); next is "" after the last page.
	ListIDs(ctx context.Context, offset string, limit uint32) (ids []string, next string, err error)
	Health(ctx context.Context) error
	Close() error
}
