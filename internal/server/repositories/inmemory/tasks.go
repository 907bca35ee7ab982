package inmemory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/todoapi/internal/common"
	"github.com/dmitrijs2005/todoapi/internal/server/models"
)

// TasksRepository mirrors the ordering and ownership rules of the
// PostgreSQL repository. Tasks are copied in and out.
type TasksRepository struct {
	mu    sync.RWMutex
	tasks map[string]*models.Task
	now   func() time.Time
}

func NewTasksRepository() *TasksRepository {
	return &TasksRepository{
		tasks: map[string]*models.Task{},
		now:   monotonicClock(),
	}
}

// monotonicClock returns strictly increasing times so created_at ordering
// is stable even for tasks created within the same clock tick.
func monotonicClock() func() time.Time {
	var last time.Time
	return func() time.Time {
		t := time.Now().UTC()
		if !t.After(last) {
			t = last.Add(time.Microsecond)
		}
		last = t
		return t
	}
}

func copyTask(t *models.Task) *models.Task {
	c := *t
	if t.Description != nil {
		d := *t.Description
		c.Description = &d
	}
	return &c
}

func (r *TasksRepository) Create(ctx context.Context, task *models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[task.ID]; ok {
		return common.ErrorAlreadyExists
	}
	now := r.now()
	task.CreatedAt, task.UpdatedAt = now, now
	r.tasks[task.ID] = copyTask(task)
	return nil
}

func (r *TasksRepository) GetByID(ctx context.Context, userID, id string) (*models.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[id]
	if !ok || t.UserID != userID {
		return nil, common.ErrorNotFound
	}
	return copyTask(t), nil
}

func (r *TasksRepository) GetByIDs(ctx context.Context, userID string, ids []string) ([]*models.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Task
	for _, id := range ids {
		if t, ok := r.tasks[id]; ok && t.UserID == userID {
			out = append(out, copyTask(t))
		}
	}
	return out, nil
}

func (r *TasksRepository) ExistingIDs(ctx context.Context, ids []string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for _, id := range ids {
		if _, ok := r.tasks[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (r *TasksRepository) List(ctx context.Context, userID string, filter models.TaskFilter) ([]*models.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	search := strings.ToLower(filter.Search)
	out := []*models.Task{}
	for _, t := range r.tasks {
		if t.UserID != userID {
			continue
		}
		if filter.Completed != nil && t.Completed != *filter.Completed {
			continue
		}
		if search != "" && !matches(t, search) {
			continue
		}
		out = append(out, copyTask(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func matches(t *models.Task, search string) bool {
	if strings.Contains(strings.ToLower(t.Title), search) {
		return true
	}
	return t.Description != nil && strings.Contains(strings.ToLower(*t.Description), search)
}

func (r *TasksRepository) Update(ctx context.Context, task *models.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.tasks[task.ID]
	if !ok || cur.UserID != task.UserID {
		return common.ErrorNotFound
	}
	task.CreatedAt = cur.CreatedAt
	task.UpdatedAt = r.now()
	r.tasks[task.ID] = copyTask(task)
	return nil
}

func (r *TasksRepository) UpdateEmbedding(ctx context.Context, userID, id, embedding string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok || t.UserID != userID {
		return common.ErrorNotFound
	}
	t.Embedding = embedding
	return nil
}

func (r *TasksRepository) Delete(ctx context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok || t.UserID != userID {
		return common.ErrorNotFound
	}
	delete(r.tasks, id)
	return nil
}

func (r *TasksRepository) ListBatch(ctx context.Context, afterID string, limit int) ([]*models.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.tasks))
	for id := range r.tasks {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]*models.Task, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyTask(r.tasks[id]))
	}
	return out, nil
}
