package rest

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/todoapi/internal/common"
	"github.com/dmitrijs2005/todoapi/internal/server/models"
	"github.com/dmitrijs2005/todoapi/internal/server/services"
)

type fakeUsers struct {
	users map[string]*models.User
	err   error
}

func (f *fakeUsers) Signup(ctx context.Context, email string) (*services.AuthResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	if _, ok := f.users[email]; ok {
		return nil, common.ErrorAlreadyExists
	}
	u := &models.User{ID: "33333333-3333-4333-8333-333333333333", Email: email}
	f.users[email] = u
	return &services.AuthResult{Token: "signed-token", User: u}, nil
}

func (f *fakeUsers) Signin(ctx context.Context, email string) (*services.AuthResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	if email == "" {
		return nil, common.ErrorValidation
	}
	u, ok := f.users[email]
	if !ok {
		return nil, common.ErrorUnauthorized
	}
	return &services.AuthResult{Token: "signed-token", User: u}, nil
}

// fakeTasks records the last call and returns canned results.
type fakeTasks struct {
	calls int

	lastOwner  string
	lastID     string
	lastFilter models.TaskFilter
	lastInput  models.TaskInput
	lastPatch  models.TaskPatch
	lastLimit  int
	lastQuery  string

	task    *models.Task
	tasks   []*models.Task
	similar []models.SimilarTask
	err     error
}

func (f *fakeTasks) record(owner, id string) error {
	f.calls++
	f.lastOwner, f.lastID = owner, id
	return f.err
}

func (f *fakeTasks) Create(ctx context.Context, userID string, in models.TaskInput) (*models.Task, error) {
	f.lastInput = in
	if err := f.record(userID, ""); err != nil {
		return nil, err
	}
	return f.task, nil
}

func (f *fakeTasks) Get(ctx context.Context, userID, id string) (*models.Task, error) {
	if err := f.record(userID, id); err != nil {
		return nil, err
	}
	return f.task, nil
}

func (f *fakeTasks) List(ctx context.Context, userID string, filter models.TaskFilter) ([]*models.Task, error) {
	f.lastFilter = filter
	if err := f.record(userID, ""); err != nil {
		return nil, err
	}
	return f.tasks, nil
}

func (f *fakeTasks) Update(ctx context.Context, userID, id string, patch models.TaskPatch) (*models.Task, error) {
	f.lastPatch = patch
	if err := f.record(userID, id); err != nil {
		return nil, err
	}
	return f.task, nil
}

func (f *fakeTasks) Delete(ctx context.Context, userID, id string) error {
	return f.record(userID, id)
}

func (f *fakeTasks) Similar(ctx context.Context, userID, taskID string, limit int) ([]models.SimilarTask, error) {
	f.lastLimit = limit
	if err := f.record(userID, taskID); err != nil {
		return nil, err
	}
	return f.similar, nil
}

func (f *fakeTasks) Search(ctx context.Context, userID, query string, limit int) ([]models.SimilarTask, error) {
	f.lastLimit, f.lastQuery = limit, query
	if err := f.record(userID, ""); err != nil {
		return nil, err
	}
	return f.similar, nil
}

type fakeHealth struct {
	report services.HealthReport
}

func (f fakeHealth) Check(context.Context) services.HealthReport { return f.report }

var errDatabase = errors.New("pq: connection refused on 10.0.0.5")

func sampleTask(owner string) *models.Task {
	desc := "two litres"
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &models.Task{
		ID:          "44444444-4444-4444-8444-444444444444",
		UserID:      owner,
		Title:       "Buy milk",
		Description: &desc,
		CreatedAt:   ts,
		UpdatedAt:   ts,
		Embedding:   "[0.1,0.2]",
	}
}
