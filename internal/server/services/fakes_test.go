package services

import (
	"context"
	"database/sql"
	"math"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/todoapi/internal/common"
	"github.com/dmitrijs2005/todoapi/internal/dbx"
	"github.com/dmitrijs2005/todoapi/internal/logging"
	"github.com/dmitrijs2005/todoapi/internal/server/config"
	"github.com/dmitrijs2005/todoapi/internal/server/embeddings"
	"github.com/dmitrijs2005/todoapi/internal/server/metrics"
	"github.com/dmitrijs2005/todoapi/internal/server/models"
	tasksrepo "github.com/dmitrijs2005/todoapi/internal/server/repositories/tasks"
	usersrepo "github.com/dmitrijs2005/todoapi/internal/server/repositories/users"
	"github.com/dmitrijs2005/todoapi/internal/server/vectorindex"
	"github.com/google/uuid"
)

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return db, mock
}

func ptr[T any](v T) *T { return &v }

const testDim = 384

func newEmbedder(t *testing.T) *embeddings.Service {
	t.Helper()
	p, err := embeddings.NewHashProvider(testDim)
	if err != nil {
		t.Fatalf("NewHashProvider: %v", err)
	}
	return embeddings.NewService(p, "hash", testDim, time.Second, logging.NewNop(), nil)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.SecretKey = "k"
	cfg.IndexTimeout = time.Second
	return cfg
}

// --- users ---

type fakeUsersRepo struct {
	mu      sync.Mutex
	byEmail map[string]*models.User

	getErr    error
	createErr error
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{byEmail: map[string]*models.User{}}
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	if _, ok := f.byEmail[u.Email]; ok {
		return nil, common.ErrorAlreadyExists
	}
	u.ID = uuid.NewString()
	u.CreatedAt = time.Now()
	f.byEmail[u.Email] = u
	return u, nil
}

func (f *fakeUsersRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byEmail[email]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

func (f *fakeUsersRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, common.ErrorNotFound
}

// --- tasks ---

// fakeTasksRepo keeps tasks in memory. Writes are applied immediately, the
// sqlmock transaction only checks begin/commit/rollback.
type fakeTasksRepo struct {
	mu    sync.Mutex
	tasks map[string]*models.Task
	clock time.Time

	createErr error
	updateErr error
	listErr   error

	embeddingWrites int
}

func newFakeTasksRepo() *fakeTasksRepo {
	return &fakeTasksRepo{
		tasks: map[string]*models.Task{},
		clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeTasksRepo) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func clone(t *models.Task) *models.Task {
	c := *t
	if t.Description != nil {
		d := *t.Description
		c.Description = &d
	}
	return &c
}

func (f *fakeTasksRepo) Create(ctx context.Context, t *models.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	now := f.tick()
	t.CreatedAt, t.UpdatedAt = now, now
	f.tasks[t.ID] = clone(t)
	return nil
}

func (f *fakeTasksRepo) GetByID(ctx context.Context, userID, id string) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok || t.UserID != userID {
		return nil, common.ErrorNotFound
	}
	return clone(t), nil
}

func (f *fakeTasksRepo) GetByIDs(ctx context.Context, userID string, ids []string) ([]*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Task
	for _, id := range ids {
		if t, ok := f.tasks[id]; ok && t.UserID == userID {
			out = append(out, clone(t))
		}
	}
	return out, nil
}

func (f *fakeTasksRepo) List(ctx context.Context, userID string, filter models.TaskFilter) ([]*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*models.Task
	for _, t := range f.tasks {
		if t.UserID != userID {
			continue
		}
		if filter.Completed != nil && t.Completed != *filter.Completed {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(t.EmbeddingText()), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, clone(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeTasksRepo) Update(ctx context.Context, t *models.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	cur, ok := f.tasks[t.ID]
	if !ok || cur.UserID != t.UserID {
		return common.ErrorNotFound
	}
	t.UpdatedAt = f.tick()
	f.tasks[t.ID] = clone(t)
	return nil
}

func (f *fakeTasksRepo) UpdateEmbedding(ctx context.Context, userID, id, embedding string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok || t.UserID != userID {
		return common.ErrorNotFound
	}
	t.Embedding = embedding
	f.embeddingWrites++
	return nil
}

func (f *fakeTasksRepo) Delete(ctx context.Context, userID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok || t.UserID != userID {
		return common.ErrorNotFound
	}
	delete(f.tasks, id)
	return nil
}

func (f *fakeTasksRepo) ListBatch(ctx context.Context, afterID string, limit int) ([]*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.tasks))
	for id := range f.tasks {
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
		out = append(out, clone(f.tasks[id]))
	}
	return out, nil
}

func (f *fakeTasksRepo) ExistingIDs(ctx context.Context, ids []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, id := range ids {
		if _, ok := f.tasks[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

type fakeRepoManager struct {
	u *fakeUsersRepo
	t *fakeTasksRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository       { return m.u }
func (m *fakeRepoManager) Tasks(db dbx.DBTX) tasksrepo.Repository       { return m.t }

// --- vector index ---

type fakeIndex struct {
	mu     sync.Mutex
	points map[string]vectorindex.Point

	ensureErr error
	upsertErr error
	deleteErr error
	searchErr error
	listErr   error

	upserts  int
	deletes  int
	searches int
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{points: map[string]vectorindex.Point{}}
}

func (f *fakeIndex) EnsureCollection(ctx context.Context) error { return f.ensureErr }

func (f *fakeIndex) Upsert(ctx context.Context, p vectorindex.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.points[p.ID] = p
	return nil
}

func (f *fakeIndex) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.points, id)
	return nil
}

func (f *fakeIndex) Search(ctx context.Context, userID string, vector []float32, limit uint64) ([]vectorindex.Hit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	var hits []vectorindex.Hit
	for id, p := range f.points {
		if p.Payload[vectorindex.FieldUserID] != userID {
			continue
		}
		hits = append(hits, vectorindex.Hit{ID: id, Score: cosine(vector, p.Vector), Payload: p.Payload})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if uint64(len(hits)) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// ListIDs pages through the point ids in sorted order.
func (f *fakeIndex) ListIDs(ctx context.Context, offset string, limit uint32) ([]string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, "", f.listErr
	}
	ids := make([]string, 0, len(f.points))
	for id := range f.points {
		if id >= offset {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if uint32(len(ids)) <= limit {
		return ids, "", nil
	}
	return ids[:limit], ids[limit], nil
}

func (f *fakeIndex) Health(ctx context.Context) error { return f.searchErr }
func (f *fakeIndex) Close() error                     { return nil }

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// countingEmbedder counts how often the service asks for a fresh embedding.
type countingEmbedder struct {
	inner Embedder
	calls int
}

func (c *countingEmbedder) Generate(ctx context.Context, text string) []float32 {
	c.calls++
	return c.inner.Generate(ctx, text)
}

func (c *countingEmbedder) Dimension() int { return c.inner.Dimension() }

// --- fixture ---

type taskFixture struct {
	svc      *TaskService
	mock     sqlmock.Sqlmock
	repo     *fakeTasksRepo
	index    *fakeIndex
	embedder *countingEmbedder
	metrics  *metrics.Metrics
}

func newTaskFixture(t *testing.T) *taskFixture {
	t.Helper()
	db, mock := newSQLMockDB(t)
	t.Cleanup(func() { db.Close() })

	repo := newFakeTasksRepo()
	idx := newFakeIndex()
	m := metrics.New()
	rm := &fakeRepoManager{u: newFakeUsersRepo(), t: repo}

	emb := &countingEmbedder{inner: newEmbedder(t)}

	svc := NewTaskService(db, rm, emb, idx, testConfig(), logging.NewNop(), m)
	return &taskFixture{svc: svc, mock: mock, repo: repo, index: idx, embedder: emb, metrics: m}
}

// create runs Create with the begin/commit expectations it needs.
func (f *taskFixture) create(t *testing.T, owner, title string, desc *string) *models.Task {
	t.Helper()
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	task, err := f.svc.Create(context.Background(), owner, models.TaskInput{Title: title, Description: desc})
	if err != nil {
		t.Fatalf("Create(%q) error: %v", title, err)
	}
	return task
}
