package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/todoapi/internal/common"
	"github.com/dmitrijs2005/todoapi/internal/dbx"
	"github.com/dmitrijs2005/todoapi/internal/logging"
	"github.com/dmitrijs2005/todoapi/internal/server/config"
	"github.com/dmitrijs2005/todoapi/internal/server/embeddings"
	"github.com/dmitrijs2005/todoapi/internal/server/metrics"
	"github.com/dmitrijs2005/todoapi/internal/server/models"
	"github.com/dmitrijs2005/todoapi/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/todoapi/internal/server/vectorindex"
	"github.com/google/uuid"
)

const (
	DefaultSimilarLimit = 5
	MaxSimilarLimit     = 50

	reindexBatchSize = 100

	// searchIndex widens the query at most this many times when hits turn
	// out to be stale.
	maxSearchAttempts = 3
)

// Embedder produces a vector of Dimension() for any text. It never fails;
// see embeddings.Service.
type Embedder interface {
	Generate(ctx context.Context, text string) []float32
	Dimension() int
}

// TaskService implements task CRUD on PostgreSQL and mirrors every change
// into the vector index after the transaction commits. Index failures are
// logged and counted but never fail the request.
type TaskService struct {
	db           *sql.DB
	repomanager  repomanager.RepositoryManager
	embedder     Embedder
	index        vectorindex.Index
	logger       logging.Logger
	metrics      *metrics.Metrics
	indexTimeout time.Duration
}

func NewTaskService(db *sql.DB, m repomanager.RepositoryManager, embedder Embedder, index vectorindex.Index,
	cfg *config.Config, logger logging.Logger, mt *metrics.Metrics) *TaskService {
	return &TaskService{
		db:           db,
		repomanager:  m,
		embedder:     embedder,
		index:        index,
		logger:       logger.With("module", "tasks"),
		metrics:      mt,
		indexTimeout: cfg.IndexTimeout,
	}
}

// Create stores a new task together with its embedding and then indexes it.
func (s *TaskService) Create(ctx context.Context, userID string, in models.TaskInput) (*models.Task, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	task := &models.Task{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       in.Title,
		Description: in.Description,
		Completed:   in.Completed,
		Embedding:   models.EmptyEmbedding,
	}

	var vec []float32
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Tasks(tx)
		if err := repo.Create(ctx, task); err != nil {
			return fmt.Errorf("error creating task: %w", err)
		}

		vec = s.embedder.Generate(ctx, task.EmbeddingText())
		task.Embedding = embeddings.Encode(vec)
		if err := repo.UpdateEmbedding(ctx, userID, task.ID, task.Embedding); err != nil {
			return fmt.Errorf("error storing embedding: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.syncUpsert(ctx, task, vec)
	return task, nil
}

// Get returns the owner's task or common.ErrorNotFound.
func (s *TaskService) Get(ctx context.Context, userID, id string) (*models.Task, error) {
	if !validID(id) {
		return nil, common.ErrorNotFound
	}
	task, err := s.repomanager.Tasks(s.db).GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (s *TaskService) List(ctx context.Context, userID string, filter models.TaskFilter) ([]*models.Task, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	tasks, err := s.repomanager.Tasks(s.db).List(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("error listing tasks: %w", err)
	}
	return tasks, nil
}

// Update applies the present fields of patch. The task is re-embedded
// whenever the patch supplies a title or description, even an unchanged one,
// so resubmitting the text repairs an embedding stored during an outage.
func (s *TaskService) Update(ctx context.Context, userID, id string, patch models.TaskPatch) (*models.Task, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	if !validID(id) {
		return nil, common.ErrorNotFound
	}

	var (
		task *models.Task
		vec  []float32
	)
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Tasks(tx)

		var err error
		task, err = repo.GetByID(ctx, userID, id)
		if err != nil {
			return err
		}

		reembed := patch.SuppliesText()
		patch.Apply(task)
		if reembed {
			vec = s.embedder.Generate(ctx, task.EmbeddingText())
			task.Embedding = embeddings.Encode(vec)
		}

		return repo.Update(ctx, task)
	})
	if err != nil {
		return nil, err
	}

	if vec == nil {
		vec = s.vectorFor(ctx, task)
	}
	s.syncUpsert(ctx, task, vec)
	return task, nil
}

// Delete removes the task from PostgreSQL and then from the index.
func (s *TaskService) Delete(ctx context.Context, userID, id string) error {
	if !validID(id) {
		return common.ErrorNotFound
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return s.repomanager.Tasks(tx).Delete(ctx, userID, id)
	})
	if err != nil {
		return err
	}

	s.syncDelete(ctx, id)
	return nil
}

// Similar returns up to limit of the owner's tasks nearest to the reference
// task, excluding the reference task itself.
func (s *TaskService) Similar(ctx context.Context, userID, taskID string, limit int) ([]models.SimilarTask, error) {
	limit, err := normalizeLimit(limit)
	if err != nil {
		return nil, err
	}

	ref, err := s.Get(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}

	return s.searchIndex(ctx, userID, s.vectorFor(ctx, ref), ref.ID, limit)
}

// Search returns up to limit of the owner's tasks nearest to free text.
func (s *TaskService) Search(ctx context.Context, userID, query string, limit int) ([]models.SimilarTask, error) {
	limit, err := normalizeLimit(limit)
	if err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", common.ErrorValidation)
	}

	return s.searchIndex(ctx, userID, s.embedder.Generate(ctx, query), "", limit)
}

// ReindexResult summarizes a Reindex run.
type ReindexResult struct {
	Indexed int
	Removed int
	Failed  int
}

// Reindex walks every task and upserts it into the index, computing and
// storing embeddings that are missing. It then sweeps the collection and
// removes points whose task no longer exists. Together the two passes repair
// drift left by index outages. Per-task failures are counted, an unreachable
// index aborts.
func (s *TaskService) Reindex(ctx context.Context) (ReindexResult, error) {
	var res ReindexResult

	if err := s.index.EnsureCollection(ctx); err != nil {
		return res, fmt.Errorf("reindex: %w", err)
	}

	repo := s.repomanager.Tasks(s.db)
	afterID := ""
	for {
		batch, err := repo.ListBatch(ctx, afterID, reindexBatchSize)
		if err != nil {
			return res, fmt.Errorf("reindex: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		for _, task := range batch {
			vec, ok := s.storedVector(task)
			if !ok {
				vec = s.embedder.Generate(ctx, task.EmbeddingText())
				task.Embedding = embeddings.Encode(vec)
				if err := repo.UpdateEmbedding(ctx, task.UserID, task.ID, task.Embedding); err != nil {
					s.logger.Warn(ctx, "reindex: failed to store embedding", "task_id", task.ID, "error", err)
				}
			}

			if err := s.upsert(ctx, task, vec); err != nil {
				res.Failed++
				s.logger.Warn(ctx, "reindex: failed to index task", "task_id", task.ID, "error", err)
				continue
			}
			res.Indexed++
			s.metrics.TaskReindexed()
		}

		afterID = batch[len(batch)-1].ID
		if len(batch) < reindexBatchSize {
			break
		}
	}

	if err := s.removeOrphans(ctx, &res); err != nil {
		return res, fmt.Errorf("reindex: %w", err)
	}

	s.logger.Info(ctx, "reindex finished", "indexed", res.Indexed, "removed", res.Removed, "failed", res.Failed)
	return res, nil
}

// removeOrphans deletes every index point whose task is gone from
// PostgreSQL, e.g. after a Delete whose index call failed.
func (s *TaskService) removeOrphans(ctx context.Context, res *ReindexResult) error {
	repo := s.repomanager.Tasks(s.db)
	offset := ""
	for {
		ids, next, err := s.index.ListIDs(ctx, offset, reindexBatchSize)
		if err != nil {
			return err
		}

		candidates := make([]string, 0, len(ids))
		var orphans []string
		for _, id := range ids {
			if validID(id) {
				candidates = append(candidates, id)
			} else {
				orphans = append(orphans, id)
			}
		}

		existing, err := repo.ExistingIDs(ctx, candidates)
		if err != nil {
			return err
		}
		alive := make(map[string]struct{}, len(existing))
		for _, id := range existing {
			alive[id] = struct{}{}
		}
		for _, id := range candidates {
			if _, ok := alive[id]; !ok {
				orphans = append(orphans, id)
			}
		}

		for _, id := range orphans {
			dctx, cancel := context.WithTimeout(ctx, s.indexTimeout)
			err := s.index.Delete(dctx, id)
			cancel()
			if err != nil {
				res.Failed++
				s.logger.Warn(ctx, "reindex: failed to remove orphaned point", "task_id", id, "error", err)
				continue
			}
			res.Removed++
		}

		if next == "" {
			return nil
		}
		offset = next
	}
}

// searchIndex queries the index and loads the hits from PostgreSQL. Hits
// whose task is gone are deleted from the index on sight, and the query is
// widened so the caller still gets up to limit live results.
func (s *TaskService) searchIndex(ctx context.Context, userID string, vec []float32, excludeID string, limit int) ([]models.SimilarTask, error) {
	result := []models.SimilarTask{}

	// a zero vector has no direction to compare against
	if embeddings.IsZero(vec) {
		return result, nil
	}

	fetch := uint64(limit)
	if excludeID != "" {
		fetch++
	}

	for attempt := 0; attempt < maxSearchAttempts; attempt++ {
		hits, err := s.searchOnce(ctx, userID, vec, fetch)
		if err != nil {
			s.logger.Warn(ctx, "similarity search failed", "user_id", userID, "error", err)
			return result, nil
		}

		var stale []string
		result, stale, err = s.rehydrate(ctx, userID, hits, excludeID, limit)
		if err != nil {
			return nil, err
		}
		for _, id := range stale {
			s.syncDelete(ctx, id)
		}

		if len(result) >= limit || uint64(len(hits)) < fetch || len(stale) == 0 {
			break
		}
		fetch += uint64(len(stale))
	}
	return result, nil
}

func (s *TaskService) searchOnce(ctx context.Context, userID string, vec []float32, fetch uint64) ([]vectorindex.Hit, error) {
	ctx, cancel := context.WithTimeout(ctx, s.indexTimeout)
	defer cancel()

	return s.index.Search(ctx, userID, vec, fetch)
}

// rehydrate maps hits to the owner's tasks in hit order. stale holds the ids
// of hits with no matching row.
func (s *TaskService) rehydrate(ctx context.Context, userID string, hits []vectorindex.Hit, excludeID string, limit int) (result []models.SimilarTask, stale []string, err error) {
	result = []models.SimilarTask{}

	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.ID != excludeID && validID(h.ID) {
			ids = append(ids, h.ID)
		}
	}
	if len(ids) == 0 {
		return result, nil, nil
	}

	tasks, err := s.repomanager.Tasks(s.db).GetByIDs(ctx, userID, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("error loading similar tasks: %w", err)
	}
	byID := make(map[string]*models.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	for _, h := range hits {
		if h.ID == excludeID {
			continue
		}
		t, ok := byID[h.ID]
		if !ok {
			stale = append(stale, h.ID)
			continue
		}
		if len(result) < limit {
			result = append(result, models.SimilarTask{Task: t, Score: h.Score})
		}
	}
	return result, stale, nil
}

// vectorFor returns the stored embedding of task, or computes one when the
// stored value is missing or unusable.
func (s *TaskService) vectorFor(ctx context.Context, task *models.Task) []float32 {
	if vec, ok := s.storedVector(task); ok {
		return vec
	}
	return s.embedder.Generate(ctx, task.EmbeddingText())
}

func (s *TaskService) storedVector(task *models.Task) ([]float32, bool) {
	vec, err := embeddings.Decode(task.Embedding)
	if err != nil || len(vec) != s.embedder.Dimension() || embeddings.IsZero(vec) {
		return nil, false
	}
	return vec, true
}

// syncUpsert mirrors a committed task into the index. It runs detached from
// the request's cancellation so a client hanging up after commit does not
// leave the index behind.
func (s *TaskService) syncUpsert(ctx context.Context, task *models.Task, vec []float32) {
	ctx = context.WithoutCancel(ctx)
	if err := s.upsert(ctx, task, vec); err != nil {
		s.logger.Warn(ctx, "vector index upsert failed", "task_id", task.ID, "error", err)
		s.metrics.IndexSyncFailure("upsert")
	}
}

func (s *TaskService) syncDelete(ctx context.Context, id string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.indexTimeout)
	defer cancel()

	if err := s.index.Delete(ctx, id); err != nil {
		s.logger.Warn(ctx, "vector index delete failed", "task_id", id, "error", err)
		s.metrics.IndexSyncFailure("delete")
	}
}

func (s *TaskService) upsert(ctx context.Context, task *models.Task, vec []float32) error {
	ctx, cancel := context.WithTimeout(ctx, s.indexTimeout)
	defer cancel()

	return s.index.Upsert(ctx, vectorindex.Point{
		ID:      task.ID,
		Vector:  vec,
		Payload: taskPayload(task),
	})
}

func taskPayload(task *models.Task) map[string]any {
	return map[string]any{
		vectorindex.FieldUserID:      task.UserID,
		vectorindex.FieldTaskID:      task.ID,
		vectorindex.FieldTitle:       task.Title,
		vectorindex.FieldDescription: task.Description,
		vectorindex.FieldCompleted:   task.Completed,
		vectorindex.FieldCreatedAt:   task.CreatedAt,
		vectorindex.FieldUpdatedAt:   task.UpdatedAt,
	}
}

func normalizeLimit(limit int) (int, error) {
	if limit == 0 {
		return DefaultSimilarLimit, nil
	}
	if limit < 1 || limit > MaxSimilarLimit {
		return 0, fmt.Errorf("%w: limit must be between 1 and %d", common.ErrorValidation, MaxSimilarLimit)
	}
	return limit, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
