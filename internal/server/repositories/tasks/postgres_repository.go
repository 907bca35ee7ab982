// Package tasks provides the PostgreSQL-backed task repository.
package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/todoapi/internal/common"
	"github.com/dmitrijs2005/todoapi/internal/dbx"
	"github.com/dmitrijs2005/todoapi/internal/server/models"
)

const taskColumns = `id, user_id, title, description, completed, created_at, updated_at, embedding`

// PostgresRepository implements task storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a task with a caller-assigned id. created_at and updated_at
// are taken from the database.
func (r *PostgresRepository) Create(ctx context.Context, task *models.Task) error {
	query := `
		INSERT INTO tasks (id, user_id, title, description, completed, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	if task.Embedding == "" {
		task.Embedding = models.EmptyEmbedding
	}

	err := r.db.QueryRowContext(ctx, query,
		task.ID, task.UserID, task.Title, nullString(task.Description), task.Completed, task.Embedding,
	).Scan(&task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, userID, id string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE id = $1 AND user_id = $2
	`
	task, err := scanTask(r.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return task, nil
}

// GetByIDs returns the owner's tasks among ids in no particular order. Ids
// that do not exist or belong to another user are silently skipped.
func (r *PostgresRepository) GetByIDs(ctx context.Context, userID string, ids []string) ([]*models.Task, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, userID)
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		args = append(args, id)
		placeholders[i] = fmt.Sprintf("$%d", i+2)
	}

	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE user_id = $1 AND id IN (` + strings.Join(placeholders, ", ") + `)`

	return r.queryTasks(ctx, query, args...)
}

// List returns the owner's tasks ordered by creation time, optionally
// narrowed by completion state and a case-insensitive substring match on
// title or description.
// ExistingIDs returns the subset of ids that still have a row, regardless of
// owner. Used to find index points left behind by failed deletes.
func (r *PostgresRepository) ExistingIDs(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, len(ids))
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		args[i] = id
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT id FROM tasks WHERE id IN (`+strings.Join(placeholders, ", ")+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var found []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		found = append(found, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return found, nil
}

func (r *PostgresRepository) List(ctx context.Context, userID string, filter models.TaskFilter) ([]*models.Task, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + taskColumns + ` FROM tasks WHERE user_id = $1`)
	args := []any{userID}

	if filter.Completed != nil {
		args = append(args, *filter.Completed)
		fmt.Fprintf(&sb, ` AND completed = $%d`, len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+escapeLike(strings.ToLower(filter.Search))+"%")
		n := len(args)
		fmt.Fprintf(&sb, ` AND (LOWER(title) LIKE $%d ESCAPE '\' OR LOWER(COALESCE(description, '')) LIKE $%d ESCAPE '\')`, n, n)
	}
	sb.WriteString(` ORDER BY created_at, id`)

	return r.queryTasks(ctx, sb.String(), args...)
}

// Update writes title, description, completed and embedding and bumps
// updated_at. Returns common.ErrorNotFound if the owner has no such task.
func (r *PostgresRepository) Update(ctx context.Context, task *models.Task) error {
	query := `
		UPDATE tasks
		SET title = $1, description = $2, completed = $3, embedding = $4, updated_at = now()
		WHERE id = $5 AND user_id = $6
		RETURNING updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		task.Title, nullString(task.Description), task.Completed, task.Embedding, task.ID, task.UserID,
	).Scan(&task.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// UpdateEmbedding replaces only the stored vector; updated_at is left alone.
func (r *PostgresRepository) UpdateEmbedding(ctx context.Context, userID, id, embedding string) error {
	query := `UPDATE tasks SET embedding = $1 WHERE id = $2 AND user_id = $3`

	res, err := r.db.ExecContext(ctx, query, embedding, id, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res)
}

func (r *PostgresRepository) Delete(ctx context.Context, userID, id string) error {
	query := `DELETE FROM tasks WHERE id = $1 AND user_id = $2`

	res, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res)
}

// ListBatch pages through all tasks of all users by id. Pass the last id of
// the previous page as afterID, "" for the first page.
func (r *PostgresRepository) ListBatch(ctx context.Context, afterID string, limit int) ([]*models.Task, error) {
	if afterID == "" {
		query := `SELECT ` + taskColumns + ` FROM tasks ORDER BY id LIMIT $1`
		return r.queryTasks(ctx, query, limit)
	}
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id > $1 ORDER BY id LIMIT $2`
	return r.queryTasks(ctx, query, afterID, limit)
}

func (r *PostgresRepository) queryTasks(ctx context.Context, query string, args ...any) ([]*models.Task, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select tasks: %w", err)
	}
	defer rows.Close()

	var result []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*models.Task, error) {
	var (
		t    models.Task
		desc sql.NullString
	)
	if err := s.Scan(&t.ID, &t.UserID, &t.Title, &desc, &t.Completed, &t.CreatedAt, &t.UpdatedAt, &t.Embedding); err != nil {
		return nil, err
	}
	if desc.Valid {
		t.Description = &desc.String
	}
	return &t, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
