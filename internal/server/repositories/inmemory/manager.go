// Package inmemory provides map-backed repositories for tests and local
// runs without PostgreSQL. Repositories ignore the DBTX they are bound to, so
// writes take effect immediately and are not undone by a rollback.
package inmemory

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/todoapi/internal/dbx"
	"github.com/dmitrijs2005/todoapi/internal/server/repositories/tasks"
	"github.com/dmitrijs2005/todoapi/internal/server/repositories/users"
)

type RepositoryManager struct {
	users *UsersRepository
	tasks *TasksRepository
}

func NewRepositoryManager() *RepositoryManager {
	return &RepositoryManager{
		users: NewUsersRepository(),
		tasks: NewTasksRepository(),
	}
}

func (m *RepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	return nil
}

func (m *RepositoryManager) Users(db dbx.DBTX) users.Repository {
	return m.users
}

func (m *RepositoryManager) Tasks(db dbx.DBTX) tasks.Repository {
	return m.tasks
}
