package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/todoapi/internal/common"
	"github.com/dmitrijs2005/todoapi/internal/server/models"
	"github.com/google/uuid"
)

type UsersRepository struct {
	mu      sync.RWMutex
	byEmail map[string]models.User
}

func NewUsersRepository() *UsersRepository {
	return &UsersRepository{byEmail: map[string]models.User{}}
}

func (r *UsersRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEmail[user.Email]; ok {
		return nil, common.ErrorAlreadyExists
	}
	u := models.User{ID: uuid.NewString(), Email: user.Email, CreatedAt: time.Now().UTC()}
	r.byEmail[u.Email] = u
	return &u, nil
}

func (r *UsersRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byEmail[email]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &u, nil
}

func (r *UsersRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.byEmail {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, common.ErrorNotFound
}
