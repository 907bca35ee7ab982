package services

import (
	"context"
	"errors"
	"testing"

	"github.com/dmitrijs2005/todoapi/internal/common"
	"github.com/dmitrijs2005/todoapi/internal/logging"
	"github.com/dmitrijs2005/todoapi/internal/server/auth"
	"github.com/dmitrijs2005/todoapi/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUserService(t *testing.T, users *fakeUsersRepo) *UserService {
	t.Helper()
	db, _ := newSQLMockDB(t)
	t.Cleanup(func() { db.Close() })
	return NewUserService(db, &fakeRepoManager{u: users, t: newFakeTasksRepo()}, testConfig(), logging.NewNop())
}

func TestUserService_Signup_Success(t *testing.T) {
	users := newFakeUsersRepo()
	svc := newUserService(t, users)

	res, err := svc.Signup(context.Background(), "  alice@example.com ")
	require.NoError(t, err)
	require.NotNil(t, res.User)

	assert.Equal(t, "alice@example.com", res.User.Email)
	assert.NotEmpty(t, res.User.ID)

	claims, err := auth.ParseToken(res.Token, []byte("k"), "HS256")
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, claims.UserID)
	assert.Equal(t, "alice@example.com", claims.Email)
}

func TestUserService_Signup_AlreadyRegistered(t *testing.T) {
	users := newFakeUsersRepo()
	svc := newUserService(t, users)

	_, err := svc.Signup(context.Background(), "bob@example.com")
	require.NoError(t, err)

	_, err = svc.Signup(context.Background(), "bob@example.com")
	assert.ErrorIs(t, err, common.ErrorAlreadyExists)
	assert.Len(t, users.byEmail, 1)
}

func TestUserService_Signup_LostRace(t *testing.T) {
	// the pre-check sees nothing but the insert hits the unique constraint
	users := newFakeUsersRepo()
	users.createErr = common.ErrorAlreadyExists
	svc := newUserService(t, users)

	_, err := svc.Signup(context.Background(), "carol@example.com")
	assert.ErrorIs(t, err, common.ErrorAlreadyExists)
}

func TestUserService_Signup_Validation(t *testing.T) {
	svc := newUserService(t, newFakeUsersRepo())

	for _, email := range []string{"", "a@b", "no-at-sign.example.com"} {
		_, err := svc.Signup(context.Background(), email)
		assert.ErrorIs(t, err, common.ErrorValidation, "email %q", email)
	}
}

func TestUserService_Signup_RepoError(t *testing.T) {
	users := newFakeUsersRepo()
	users.getErr = errors.New("db down")
	svc := newUserService(t, users)

	_, err := svc.Signup(context.Background(), "dave@example.com")
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrorAlreadyExists)
	assert.Contains(t, err.Error(), "db down")
}

func TestUserService_Signin(t *testing.T) {
	users := newFakeUsersRepo()
	users.byEmail["erin@example.com"] = &models.User{ID: "u-erin", Email: "erin@example.com"}
	svc := newUserService(t, users)

	t.Run("known email", func(t *testing.T) {
		res, err := svc.Signin(context.Background(), "erin@example.com")
		require.NoError(t, err)
		assert.Equal(t, "u-erin", res.User.ID)

		claims, err := auth.ParseToken(res.Token, []byte("k"), "HS256")
		require.NoError(t, err)
		assert.Equal(t, "u-erin", claims.UserID)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := svc.Signin(context.Background(), "nobody@example.com")
		assert.ErrorIs(t, err, common.ErrorUnauthorized)
	})

	t.Run("missing email", func(t *testing.T) {
		_, err := svc.Signin(context.Background(), "   ")
		assert.ErrorIs(t, err, common.ErrorValidation)
	})

	t.Run("repository failure", func(t *testing.T) {
		users.getErr = errors.New("boom")
		defer func() { users.getErr = nil }()

		_, err := svc.Signin(context.Background(), "erin@example.com")
		require.Error(t, err)
		assert.NotErrorIs(t, err, common.ErrorUnauthorized)
	})
}
