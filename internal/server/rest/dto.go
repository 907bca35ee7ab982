package rest

import (
	"time"

	"github.com/dmitrijs2005/todoapi/internal/server/models"
	"github.com/dmitrijs2005/todoapi/internal/server/services"
)

type emailRequest struct {
	Email string `json:"email"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

func toAuthResponse(r *services.AuthResult) authResponse {
	return authResponse{
		Token: r.Token,
		User:  userResponse{ID: r.User.ID, Email: r.User.Email},
	}
}

type createTaskRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Completed   bool    `json:"completed"`
}

type updateTaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
}

// taskResponse is the wire form of a task; the embedding stays server-side.
type taskResponse struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type similarTaskResponse struct {
	taskResponse
	Score float32 `json:"score"`
}

type taskListResponse struct {
	Tasks []taskResponse `json:"tasks"`
}

type similarTaskListResponse struct {
	Tasks []similarTaskResponse `json:"tasks"`
}

func toTaskResponse(t *models.Task) taskResponse {
	return taskResponse{
		ID:          t.ID,
		UserID:      t.UserID,
		Title:       t.Title,
		Description: t.Description,
		Completed:   t.Completed,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func toTaskList(tasks []*models.Task) taskListResponse {
	out := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toTaskResponse(t))
	}
	return taskListResponse{Tasks: out}
}

func toSimilarList(tasks []models.SimilarTask) similarTaskListResponse {
	out := make([]similarTaskResponse, 0, len(tasks))
	for _, s := range tasks {
		out = append(out, similarTaskResponse{taskResponse: toTaskResponse(s.Task), Score: s.Score})
	}
	return similarTaskListResponse{Tasks: out}
}
