package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/todoapi/internal/common"
)

const (
	TitleMaxLength       = 200
	DescriptionMaxLength = 1000

	// EmptyEmbedding is stored until a vector has been computed.
	EmptyEmbedding = "[]"
)

// Task is a todo item owned by a single user. Embedding holds the JSON
// encoded vector of Title and Description.
type Task struct {
	ID          string
	UserID      string
	Title       string
	Description *string
	Completed   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Embedding   string
}

// EmbeddingText is the text a task is embedded from.
func (t *Task) EmbeddingText() string {
	return EmbeddingText(t.Title, t.Description)
}

// EmbeddingText joins title and an optional description with a single space.
func EmbeddingText(title string, description *string) string {
	if description == nil || *description == "" {
		return title
	}
	return title + " " + *description
}

// TaskInput carries the fields accepted on create.
type TaskInput struct {
	Title       string
	Description *string
	Completed   bool
}

func (in TaskInput) Validate() error {
	if err := validateTitle(in.Title); err != nil {
		return err
	}
	return validateDescription(in.Description)
}

// TaskPatch is a partial update; nil fields are left unchanged.
type TaskPatch struct {
	Title       *string
	Description *string
	Completed   *bool
}

func (p TaskPatch) Validate() error {
	if p.Title != nil {
		if err := validateTitle(*p.Title); err != nil {
			return err
		}
	}
	return validateDescription(p.Description)
}

// SuppliesText reports whether p carries a title or description, in which
// case the task is re-embedded even if the text is unchanged.
func (p TaskPatch) SuppliesText() bool {
	return p.Title != nil || p.Description != nil
}

// Apply copies the present fields onto t.
func (p TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		d := *p.Description
		t.Description = &d
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
}

// TaskFilter narrows a task listing. Search is matched case-insensitively
// against title and description.
type TaskFilter struct {
	Completed *bool
	Search    string
}

// SimilarTask is a task returned by a vector search together with its score.
type SimilarTask struct {
	Task  *Task
	Score float32
}

func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: title is required", common.ErrorValidation)
	}
	if utf8.RuneCountInString(title) > TitleMaxLength {
		return fmt.Errorf("%w: title must be at most %d characters", common.ErrorValidation, TitleMaxLength)
	}
	return nil
}

func validateDescription(description *string) error {
	if description != nil && utf8.RuneCountInString(*description) > DescriptionMaxLength {
		return fmt.Errorf("%w: description must be at most %d characters", common.ErrorValidation, DescriptionMaxLength)
	}
	return nil
}
