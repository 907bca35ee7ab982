// Package models defines server-side data models persisted in the database.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/todoapi/internal/common"
)

const (
	EmailMinLength = 5
	EmailMaxLength = 100
)

type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

// NormalizeEmail trims surrounding whitespace and checks the length bounds.
// The result is what gets stored and looked up.
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", fmt.Errorf("%w: email is required", common.ErrorValidation)
	}
	n := len([]rune(email))
	if n < EmailMinLength || n > EmailMaxLength {
		return "", fmt.Errorf("%w: email must be between %d and %d characters", common.ErrorValidation, EmailMinLength, EmailMaxLength)
	}
	if !strings.Contains(email, "@") {
		return "", fmt.Errorf("%w: email is not valid", common.ErrorValidation)
	}
	return email, nil
}
