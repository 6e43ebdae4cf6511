package models

import (
	"time"

	"github.com/google/uuid"
)

// Account roles.
const (
	AccountRoleCustomer = "customer"
	AccountRoleProvider = "provider"
)

type Account struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	// MaxOpenTasks caps concurrently open tasks for customer accounts.
	// Nil means the platform default applies.
	MaxOpenTasks *int      `json:"max_open_tasks,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
