package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/codescope-api/internal/domain"
)

// UserStore persists registered accounts. Lookups that miss return
// ErrUserNotFound.
type UserStore interface {
	// Create hashes user.Password and stores the account. A taken email
	// yields ErrEmailExists.
	Create(ctx context.Context, user *domain.User) error

	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// GetByEmail expects a lowercased, trimmed address.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}
