package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/codescope-api/internal/domain"
	"github.com/phrazzld/codescope-api/internal/platform/logger"
	"github.com/phrazzld/codescope-api/internal/store"
	"golang.org/x/crypto/bcrypt"
)

// UserStore implements store.UserStore. Emails are stored lower-cased so
// lookups and the uniqueness constraint are case-insensitive.
type UserStore struct {
	db         *DB
	bcryptCost int
}

// Ensure UserStore implements store.UserStore
var _ store.UserStore = (*UserStore)(nil)

// NewUserStore creates a UserStore hashing passwords at bcryptCost; values
// outside bcrypt's range fall back to bcrypt.DefaultCost.
func NewUserStore(db *DB, bcryptCost int) *UserStore {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &UserStore{db: db, bcryptCost: bcryptCost}
}

// Create implements store.UserStore. The plaintext password is hashed and
// cleared from user.
func (s *UserStore) Create(ctx context.Context, user *domain.User) error {
	log := logger.FromContext(ctx)

	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if err := user.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	if user.Password == "" {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, domain.ErrEmptyPassword)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(user.Password), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	return store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, s.db.Rebind(`SELECT 1 FROM users WHERE email = ?`), user.Email).Scan(&exists)
		switch {
		case err == nil:
			return store.ErrEmailExists
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("failed to check email: %w", MapError(err))
		}

		_, err = tx.ExecContext(ctx,
			s.db.Rebind(`INSERT INTO users (id, email, hashed_password, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`),
			user.ID.String(), user.Email, string(hash), millis(user.CreatedAt), millis(user.UpdatedAt),
		)
		if err != nil {
			if IsUniqueViolation(err) {
				return store.ErrEmailExists
			}
			log.Error("failed to insert user", "user_id", user.ID, "error", err)
			return fmt.Errorf("failed to insert user: %w", MapError(err))
		}

		user.HashedPassword = string(hash)
		user.Password = ""
		return nil
	})
}

// GetByID implements store.UserStore.
func (s *UserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.get(ctx, `id = ?`, id.String())
}

// GetByEmail implements store.UserStore.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.get(ctx, `email = ?`, strings.ToLower(strings.TrimSpace(email)))
}

func (s *UserStore) get(ctx context.Context, where string, arg any) (*domain.User, error) {
	var (
		user                 domain.User
		id                   string
		createdAt, updatedAt int64
	)

	err := s.db.QueryRowContext(ctx,
		s.db.Rebind(`SELECT id, email, hashed_password, created_at, updated_at FROM users WHERE `+where), arg,
	).Scan(&id, &user.Email, &user.HashedPassword, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", MapError(err))
	}

	if user.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", id, err)
	}
	user.CreatedAt = fromMillis(createdAt)
	user.UpdatedAt = fromMillis(updatedAt)
	return &user, nil
}
