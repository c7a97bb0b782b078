package domain

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Errors returned by User.Validate. The API reports them as 400s.
var (
	ErrEmptyUserID      = errors.New("user ID cannot be empty")
	ErrInvalidEmail     = errors.New("invalid email format")
	ErrEmptyEmail       = errors.New("email cannot be empty")
	ErrPasswordTooShort = errors.New("password must be at least 12 characters long")
	ErrPasswordTooLong  = errors.New("password must be at most 72 characters long")
	ErrEmptyPassword    = errors.New("password cannot be empty")
)

// Password length bounds; 72 bytes is bcrypt's input limit
const (
	MinPasswordLength = 12
	MaxPasswordLength = 72
)

var emailValidator = validator.New()

// User is a registered principal. Users own the tasks they submit and the
// reports produced for them.
type User struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	HashedPassword string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	// Password holds the plaintext between registration and hashing only
	Password string `json:"-"`
}

// NewUser builds a validated account for registration. UserStore.Create
// hashes the plaintext.
func NewUser(email, password string) (*User, error) {
	now := time.Now().UTC()
	user := &User{
		ID:        uuid.New(),
		Email:     email,
		Password:  password,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := user.Validate(); err != nil {
		return nil, err
	}

	return user, nil
}

// Validate checks identity, email shape and password length.
func (u *User) Validate() error {
	if u.ID == uuid.Nil {
		return ErrEmptyUserID
	}

	if u.Email == "" {
		return ErrEmptyEmail
	}
	if emailValidator.Var(u.Email, "email") != nil {
		return ErrInvalidEmail
	}

	// A stored user carries only the hash; a new one carries the plaintext
	if u.Password == "" {
		if u.HashedPassword == "" {
			return ErrEmptyPassword
		}
		return nil
	}

	switch n := len(u.Password); {
	case n < MinPasswordLength:
		return ErrPasswordTooShort
	case n > MaxPasswordLength:
		return ErrPasswordTooLong
	}
	return nil
}
