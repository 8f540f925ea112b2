package identity

import (
	"context"
	"time"
)

// User is Beacon's canonical principal: the person sharing location or
// receiving someone else's.
type User struct {
	ID           string
	Username     string
	UsernameNorm string
	Email        *string
	EmailNorm    *string
	Phone        *string
	PasswordHash string
	CreatedAt    time.Time
}

// CreateUserInput describes a registration request.
type CreateUserInput struct {
	Username string
	Email    *string
	Phone    *string
	Password string
	Now      time.Time
}

// Store is the identity persistence boundary.
//
// Uniqueness contract:
//   - username is unique case-insensitively
//   - email, when present, is unique case-insensitively
type Store interface {
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)

	// GetUser fetches a user by id. Returns a NotFoundError when absent.
	GetUser(ctx context.Context, id string) (User, error)

	// GetUserByEmail fetches a user by normalized email (login path).
	GetUserByEmail(ctx context.Context, email string) (User, error)
}
