package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"beacon/cmd/identity/ids"
)

// MemoryStore is an in-memory Store for dev mode and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]User)}
}

// CreateUser registers a user, enforcing the same uniqueness rules as Postgres.
func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	username := strings.TrimSpace(in.Username)
	if username == "" || in.Password == "" {
		return User{}, ErrInvalidInput
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	hash, err := HashPassword(in.Password, DefaultArgon2idParams())
	if err != nil {
		return User{}, err
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return User{}, err
	}

	u := User{
		ID:           id,
		Username:     username,
		UsernameNorm: NormalizeUsername(username),
		PasswordHash: hash,
		CreatedAt:    now,
	}
	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		if email != "" {
			norm := NormalizeEmail(email)
			u.Email = &email
			u.EmailNorm = &norm
		}
	}
	if in.Phone != nil {
		phone := NormalizePhone(*in.Phone)
		if phone != "" {
			u.Phone = &phone
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, other := range s.users {
		if other.UsernameNorm == u.UsernameNorm {
			return User{}, ConflictError{Op: "identity.CreateUser", Field: "username"}
		}
		if u.EmailNorm != nil && other.EmailNorm != nil && *other.EmailNorm == *u.EmailNorm {
			return User{}, ConflictError{Op: "identity.CreateUser", Field: "email"}
		}
	}

	s.users[u.ID] = u
	return u, nil
}

// GetUser fetches a user by id.
func (s *MemoryStore) GetUser(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return User{}, NotFoundError{Op: "identity.GetUser", Resource: "user"}
	}
	return u, nil
}

// GetUserByEmail fetches a user by normalized email.
func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	norm := NormalizeEmail(email)
	if norm == "" {
		return User{}, ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.EmailNorm != nil && *u.EmailNorm == norm {
			return u, nil
		}
	}
	return User{}, NotFoundError{Op: "identity.GetUserByEmail", Resource: "user"}
}

// Seed inserts a prebuilt user, bypassing validation. Test helper.
func (s *MemoryStore) Seed(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.UsernameNorm == "" {
		u.UsernameNorm = NormalizeUsername(u.Username)
	}
	s.users[u.ID] = u
}
