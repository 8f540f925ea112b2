package contact

import (
	"context"
	"strings"
	"sync"
	"time"

	"beacon/cmd/identity/ids"
)

// MemoryStore is an in-memory Store for dev mode and tests.
type MemoryStore struct {
	mu sync.RWMutex
	// byOwner preserves insertion order per owner.
	byOwner map[string][]Contact
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byOwner: make(map[string][]Contact)}
}

// Create inserts a relation, enforcing per-owner uniqueness.
func (s *MemoryStore) Create(ctx context.Context, c Contact) (Contact, error) {
	if err := ctx.Err(); err != nil {
		return Contact{}, err
	}
	if c.OwnerID == "" || strings.TrimSpace(c.Name) == "" {
		return Contact{}, ErrInvalidInput
	}

	if c.ID == "" {
		id, err := ids.NewULID(c.CreatedAt)
		if err != nil {
			return Contact{}, err
		}
		c.ID = id
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.Status == "" {
		c.Status = StatusInvited
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, other := range s.byOwner[c.OwnerID] {
		if c.ContactUserID != nil && other.ContactUserID != nil && *other.ContactUserID == *c.ContactUserID {
			return Contact{}, ConflictError{Field: "contact_user_id"}
		}
		if c.Phone != nil && other.Phone != nil && *other.Phone == *c.Phone {
			return Contact{}, ConflictError{Field: "phone"}
		}
		if c.Email != nil && other.Email != nil && *other.Email == *c.Email {
			return Contact{}, ConflictError{Field: "email"}
		}
	}

	s.byOwner[c.OwnerID] = append(s.byOwner[c.OwnerID], c)
	return c, nil
}

// ByOwner lists relations in insertion order.
func (s *MemoryStore) ByOwner(ctx context.Context, ownerID string) ([]Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Contact, len(s.byOwner[ownerID]))
	copy(out, s.byOwner[ownerID])
	return out, nil
}

// Delete removes a relation by id.
func (s *MemoryStore) Delete(ctx context.Context, ownerID, contactID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.byOwner[ownerID]
	for i, c := range rows {
		if c.ID == contactID {
			s.byOwner[ownerID] = append(rows[:i:i], rows[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// UpdateStatus transitions a relation's status.
func (s *MemoryStore) UpdateStatus(ctx context.Context, ownerID, contactID string, status Status) (Contact, error) {
	if err := ctx.Err(); err != nil {
		return Contact{}, err
	}
	if !status.Valid() {
		return Contact{}, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.byOwner[ownerID]
	for i, c := range rows {
		if c.ID == contactID {
			rows[i].Status = status
			return rows[i], nil
		}
	}
	return Contact{}, ErrNotFound
}

// AcceptedRecipients returns user ids eligible for live fan-out.
func (s *MemoryStore) AcceptedRecipients(ctx context.Context, ownerID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for _, c := range s.byOwner[ownerID] {
		if c.Status == StatusAccepted && c.ContactUserID != nil {
			out = append(out, *c.ContactUserID)
		}
	}
	return out, nil
}

// AcceptedContacts returns full accepted rows.
func (s *MemoryStore) AcceptedContacts(ctx context.Context, ownerID string) ([]Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Contact
	for _, c := range s.byOwner[ownerID] {
		if c.Status == StatusAccepted {
			out = append(out, c)
		}
	}
	return out, nil
}
