package contact

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"beacon/cmd/identity"
)

// UserLookup is the slice of identity the contact service needs.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (identity.User, error)
}

// Service validates and applies contact operations, and answers the
// authorization question for live fan-out.
type Service struct {
	log   *slog.Logger
	users UserLookup
	store Store
}

// NewService constructs a Service.
func NewService(log *slog.Logger, users UserLookup, store Store) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{log: log, users: users, store: store}
}

// CreateInput describes a new trusted-contact relation.
type CreateInput struct {
	ContactUserID *string
	Name          string
	Phone         *string
	Email         *string
	Status        Status
}

// Create adds a relation owned by ownerID.
// At least one of phone or email is required so the contact stays reachable
// out-of-band even before they register.
func (s *Service) Create(ctx context.Context, ownerID string, in CreateInput) (Contact, error) {
	if _, err := s.users.GetUser(ctx, ownerID); err != nil {
		return Contact{}, err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Contact{}, ErrInvalidInput
	}

	phone := normalizeOptional(in.Phone, identity.NormalizePhone)
	email := normalizeOptional(in.Email, identity.NormalizeEmail)
	if phone == nil && email == nil {
		return Contact{}, ErrInvalidInput
	}

	status := in.Status
	if status == "" {
		status = StatusInvited
	}
	if !status.Valid() {
		return Contact{}, ErrInvalidInput
	}

	c, err := s.store.Create(ctx, Contact{
		OwnerID:       ownerID,
		ContactUserID: in.ContactUserID,
		Name:          name,
		Phone:         phone,
		Email:         email,
		Status:        status,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return Contact{}, err
	}

	s.log.Info("contact.create", "owner_id", ownerID, "contact_id", c.ID, "status", string(c.Status))
	return c, nil
}

// List returns every relation owned by ownerID.
func (s *Service) List(ctx context.Context, ownerID string) ([]Contact, error) {
	if _, err := s.users.GetUser(ctx, ownerID); err != nil {
		return nil, err
	}
	return s.store.ByOwner(ctx, ownerID)
}

// Delete removes a relation.
func (s *Service) Delete(ctx context.Context, ownerID, contactID string) error {
	if err := s.store.Delete(ctx, ownerID, contactID); err != nil {
		return err
	}
	s.log.Info("contact.delete", "owner_id", ownerID, "contact_id", contactID)
	return nil
}

// UpdateStatus transitions a relation's status (acceptance flow).
func (s *Service) UpdateStatus(ctx context.Context, ownerID, contactID string, status Status) (Contact, error) {
	c, err := s.store.UpdateStatus(ctx, ownerID, contactID, status)
	if err != nil {
		return Contact{}, err
	}
	s.log.Info("contact.status", "owner_id", ownerID, "contact_id", contactID, "status", string(status))
	return c, nil
}

// AcceptedRecipients is the authorization gate for live fan-out: the set of
// user ids allowed to receive ownerID's events.
//
// The relation is strictly directional. B receives A's events only if A owns
// an accepted row pointing at B; it says nothing about the reverse direction.
func (s *Service) AcceptedRecipients(ctx context.Context, ownerID string) ([]string, error) {
	return s.store.AcceptedRecipients(ctx, ownerID)
}

// AcceptedContacts returns full accepted rows for the emergency path.
func (s *Service) AcceptedContacts(ctx context.Context, ownerID string) ([]Contact, error) {
	return s.store.AcceptedContacts(ctx, ownerID)
}

func normalizeOptional(v *string, norm func(string) string) *string {
	if v == nil {
		return nil
	}
	n := norm(*v)
	if n == "" {
		return nil
	}
	return &n
}
