// Package contact owns trusted-contact records and the authorization gate
// that decides who may receive a user's live events.
package contact

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of a trusted-contact relation.
type Status string

const (
	StatusInvited  Status = "invited"
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusBlocked  Status = "blocked"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusInvited, StatusPending, StatusAccepted, StatusBlocked:
		return true
	}
	return false
}

// Contact is a directed relation: OwnerID trusts the person described here.
// ContactUserID is nil until the invited person registers; only rows with
// status=accepted AND a non-nil ContactUserID participate in live fan-out.
// Unregistered contacts can still receive out-of-band notifications by phone.
type Contact struct {
	ID            string
	OwnerID       string
	ContactUserID *string
	Name          string
	Phone         *string
	Email         *string
	Status        Status
	CreatedAt     time.Time
}

// Sentinel error kinds.
var (
	ErrInvalidInput = errors.New("invalid_input")
	ErrNotFound     = errors.New("not_found")
	ErrConflict     = errors.New("conflict")
)

// ConflictError reports a duplicate relation for a specific logical field:
// "contact_user_id", "phone", or "email".
type ConflictError struct {
	Field string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("contact: %v: %s", ErrConflict, e.Field)
}

func (e ConflictError) Unwrap() error { return ErrConflict }

// IsConflict reports whether err is a duplicate-relation error.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsNotFound reports whether err represents a missing contact or owner.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
