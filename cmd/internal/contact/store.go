package contact

import "context"

// Store is the trusted-contact persistence boundary.
//
// Uniqueness contract, per owner:
//   - at most one row per contact_user_id
//   - at most one row per phone
//   - at most one row per email
type Store interface {
	Create(ctx context.Context, c Contact) (Contact, error)

	// ByOwner lists every relation owned by ownerID, in stable storage order.
	ByOwner(ctx context.Context, ownerID string) ([]Contact, error)

	// Delete removes a relation. ErrNotFound if no such row belongs to ownerID.
	Delete(ctx context.Context, ownerID, contactID string) error

	// UpdateStatus transitions a relation's status (e.g. pending -> accepted).
	UpdateStatus(ctx context.Context, ownerID, contactID string, status Status) (Contact, error)

	// AcceptedRecipients returns the user ids authorized to receive ownerID's
	// live events: rows with status=accepted and a non-nil contact_user_id.
	// The relation is directional; see Service.AcceptedRecipients.
	AcceptedRecipients(ctx context.Context, ownerID string) ([]string, error)

	// AcceptedContacts returns full accepted rows (registered or not), used by
	// the emergency dispatcher to reach phones of offline or unregistered contacts.
	AcceptedContacts(ctx context.Context, ownerID string) ([]Contact, error)
}
