package contact

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"beacon/cmd/identity/ids"
)

// PostgresStore persists trusted contacts in PostgreSQL.
// The pool is owned by the caller. Uniqueness is enforced by partial unique
// indexes on (owner_id, contact_user_id), (owner_id, phone), (owner_id, email).
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// StoreOption configures PostgresStore.
type StoreOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the DB schema used by the store (default "beacon").
func WithSchema(schema string) StoreOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" || !pgIdentRe.MatchString(schema) {
			return ErrInvalidInput
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...StoreOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "beacon"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("contact: nil pool")
	}
	return st, nil
}

const contactColumns = `id, owner_id, contact_user_id, name, phone, email, status, created_at`

// Create inserts a relation row.
func (s *PostgresStore) Create(ctx context.Context, c Contact) (Contact, error) {
	if s == nil || s.pool == nil {
		return Contact{}, fmt.Errorf("contact: nil store")
	}
	if err := ctx.Err(); err != nil {
		return Contact{}, err
	}
	if c.OwnerID == "" || strings.TrimSpace(c.Name) == "" {
		return Contact{}, ErrInvalidInput
	}

	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.ID == "" {
		id, err := ids.NewULID(c.CreatedAt)
		if err != nil {
			return Contact{}, err
		}
		c.ID = id
	}
	if c.Status == "" {
		c.Status = StatusInvited
	}

	contacts := pgIdent(s.schema, "trusted_contacts")
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+contacts+` (`+contactColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.OwnerID, c.ContactUserID, c.Name, c.Phone, c.Email, c.Status, c.CreatedAt,
	)
	if err != nil {
		if field, ok := uniqueViolationField(err); ok {
			return Contact{}, ConflictError{Field: field}
		}
		return Contact{}, err
	}
	return c, nil
}

// ByOwner lists relations in stable storage order.
func (s *PostgresStore) ByOwner(ctx context.Context, ownerID string) ([]Contact, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("contact: nil store")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	contacts := pgIdent(s.schema, "trusted_contacts")
	rows, err := s.pool.Query(ctx,
		`SELECT `+contactColumns+` FROM `+contacts+`
		  WHERE owner_id = $1
		  ORDER BY id ASC`,
		ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanContacts(rows)
}

// Delete removes a relation.
func (s *PostgresStore) Delete(ctx context.Context, ownerID, contactID string) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("contact: nil store")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	contacts := pgIdent(s.schema, "trusted_contacts")
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM `+contacts+` WHERE id = $1 AND owner_id = $2`,
		contactID, ownerID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus transitions a relation's status.
func (s *PostgresStore) UpdateStatus(ctx context.Context, ownerID, contactID string, status Status) (Contact, error) {
	if s == nil || s.pool == nil {
		return Contact{}, fmt.Errorf("contact: nil store")
	}
	if err := ctx.Err(); err != nil {
		return Contact{}, err
	}
	if !status.Valid() {
		return Contact{}, ErrInvalidInput
	}

	contacts := pgIdent(s.schema, "trusted_contacts")
	var c Contact
	err := s.pool.QueryRow(ctx,
		`UPDATE `+contacts+`
		    SET status = $1
		  WHERE id = $2 AND owner_id = $3
		RETURNING `+contactColumns,
		status, contactID, ownerID,
	).Scan(&c.ID, &c.OwnerID, &c.ContactUserID, &c.Name, &c.Phone, &c.Email, &c.Status, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Contact{}, ErrNotFound
	}
	if err != nil {
		return Contact{}, err
	}
	return c, nil
}

// AcceptedRecipients returns user ids eligible for live fan-out.
func (s *PostgresStore) AcceptedRecipients(ctx context.Context, ownerID string) ([]string, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("contact: nil store")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	contacts := pgIdent(s.schema, "trusted_contacts")
	rows, err := s.pool.Query(ctx,
		`SELECT contact_user_id FROM `+contacts+`
		  WHERE owner_id = $1
		    AND status = 'accepted'
		    AND contact_user_id IS NOT NULL`,
		ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// AcceptedContacts returns full accepted rows, registered or not.
func (s *PostgresStore) AcceptedContacts(ctx context.Context, ownerID string) ([]Contact, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("contact: nil store")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	contacts := pgIdent(s.schema, "trusted_contacts")
	rows, err := s.pool.Query(ctx,
		`SELECT `+contactColumns+` FROM `+contacts+`
		  WHERE owner_id = $1 AND status = 'accepted'
		  ORDER BY id ASC`,
		ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanContacts(rows)
}

func scanContacts(rows pgx.Rows) ([]Contact, error) {
	var out []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.ContactUserID, &c.Name, &c.Phone, &c.Email, &c.Status, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func uniqueViolationField(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return "", false
	}
	switch {
	case strings.Contains(pgErr.ConstraintName, "contact_user"):
		return "contact_user_id", true
	case strings.Contains(pgErr.ConstraintName, "phone"):
		return "phone", true
	case strings.Contains(pgErr.ConstraintName, "email"):
		return "email", true
	default:
		return pgErr.ConstraintName, true
	}
}

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}
