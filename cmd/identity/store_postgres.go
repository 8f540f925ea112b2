package identity

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

// PostgresStore implements identity persistence over PostgreSQL.
//
// Ownership model:
//   - The pgx pool is owned by the caller; this store must NOT close it.
//   - Schema/table identifiers are validated and safely quoted.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the identity store (default "beacon").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
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
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

// CreateUser registers a user row. Uniqueness is enforced by DB constraints
// on username_norm and email_norm and mapped to ConflictError.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	if s == nil || s.pool == nil {
		return User{}, fmt.Errorf("identity: nil store")
	}
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

	users := pgIdent(s.schema, "users")
	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+users+` (
		     id, username, username_norm, email, email_norm, phone, password_hash, created_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Username, u.UsernameNorm, u.Email, u.EmailNorm, u.Phone, u.PasswordHash, u.CreatedAt,
	)
	if err != nil {
		if field, ok := uniqueViolationField(err); ok {
			return User{}, ConflictError{Op: "identity.CreateUser", Field: field}
		}
		return User{}, err
	}

	return u, nil
}

// GetUser fetches a user by id.
func (s *PostgresStore) GetUser(ctx context.Context, id string) (User, error) {
	if s == nil || s.pool == nil {
		return User{}, fmt.Errorf("identity: nil store")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, ErrInvalidInput
	}

	users := pgIdent(s.schema, "users")
	return s.scanUser(ctx,
		`SELECT id, username, username_norm, email, email_norm, phone, password_hash, created_at
		   FROM `+users+` WHERE id = $1`,
		"identity.GetUser", id,
	)
}

// GetUserByEmail fetches a user by normalized email.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	if s == nil || s.pool == nil {
		return User{}, fmt.Errorf("identity: nil store")
	}
	norm := NormalizeEmail(email)
	if norm == "" {
		return User{}, ErrInvalidInput
	}

	users := pgIdent(s.schema, "users")
	return s.scanUser(ctx,
		`SELECT id, username, username_norm, email, email_norm, phone, password_hash, created_at
		   FROM `+users+` WHERE email_norm = $1`,
		"identity.GetUserByEmail", norm,
	)
}

func (s *PostgresStore) scanUser(ctx context.Context, query, op string, arg any) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	var u User
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&u.ID, &u.Username, &u.UsernameNorm, &u.Email, &u.EmailNorm, &u.Phone, &u.PasswordHash, &u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// uniqueViolationField maps a Postgres unique violation to a logical field name.
func uniqueViolationField(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return "", false
	}
	switch {
	case strings.Contains(pgErr.ConstraintName, "email"):
		return "email", true
	case strings.Contains(pgErr.ConstraintName, "username"):
		return "username", true
	case strings.Contains(pgErr.ConstraintName, "phone"):
		return "phone", true
	default:
		return pgErr.ConstraintName, true
	}
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
