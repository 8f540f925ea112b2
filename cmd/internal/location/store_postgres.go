package location

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists readings in PostgreSQL. The pool is owned by the caller.
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
			return fmt.Errorf("location: invalid schema identifier")
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
		return nil, fmt.Errorf("location: nil pool")
	}
	return st, nil
}

const readingColumns = `id, user_id, session_id, lat, lng, accuracy, recorded_at`

// Insert appends the reading.
func (s *PostgresStore) Insert(ctx context.Context, r Reading) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("location: nil store")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	locations := pgIdent(s.schema, "locations")
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+locations+` (`+readingColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.UserID, r.SessionID, r.Lat, r.Lng, r.Accuracy, r.RecordedAt,
	)
	return err
}

// BySession returns readings tagged with sessionID ordered by id
// (ULIDs sort by creation time).
func (s *PostgresStore) BySession(ctx context.Context, userID, sessionID string) ([]Reading, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("location: nil store")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	locations := pgIdent(s.schema, "locations")
	rows, err := s.pool.Query(ctx,
		`SELECT `+readingColumns+` FROM `+locations+`
		  WHERE user_id = $1 AND session_id = $2
		  ORDER BY id ASC`,
		userID, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reading
	for rows.Next() {
		var r Reading
		if err := rows.Scan(&r.ID, &r.UserID, &r.SessionID, &r.Lat, &r.Lng, &r.Accuracy, &r.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Latest returns the most recent reading for userID, or ErrNoReading.
func (s *PostgresStore) Latest(ctx context.Context, userID string) (Reading, error) {
	if s == nil || s.pool == nil {
		return Reading{}, fmt.Errorf("location: nil store")
	}
	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}

	locations := pgIdent(s.schema, "locations")
	var r Reading
	err := s.pool.QueryRow(ctx,
		`SELECT `+readingColumns+` FROM `+locations+`
		  WHERE user_id = $1
		  ORDER BY id DESC
		  LIMIT 1`,
		userID,
	).Scan(&r.ID, &r.UserID, &r.SessionID, &r.Lat, &r.Lng, &r.Accuracy, &r.RecordedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Reading{}, ErrNoReading
	}
	if err != nil {
		return Reading{}, err
	}
	return r, nil
}

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}
