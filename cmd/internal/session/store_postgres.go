package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"beacon/cmd/identity/ids"
)

// PostgresStore persists sessions in PostgreSQL. The pool is owned by the caller.
//
// Concurrency model: Start runs in a transaction holding a per-user advisory
// lock, so concurrent starts for the same user serialize and the
// one-active-session invariant holds without a table-wide lock.
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
			return fmt.Errorf("session: invalid schema identifier")
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
		return nil, fmt.Errorf("session: nil pool")
	}
	return st, nil
}

const sessionColumns = `id, user_id, started_at, ended_at, is_active`

// Start closes any active session and creates a fresh one, atomically.
func (s *PostgresStore) Start(ctx context.Context, userID string, now time.Time) (Session, error) {
	if s == nil || s.pool == nil {
		return Session{}, fmt.Errorf("session: nil store")
	}
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return Session{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return Session{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Serialize session transitions per user so two concurrent starts cannot
	// both observe "no active session".
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, userID); err != nil {
		return Session{}, fmt.Errorf("advisory lock: %w", err)
	}

	sessions := pgIdent(s.schema, "location_sessions")

	// History is append-only: ending sets ended_at and flips the flag.
	if _, err := tx.Exec(ctx,
		`UPDATE `+sessions+`
		    SET is_active = FALSE, ended_at = $1
		  WHERE user_id = $2 AND is_active`,
		now, userID,
	); err != nil {
		return Session{}, err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO `+sessions+` (id, user_id, started_at, is_active)
		 VALUES ($1, $2, $3, TRUE)`,
		id, userID, now,
	); err != nil {
		return Session{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Session{}, err
	}

	return Session{ID: id, UserID: userID, StartedAt: now, IsActive: true}, nil
}

// End transitions one session to Ended.
func (s *PostgresStore) End(ctx context.Context, userID, sessionID string, now time.Time) (Session, error) {
	if s == nil || s.pool == nil {
		return Session{}, fmt.Errorf("session: nil store")
	}
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	sessions := pgIdent(s.schema, "location_sessions")

	var out Session
	err := s.pool.QueryRow(ctx,
		`UPDATE `+sessions+`
		    SET is_active = FALSE, ended_at = $1
		  WHERE id = $2 AND user_id = $3 AND is_active
		RETURNING `+sessionColumns,
		now, sessionID, userID,
	).Scan(&out.ID, &out.UserID, &out.StartedAt, &out.EndedAt, &out.IsActive)
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Session{}, err
	}

	// Distinguish not-found from already-ended without touching the row.
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+sessions+` WHERE id = $1 AND user_id = $2)`,
		sessionID, userID,
	).Scan(&exists); err != nil {
		return Session{}, err
	}
	if !exists {
		return Session{}, ErrNotFound
	}
	return Session{}, ErrAlreadyEnded
}

// Active returns the current active session, or ErrNotFound.
func (s *PostgresStore) Active(ctx context.Context, userID string) (Session, error) {
	if s == nil || s.pool == nil {
		return Session{}, fmt.Errorf("session: nil store")
	}
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}

	sessions := pgIdent(s.schema, "location_sessions")
	var out Session
	err := s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM `+sessions+`
		  WHERE user_id = $1 AND is_active`,
		userID,
	).Scan(&out.ID, &out.UserID, &out.StartedAt, &out.EndedAt, &out.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	return out, nil
}

// All returns every session for userID ordered by id (ULIDs sort by creation time).
func (s *PostgresStore) All(ctx context.Context, userID string) ([]Session, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("session: nil store")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sessions := pgIdent(s.schema, "location_sessions")
	rows, err := s.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM `+sessions+`
		  WHERE user_id = $1
		  ORDER BY id ASC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.StartedAt, &sess.EndedAt, &sess.IsActive); err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}
