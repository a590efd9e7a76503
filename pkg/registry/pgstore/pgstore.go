// Package pgstore is a PostgreSQL registry.Store.
//
// The schema ships as goose migrations in Migrations; apply them with
// pg.Migrate before using the store.
package pgstore

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/sessionkit/pkg/pg"
	"github.com/dmitrymomot/sessionkit/pkg/registry"
	"github.com/dmitrymomot/sessionkit/pkg/session"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrations holds the goose migrations of the sessions table.
var Migrations, _ = fs.Sub(migrations, "migrations")

// DB is the subset of pgxpool.Pool, pgx.Conn and pgx.Tx the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists session records in the sessions table.
type Store struct {
	db DB
}

var _ registry.Store = (*Store)(nil)

// New creates a Store over db.
func New(db DB) *Store {
	return &Store{db: db}
}

const columns = `id, token_hash, user_id, device, ip_address, active, created_at,
	last_activity, expires_at, idle_timeout_ms, absolute_timeout_ms, revoked_at, revoke_reason`

func (s *Store) Create(ctx context.Context, rec registry.Record) error {
	if rec.ID == "" || rec.TokenHash == "" {
		return registry.ErrInvalidRequest
	}
	args, err := values(rec)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(ctx, `INSERT INTO sessions (`+columns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`, args...)
	if pg.IsDuplicateKeyError(err) {
		return errors.Join(registry.ErrDuplicate, err)
	}
	return err
}

func (s *Store) Get(ctx context.Context, id string) (registry.Record, error) {
	return s.getOne(ctx, `SELECT `+columns+` FROM sessions WHERE id = $1`, id)
}

func (s *Store) GetByTokenHash(ctx context.Context, hash string) (registry.Record, error) {
	return s.getOne(ctx, `SELECT `+columns+` FROM sessions WHERE token_hash = $1`, hash)
}

func (s *Store) Update(ctx context.Context, rec registry.Record) error {
	args, err := values(rec)
	if err != nil {
		return err
	}

	tag, err := s.db.Exec(ctx, `UPDATE sessions SET
		token_hash = $2, user_id = $3, device = $4, ip_address = $5, active = $6,
		created_at = $7, last_activity = $8, expires_at = $9, idle_timeout_ms = $10,
		absolute_timeout_ms = $11, revoked_at = $12, revoke_reason = $13
		WHERE id = $1`, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return registry.ErrNotFound
	}
	return nil
}

func (s *Store) ListActiveByUser(ctx context.Context, userID string) ([]registry.Record, error) {
	rows, err := s.db.Query(ctx, `SELECT `+columns+` FROM sessions
		WHERE user_id = $1 AND active ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []registry.Record
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) getOne(ctx context.Context, query string, arg string) (registry.Record, error) {
	rec, err := scan(s.db.QueryRow(ctx, query, arg))
	if pg.IsNotFoundError(err) {
		return registry.Record{}, registry.ErrNotFound
	}
	return rec, err
}

func values(rec registry.Record) ([]any, error) {
	device, err := json.Marshal(rec.Device)
	if err != nil {
		return nil, err
	}
	var revokedAt *time.Time
	if !rec.RevokedAt.IsZero() {
		revokedAt = &rec.RevokedAt
	}
	return []any{
		rec.ID, rec.TokenHash, rec.UserID, device, rec.IPAddress, rec.Active,
		rec.CreatedAt, rec.LastActivity, rec.ExpiresAt,
		rec.IdleTimeout.Milliseconds(), rec.AbsoluteTimeout.Milliseconds(),
		revokedAt, string(rec.RevokeReason),
	}, nil
}

func scan(row pgx.Row) (registry.Record, error) {
	var (
		rec        registry.Record
		device     []byte
		idleMs     int64
		absoluteMs int64
		revokedAt  *time.Time
		reason     string
	)
	err := row.Scan(&rec.ID, &rec.TokenHash, &rec.UserID, &device, &rec.IPAddress, &rec.Active,
		&rec.CreatedAt, &rec.LastActivity, &rec.ExpiresAt, &idleMs, &absoluteMs, &revokedAt, &reason)
	if err != nil {
		return registry.Record{}, err
	}
	if len(device) > 0 {
		if err := json.Unmarshal(device, &rec.Device); err != nil {
			return registry.Record{}, err
		}
	}
	rec.IdleTimeout = time.Duration(idleMs) * time.Millisecond
	rec.AbsoluteTimeout = time.Duration(absoluteMs) * time.Millisecond
	if revokedAt != nil {
		rec.RevokedAt = *revokedAt
	}
	rec.RevokeReason = session.Reason(reason)
	return rec, nil
}
