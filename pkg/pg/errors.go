package pg

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrFailedToOpenDBConnection = errors.New("pg.connection_failed")
	ErrFailedToParseDBConfig    = errors.New("pg.invalid_config")
	ErrHealthcheckFailed        = errors.New("pg.healthcheck_failed")
	ErrFailedToApplyMigrations  = errors.New("pg.migrations_failed")
	ErrMigrationsDirNotFound    = errors.New("pg.migrations_dir_not_found")
)

// IsNotFoundError reports whether err is pgx.ErrNoRows.
func IsNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsDuplicateKeyError reports a unique constraint violation (SQLSTATE 23505).
func IsDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
