package storage

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrForeignKey is returned when a write references a row that does not
// exist, e.g. creating a note in an unknown workspace.
var ErrForeignKey = errors.New("storage: foreign key violation")

// ErrDuplicate is returned when a write violates a uniqueness constraint,
// e.g. registering a user with an email that is already taken.
var ErrDuplicate = errors.New("storage: duplicate")

// isForeignKeyViolation returns true for Postgres foreign_key_violation errors.
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// isUniqueViolation returns true for Postgres unique_violation errors.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
