package postgres

import (
	"errors"

	"github.com/lib/pq"
)

// SQLSTATE class 23: integrity constraint violations.
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// IsUniqueViolation reports whether err is a unique constraint violation.
// An empty constraint matches any unique violation; a non-empty one matches
// only that constraint, which lets the user repository tell a duplicate
// username apart from a duplicate email.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}

	if string(pqErr.Code) != pqUniqueViolation {
		return false
	}

	return constraint == "" || pqErr.Constraint == constraint
}

// IsForeignKeyViolation reports whether err is a foreign key violation,
// raised when a bucket or membership row references a channel that was
// removed concurrently.
func IsForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pqForeignKeyViolation
}
