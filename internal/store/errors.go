package store

import (
	"errors"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a record does not exist, or exists but is not
// visible to the caller. Owner-scoped lookups do not distinguish the two.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert or update violates a uniqueness
// constraint, such as a duplicate mail address or session id. Concurrent
// writers racing on the same key both reach the database; the loser's
// unique-violation is converted here rather than leaked as a driver error.
var ErrConflict = errors.New("conflict")

// pq error code for unique_violation.
const uniqueViolationCode = "23505"

func translateError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolationCode {
		return ErrConflict
	}
	return err
}
