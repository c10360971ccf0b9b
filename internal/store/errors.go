package store

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/papertrade/apiserver/types"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

const pqUniqueViolation = "23505"

func persistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", types.ErrPersistence, op, err)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
