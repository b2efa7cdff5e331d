// Package db provides error types for database operations.
package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"
)

// Sentinel errors for database operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrVersionConflict indicates an optimistic update lost the race:
	// the cluster's version changed between read and write. Callers
	// re-read and retry.
	ErrVersionConflict = errors.New("version conflict")

	// ErrAlreadyLabeled indicates a feedback claim hit an assignment
	// that another attribution already labeled.
	ErrAlreadyLabeled = errors.New("assignment already labeled")

	// ErrDimensionMismatch indicates a vector of the wrong
	// dimensionality reached the storage boundary.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrTransactionConflict indicates a SurrealDB transaction conflict
	// between concurrent writers. Callers should retry or skip.
	ErrTransactionConflict = errors.New("transaction conflict")
)

// wrapQueryError inspects a SurrealDB error and wraps it with the
// appropriate sentinel if it matches a known query error pattern.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}

	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) {
		if strings.Contains(queryErr.Message, "Transaction conflict") {
			return fmt.Errorf("%w: %s", ErrTransactionConflict, queryErr.Message)
		}
	}

	return err
}
