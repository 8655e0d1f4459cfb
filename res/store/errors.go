package store

import "errors"

var (
	ErrNotFound        = errors.New("store: record not found")
	ErrUniqueViolation = errors.New("store: duplicate key value violates unique constraint")
	ErrInvalidInput    = errors.New("store: invalid input")

	// ErrStaleVersion is returned when a conditional write finds the row changed since it was read.
	ErrStaleVersion = errors.New("store: row was modified concurrently")
)
