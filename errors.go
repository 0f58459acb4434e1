package ternbase

import "errors"

var (
	// ErrExists is returned when an output database already exists and
	// --force was not given.
	ErrExists = errors.New("output already exists")

	// ErrNotFound is returned by lookups that miss.
	ErrNotFound = errors.New("not found")

	// ErrReadOnly is returned when a mutation is attempted on a read-only
	// store.
	ErrReadOnly = errors.New("store is read-only")
)
