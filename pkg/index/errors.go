package index

import "errors"

var (
	// ErrNotFound is returned by Update and Delete when no record exists
	// for the given pathname hash. Lookups do not return it: an absent
	// record is reported as a nil record with a nil error.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned by Insert when a record with the same
	// pathname hash already exists.
	ErrDuplicate = errors.New("record already exists")

	// ErrInvalidKey wraps all key validation failures.
	ErrInvalidKey = errors.New("invalid file key")
)
