package engine

import "errors"

var (
	// ErrDuplicateFile is returned by the create operations when a record
	// already exists for the request's key and Overwrite is false.
	ErrDuplicateFile = errors.New("file already exists")

	// ErrFileNotFound is returned by operations that need an existing
	// record, such as CopyFile and StoreDerived.
	ErrFileNotFound = errors.New("file not found")

	// ErrFetchFailed wraps errors from downloading remote content.
	ErrFetchFailed = errors.New("fetch failed")
)
