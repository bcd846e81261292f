package engine

import (
	"fmt"
	"time"

	"github.com/poolfs/poolfs/pkg/index"
)

// FileCreateRequest carries everything a create operation needs. The key
// fields identify the logical file; the rest is descriptive metadata and
// policy.
type FileCreateRequest struct {
	ContextID int64
	Area      string
	ItemID    int64
	Path      string
	Name      string

	MimeType string
	Author   string

	// SortOrder is a caller-managed position within the directory.
	SortOrder int

	// Overwrite replaces an existing record at the same key instead of
	// failing with ErrDuplicateFile. The previous blob is trashed when
	// the overwrite leaves it unreferenced.
	Overwrite bool

	// KnownContentHash, when set on a path-based create, lets the pool
	// skip rehashing content the caller has already digested. The size
	// is still verified.
	KnownContentHash string

	// CreatedAt and ModifiedAt override the record timestamps, for
	// imports that must preserve original times. Zero means now.
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// Key returns the composite key the request addresses.
func (r FileCreateRequest) Key() index.Key {
	return index.Key{
		ContextID: r.ContextID,
		Area:      r.Area,
		ItemID:    r.ItemID,
		Path:      r.Path,
		Name:      r.Name,
	}
}

// validate rejects bad requests before any storage is touched. Creating a
// directory marker directly is not allowed; directories exist only as a
// side effect of the files stored beneath them.
func (r FileCreateRequest) validate() error {
	key := r.Key()
	if key.Name == index.DirectoryName {
		return fmt.Errorf("name %q is reserved for directories: %w", key.Name, index.ErrInvalidKey)
	}
	return key.Validate()
}

// times resolves the effective record timestamps.
func (r FileCreateRequest) times(now time.Time) (created, modified time.Time) {
	created, modified = now, now
	if !r.CreatedAt.IsZero() {
		created = r.CreatedAt
	}
	if !r.ModifiedAt.IsZero() {
		modified = r.ModifiedAt
	}
	return created, modified
}
