// Package index defines the logical file index: records mapping composite
// file keys to content blobs, with area and directory scoped listings and
// per-content reference counting.
//
// The index stores logical identity only. Blob bytes live in a pool, and
// many records may reference the same content hash; CountContentRefs is how
// the reclamation path decides whether a blob is still referenced.
package index

import (
	"context"
	"sort"
	"strings"
	"time"
)

// Record is one logical file entry. PathnameHash is the external
// identifier; the key tuple fields are stored alongside it so listings can
// filter without reversing the hash.
type Record struct {
	// ID is a storage-assigned monotonic identifier.
	ID uint64 `json:"id"`

	// PathnameHash is the hex digest of the key tuple, unique per index.
	PathnameHash string `json:"pathnameHash"`

	ContextID int64  `json:"contextId"`
	Area      string `json:"area"`
	ItemID    int64  `json:"itemId"`
	Path      string `json:"path"`
	Name      string `json:"name"`

	// ContentHash addresses the blob in the pool. Directory records
	// reference the empty-content blob.
	ContentHash string `json:"contentHash"`

	// Size is the blob size in bytes, denormalized from the pool.
	Size int64 `json:"size"`

	MimeType string `json:"mimeType,omitempty"`
	Author   string `json:"author,omitempty"`

	// SortOrder is a caller-managed ordering hint within a directory.
	SortOrder int `json:"sortOrder"`

	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// Key reassembles the composite key from the record's stored fields.
func (r *Record) Key() Key {
	return Key{
		ContextID: r.ContextID,
		Area:      r.Area,
		ItemID:    r.ItemID,
		Path:      r.Path,
		Name:      r.Name,
	}
}

// IsDirectory reports whether the record is a directory marker.
func (r *Record) IsDirectory() bool {
	return r.Name == DirectoryName
}

// Scope identifies an (context, area, item) partition for scoped listings.
type Scope struct {
	ContextID int64
	Area      string
	ItemID    int64
}

// Selector selects records across one or more partitions of a context.
// An empty Area selects every area; a nil ItemID selects every item. ItemID
// is only honored when Area is set.
type Selector struct {
	ContextID int64
	Area      string
	ItemID    *int64
}

// Matches reports whether a record falls under the selector.
func (s Selector) Matches(r *Record) bool {
	if r.ContextID != s.ContextID {
		return false
	}
	if s.Area == "" {
		return true
	}
	if r.Area != s.Area {
		return false
	}
	return s.ItemID == nil || r.ItemID == *s.ItemID
}

// Selector returns the selector matching exactly this scope.
func (s Scope) Selector() Selector {
	item := s.ItemID
	return Selector{ContextID: s.ContextID, Area: s.Area, ItemID: &item}
}

// Index is the metadata store for logical file records.
//
// Lookup methods return (nil, nil) when no record exists; only Update and
// Delete distinguish the absent case with ErrNotFound. All methods are safe
// for concurrent use.
type Index interface {
	// Get returns the record for a pathname hash, or (nil, nil) when
	// absent.
	Get(ctx context.Context, pathnameHash string) (*Record, error)

	// GetByKey is Get keyed by the composite tuple.
	GetByKey(ctx context.Context, key Key) (*Record, error)

	// Exists reports whether a record exists for the pathname hash.
	Exists(ctx context.Context, pathnameHash string) (bool, error)

	// Insert stores a new record, assigning Record.ID. Returns
	// ErrDuplicate if the pathname hash is already present.
	Insert(ctx context.Context, record *Record) error

	// Update replaces the record with the same pathname hash. Returns
	// ErrNotFound when absent. Record.ID and CreatedAt are preserved
	// from the stored record.
	Update(ctx context.Context, record *Record) error

	// Delete removes the record for a pathname hash. Returns
	// ErrNotFound when absent.
	Delete(ctx context.Context, pathnameHash string) error

	// ListScope returns every record the selector matches, recursively
	// across all paths.
	ListScope(ctx context.Context, sel Selector) ([]*Record, error)

	// ListDirectory returns the direct children of a directory within a
	// scope: file records whose Path equals dir, plus directory records
	// exactly one level below. The directory's own marker record is not
	// included.
	ListDirectory(ctx context.Context, scope Scope, dir string) ([]*Record, error)

	// DeleteScope removes every record the selector matches and returns
	// the removed records so callers can release the referenced blobs.
	DeleteScope(ctx context.Context, sel Selector) ([]*Record, error)

	// CountContentRefs returns how many records reference a content
	// hash.
	CountContentRefs(ctx context.Context, contentHash string) (int, error)

	// ListContentHashes returns the distinct content hashes referenced
	// by at least one record. Used by the orphan scan.
	ListContentHashes(ctx context.Context) ([]string, error)

	// Close releases the underlying storage.
	Close() error
}

// SortRecords orders a listing for presentation: directories first, then by
// SortOrder, then case-insensitively by name. Stable so equal entries keep
// their storage order.
func SortRecords(records []*Record) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.IsDirectory() != b.IsDirectory() {
			return a.IsDirectory()
		}
		if a.SortOrder != b.SortOrder {
			return a.SortOrder < b.SortOrder
		}
		an, bn := displayName(a), displayName(b)
		return strings.ToLower(an) < strings.ToLower(bn)
	})
}

// displayName returns the name a listing shows for a record: the last path
// component for directory markers, the leaf name otherwise.
func displayName(r *Record) string {
	if !r.IsDirectory() {
		return r.Name
	}
	trimmed := strings.TrimSuffix(r.Path, "/")
	if trimmed == "" {
		return "/"
	}
	return trimmed[strings.LastIndexByte(trimmed, '/')+1:]
}
