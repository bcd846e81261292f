// Package pool defines the content pool: physical storage of de-duplicated
// binary blobs addressed solely by the SHA-1 digest of their bytes.
//
// The pool knows nothing about logical files, owners, or directories. It
// stores each distinct byte sequence exactly once, serves it back by hash,
// and supports deferred deletion through a trash area so that content removed
// by one caller can still be recovered by another that holds a stale
// reference. Coordination between logical file records and pool blobs is the
// job of pkg/engine.
package pool

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"io"
	"time"
)

// HashHexLen is the length of a content hash rendered as lowercase hex.
// The pool uses SHA-1 (160 bits), so hashes are always 40 characters.
const HashHexLen = 40

// Pool provides de-duplicated blob storage keyed by content hash.
//
// Implementations must be safe for concurrent use by multiple goroutines.
// All cross-process safety relies on two properties:
//   - writes are idempotent: adding bytes that already exist is a no-op
//   - deletion is deferred: MoveToTrash relocates rather than unlinks, so a
//     late reader can still Recover the blob
//
// No operation may ever leave a truncated blob addressable under its final
// hash: partial writes must be cleaned up before the operation returns.
type Pool interface {
	// AddFromBytes stores the given bytes, computing their content hash.
	// If a blob with that hash already exists the call is a no-op and
	// IsNew is false. Returns ErrSizeMismatch (wrapped) if an existing
	// blob at the hash has a different size than the input, which
	// indicates pool corruption and is fatal for this write.
	AddFromBytes(ctx context.Context, data []byte) (AddResult, error)

	// AddFromPath stores the contents of a local file, streaming rather
	// than buffering, for large uploads. knownHash may carry a hash the
	// caller already computed (skipping the hashing pass); pass "" to let
	// the pool compute it. The copied size is verified against the source
	// regardless of knownHash.
	AddFromPath(ctx context.Context, localPath string, knownHash string) (AddResult, error)

	// Read returns a stream over the blob in the active pool. The caller
	// must close it. Returns ErrBlobMissing (wrapped) if the blob is not
	// in the active pool; callers holding a record may then attempt
	// Recover.
	Read(ctx context.Context, contentHash string) (io.ReadCloser, error)

	// Exists reports whether the blob is present in the active pool.
	Exists(ctx context.Context, contentHash string) (bool, error)

	// Size returns the byte size of an active blob.
	// Returns ErrBlobMissing (wrapped) if absent.
	Size(ctx context.Context, contentHash string) (int64, error)

	// MoveToTrash relocates a blob from the active pool to the trash
	// area. If the trash already holds a copy, the active one is simply
	// removed. Idempotent: trashing an already-trashed or absent blob is
	// not an error.
	MoveToTrash(ctx context.Context, contentHash string) error

	// Recover moves a blob back from the trash to the active pool. The
	// trashed copy is validated against expectedSize and re-hashed before
	// restoration; on any validation failure Recover returns false with
	// no side effects. Returns true if the blob is in the active pool
	// when the call completes (including when it never left).
	Recover(ctx context.Context, contentHash string, expectedSize int64) (bool, error)

	// ListTrash enumerates blobs currently in the trash area.
	ListTrash(ctx context.Context) ([]TrashEntry, error)

	// PurgeTrash permanently removes a blob from the trash area.
	// Idempotent: purging an absent blob is not an error.
	PurgeTrash(ctx context.Context, contentHash string) error

	// Close releases resources held by the pool.
	Close() error
}

// Enumerable is an optional interface for pools that can enumerate their
// active blobs. The trash sweeper uses it to detect orphaned content that
// no logical record references (for example after a crash mid-create).
type Enumerable interface {
	// ListActive returns the content hashes of all blobs in the active pool.
	ListActive(ctx context.Context) ([]string, error)
}

// AddResult describes the outcome of an Add operation.
type AddResult struct {
	// ContentHash is the SHA-1 of the stored bytes, lowercase hex.
	ContentHash string

	// Size is the blob size in bytes.
	Size int64

	// IsNew is true if this call materialized the blob, false if a blob
	// with the same hash was already present (deduplicated write).
	IsNew bool
}

// TrashEntry describes one blob in the trash area.
type TrashEntry struct {
	ContentHash string
	Size        int64

	// TrashedAt is when the blob entered the trash. Sweepers compare it
	// against the retention window before purging.
	TrashedAt time.Time
}

// HashBytes computes the content hash of a byte slice.
func HashBytes(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

// HashReader computes the content hash and size of a stream.
func HashReader(r io.Reader) (string, int64, error) {
	h := sha1.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// ValidHash reports whether s has the shape of a content hash
// (40 lowercase hex characters).
func ValidHash(s string) bool {
	if len(s) != HashHexLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
