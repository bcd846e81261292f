package pool

import "errors"

// Standard pool errors.
//
// Implementations wrap these with context:
//
//	return fmt.Errorf("blob %s: %w", hash, pool.ErrBlobMissing)
//
// Callers branch with errors.Is:
//
//	rc, err := p.Read(ctx, hash)
//	if errors.Is(err, pool.ErrBlobMissing) {
//	    // attempt trash recovery before declaring loss
//	}
var (
	// ErrBlobMissing indicates the requested blob is absent from the
	// active pool. This is a data-integrity anomaly when a live logical
	// record references the hash; the recovery path is Recover() against
	// the trash before declaring permanent loss.
	ErrBlobMissing = errors.New("blob missing from active pool")

	// ErrWriteFailed indicates the underlying storage failed while
	// writing or copying a blob. Any partial artifact has been removed
	// before this error surfaces; the blob is never addressable in a
	// truncated state.
	ErrWriteFailed = errors.New("pool write failed")

	// ErrSizeMismatch indicates the blob found at a hash's expected
	// location has a different size than expected. This means hash-space
	// corruption (or a non-deterministic hash) and is fatal and
	// non-retryable for the specific write that observed it.
	ErrSizeMismatch = errors.New("pool content size mismatch")

	// ErrInvalidHash indicates a content hash argument is not a
	// 40-character lowercase hex string.
	ErrInvalidHash = errors.New("invalid content hash")
)
