// Package fs implements pool.Pool on a local filesystem.
//
// Blobs live in a hash-bucketed tree under <root>/blobs: the first three
// 2-character slices of the hash form the bucket directories, so blob
// "da39a3ee..." is stored at blobs/da/39/a3/da39a3ee... . The fan-out keeps
// any single directory's entry count bounded regardless of corpus size; it is
// purely a filesystem-scalability device and carries no logical meaning.
//
// Deleted blobs move to <root>/trash with the same bucketing. Trash moves use
// same-volume rename, never copy+delete, so there is no window in which zero
// copies of the data exist. Recovery also accepts blobs sitting flat in the
// trash root, which tolerates trash trees produced by older layouts or
// restored by hand.
package fs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/poolfs/poolfs/internal/logger"
	"github.com/poolfs/poolfs/pkg/pool"
)

// FSPool implements pool.Pool using the local filesystem.
//
// Thread Safety: safe for concurrent use. All mutating operations are
// check-then-rename sequences that tolerate losing the race: concurrent
// writers of identical bytes produce bit-identical blobs, so whichever
// rename lands first wins and the other is discarded.
type FSPool struct {
	blobDir  string
	trashDir string
	tmpDir   string

	dirPerm  os.FileMode
	filePerm os.FileMode
}

// Config contains configuration for creating a filesystem pool.
type Config struct {
	// Root is the directory holding the blobs, trash, and tmp subtrees.
	// The trash must stay on the same volume as the blobs so that moves
	// are atomic renames.
	Root string

	// DirPerm is the permission for created directories (default 0755).
	DirPerm os.FileMode

	// FilePerm is the permission for created blobs (default 0644).
	FilePerm os.FileMode
}

// New creates a filesystem pool rooted at cfg.Root, creating the blobs,
// trash, and tmp directories if absent.
func New(ctx context.Context, cfg Config) (*FSPool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Root == "" {
		return nil, fmt.Errorf("filesystem pool: root is required")
	}
	if cfg.DirPerm == 0 {
		cfg.DirPerm = 0o755
	}
	if cfg.FilePerm == 0 {
		cfg.FilePerm = 0o644
	}

	p := &FSPool{
		blobDir:  filepath.Join(cfg.Root, "blobs"),
		trashDir: filepath.Join(cfg.Root, "trash"),
		tmpDir:   filepath.Join(cfg.Root, "tmp"),
		dirPerm:  cfg.DirPerm,
		filePerm: cfg.FilePerm,
	}

	for _, dir := range []string{p.blobDir, p.trashDir, p.tmpDir} {
		if err := os.MkdirAll(dir, p.dirPerm); err != nil {
			return nil, fmt.Errorf("failed to create pool directory: %w", err)
		}
	}

	return p, nil
}

// blobPath returns the bucketed path of a blob in the active pool.
func (p *FSPool) blobPath(contentHash string) string {
	return filepath.Join(p.blobDir, bucket(contentHash), contentHash)
}

// trashPath returns the bucketed path of a blob in the trash area.
func (p *FSPool) trashPath(contentHash string) string {
	return filepath.Join(p.trashDir, bucket(contentHash), contentHash)
}

// trashPathFlat returns the fallback flat path of a blob in the trash root.
func (p *FSPool) trashPathFlat(contentHash string) string {
	return filepath.Join(p.trashDir, contentHash)
}

// bucket returns the 3-level fan-out prefix for a hash: "aa/bb/cc".
func bucket(contentHash string) string {
	return filepath.Join(contentHash[0:2], contentHash[2:4], contentHash[4:6])
}

// AddFromBytes stores data under its content hash.
//
// The blob is first written to a staging file in tmp/, its size verified,
// and only then renamed into its bucketed location. A failure at any point
// removes the staging file, so a truncated blob is never addressable.
func (p *FSPool) AddFromBytes(ctx context.Context, data []byte) (pool.AddResult, error) {
	if err := ctx.Err(); err != nil {
		return pool.AddResult{}, err
	}

	contentHash := pool.HashBytes(data)
	size := int64(len(data))

	existing, err := p.statBlob(contentHash)
	if err != nil {
		return pool.AddResult{}, err
	}
	if existing != nil {
		if existing.Size() != size {
			return pool.AddResult{}, fmt.Errorf(
				"blob %s: existing size %d, expected %d: %w",
				contentHash, existing.Size(), size, pool.ErrSizeMismatch)
		}
		return pool.AddResult{ContentHash: contentHash, Size: size, IsNew: false}, nil
	}

	write := func(w io.Writer) (int64, error) {
		n, err := w.Write(data)
		return int64(n), err
	}
	if err := p.stageAndCommit(contentHash, size, write); err != nil {
		return pool.AddResult{}, err
	}

	return pool.AddResult{ContentHash: contentHash, Size: size, IsNew: true}, nil
}

// AddFromPath stores the contents of localPath under its content hash,
// streaming the copy instead of buffering the whole file.
//
// knownHash lets callers that already computed the hash skip the hashing
// pass; the copied size is still verified against the source file either way.
func (p *FSPool) AddFromPath(ctx context.Context, localPath string, knownHash string) (pool.AddResult, error) {
	if err := ctx.Err(); err != nil {
		return pool.AddResult{}, err
	}

	info, err := os.Stat(localPath)
	if err != nil {
		return pool.AddResult{}, fmt.Errorf("failed to stat source file: %w", err)
	}
	size := info.Size()

	contentHash := knownHash
	if contentHash == "" {
		src, err := os.Open(localPath)
		if err != nil {
			return pool.AddResult{}, fmt.Errorf("failed to open source file: %w", err)
		}
		contentHash, _, err = pool.HashReader(src)
		src.Close()
		if err != nil {
			return pool.AddResult{}, fmt.Errorf("failed to hash source file: %w", err)
		}
	}
	if !pool.ValidHash(contentHash) {
		return pool.AddResult{}, fmt.Errorf("hash %q: %w", contentHash, pool.ErrInvalidHash)
	}

	existing, err := p.statBlob(contentHash)
	if err != nil {
		return pool.AddResult{}, err
	}
	if existing != nil {
		if existing.Size() != size {
			return pool.AddResult{}, fmt.Errorf(
				"blob %s: existing size %d, expected %d: %w",
				contentHash, existing.Size(), size, pool.ErrSizeMismatch)
		}
		return pool.AddResult{ContentHash: contentHash, Size: size, IsNew: false}, nil
	}

	write := func(w io.Writer) (int64, error) {
		src, err := os.Open(localPath)
		if err != nil {
			return 0, err
		}
		defer src.Close()
		return io.Copy(w, src)
	}
	if err := p.stageAndCommit(contentHash, size, write); err != nil {
		return pool.AddResult{}, err
	}

	return pool.AddResult{ContentHash: contentHash, Size: size, IsNew: true}, nil
}

// stageAndCommit writes a blob through a staging file and renames it into
// its final bucketed location once the written size matches expectedSize.
// The staging file is removed on every failure path.
func (p *FSPool) stageAndCommit(contentHash string, expectedSize int64, write func(io.Writer) (int64, error)) error {
	stagingPath := filepath.Join(p.tmpDir, uuid.NewString())

	f, err := os.OpenFile(stagingPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, p.filePerm)
	if err != nil {
		return fmt.Errorf("failed to create staging file: %w: %w", err, pool.ErrWriteFailed)
	}

	written, werr := write(f)
	cerr := f.Close()

	if werr != nil || cerr != nil {
		os.Remove(stagingPath)
		if werr == nil {
			werr = cerr
		}
		return fmt.Errorf("blob %s: %w: %w", contentHash, werr, pool.ErrWriteFailed)
	}
	if written != expectedSize {
		os.Remove(stagingPath)
		return fmt.Errorf("blob %s: wrote %d of %d bytes: %w",
			contentHash, written, expectedSize, pool.ErrWriteFailed)
	}

	finalPath := p.blobPath(contentHash)
	if err := os.MkdirAll(filepath.Dir(finalPath), p.dirPerm); err != nil {
		os.Remove(stagingPath)
		return fmt.Errorf("failed to create bucket directory: %w: %w", err, pool.ErrWriteFailed)
	}

	// A concurrent writer of the same bytes may have landed first. The
	// content is bit-identical either way, so just drop the staging copy.
	if _, err := os.Stat(finalPath); err == nil {
		os.Remove(stagingPath)
		return nil
	}

	if err := os.Rename(stagingPath, finalPath); err != nil {
		os.Remove(stagingPath)
		return fmt.Errorf("failed to commit blob %s: %w: %w", contentHash, err, pool.ErrWriteFailed)
	}

	return nil
}

// statBlob stats a blob in the active pool, returning nil without error if
// the blob is absent.
func (p *FSPool) statBlob(contentHash string) (os.FileInfo, error) {
	if !pool.ValidHash(contentHash) {
		return nil, fmt.Errorf("hash %q: %w", contentHash, pool.ErrInvalidHash)
	}
	info, err := os.Stat(p.blobPath(contentHash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat blob: %w", err)
	}
	return info, nil
}

// Read returns a stream over an active blob. The caller must close it.
func (p *FSPool) Read(ctx context.Context, contentHash string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !pool.ValidHash(contentHash) {
		return nil, fmt.Errorf("hash %q: %w", contentHash, pool.ErrInvalidHash)
	}

	f, err := os.Open(p.blobPath(contentHash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("blob %s: %w", contentHash, pool.ErrBlobMissing)
		}
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}
	return f, nil
}

// Exists reports whether a blob is present in the active pool.
func (p *FSPool) Exists(ctx context.Context, contentHash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	info, err := p.statBlob(contentHash)
	if err != nil {
		return false, err
	}
	return info != nil, nil
}

// Size returns the byte size of an active blob.
func (p *FSPool) Size(ctx context.Context, contentHash string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	info, err := p.statBlob(contentHash)
	if err != nil {
		return 0, err
	}
	if info == nil {
		return 0, fmt.Errorf("blob %s: %w", contentHash, pool.ErrBlobMissing)
	}
	return info.Size(), nil
}

// MoveToTrash relocates a blob from the active pool to the trash area.
//
// If the trash already holds a copy of the hash, the active copy is simply
// removed. Trashing a blob that is absent from the active pool is a no-op,
// making the operation idempotent.
func (p *FSPool) MoveToTrash(ctx context.Context, contentHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !pool.ValidHash(contentHash) {
		return fmt.Errorf("hash %q: %w", contentHash, pool.ErrInvalidHash)
	}

	activePath := p.blobPath(contentHash)
	if _, err := os.Stat(activePath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat blob: %w", err)
	}

	trashPath := p.trashPath(contentHash)
	if _, err := os.Stat(trashPath); err == nil {
		// Trash already holds this content; the copies are identical.
		if err := os.Remove(activePath); err != nil {
			return fmt.Errorf("failed to remove duplicate blob: %w", err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(trashPath), p.dirPerm); err != nil {
		return fmt.Errorf("failed to create trash bucket: %w", err)
	}

	// Same-volume rename: at no point are there zero copies of the data.
	if err := os.Rename(activePath, trashPath); err != nil {
		return fmt.Errorf("failed to move blob %s to trash: %w", contentHash, err)
	}

	logger.Debug("pool: blob %s moved to trash", contentHash)
	return nil
}

// Recover moves a blob back from the trash into the active pool.
//
// The trashed copy is looked up first at its bucketed trash path, then flat
// in the trash root. It is validated by size and by re-hashing before the
// move; validation failure returns false with no side effects. If the active
// pool already holds the blob, the stale trash copy is dropped and Recover
// reports success.
func (p *FSPool) Recover(ctx context.Context, contentHash string, expectedSize int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !pool.ValidHash(contentHash) {
		return false, fmt.Errorf("hash %q: %w", contentHash, pool.ErrInvalidHash)
	}

	activePath := p.blobPath(contentHash)
	if _, err := os.Stat(activePath); err == nil {
		// Nothing to recover. Drop the trash copy if one exists so the
		// sweeper does not count it again.
		os.Remove(p.trashPath(contentHash))
		os.Remove(p.trashPathFlat(contentHash))
		return true, nil
	}

	source := ""
	for _, candidate := range []string{p.trashPath(contentHash), p.trashPathFlat(contentHash)} {
		info, err := os.Stat(candidate)
		if err != nil {
			continue
		}
		if info.Size() != expectedSize {
			logger.Warn("pool: trash copy of %s has size %d, expected %d; not recovering",
				contentHash, info.Size(), expectedSize)
			continue
		}
		source = candidate
		break
	}
	if source == "" {
		return false, nil
	}

	f, err := os.Open(source)
	if err != nil {
		return false, fmt.Errorf("failed to open trash copy: %w", err)
	}
	actualHash, _, err := pool.HashReader(f)
	f.Close()
	if err != nil {
		return false, fmt.Errorf("failed to hash trash copy: %w", err)
	}
	if actualHash != contentHash {
		logger.Warn("pool: trash copy of %s hashes to %s; not recovering", contentHash, actualHash)
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(activePath), p.dirPerm); err != nil {
		return false, fmt.Errorf("failed to create bucket directory: %w", err)
	}
	if err := os.Rename(source, activePath); err != nil {
		return false, fmt.Errorf("failed to restore blob %s: %w", contentHash, err)
	}

	logger.Info("pool: blob %s recovered from trash", contentHash)
	return true, nil
}

// ListTrash enumerates blobs in the trash area, both bucketed and flat.
func (p *FSPool) ListTrash(ctx context.Context) ([]pool.TrashEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entries []pool.TrashEntry
	err := filepath.WalkDir(p.trashDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if len(entries)%100 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		name := d.Name()
		if !pool.ValidHash(name) {
			// Not a blob; leftovers from interrupted moves are skipped.
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		entries = append(entries, pool.TrashEntry{
			ContentHash: name,
			Size:        info.Size(),
			TrashedAt:   info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan trash: %w", err)
	}
	return entries, nil
}

// PurgeTrash permanently removes a blob from the trash area. Idempotent.
func (p *FSPool) PurgeTrash(ctx context.Context, contentHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !pool.ValidHash(contentHash) {
		return fmt.Errorf("hash %q: %w", contentHash, pool.ErrInvalidHash)
	}

	for _, candidate := range []string{p.trashPath(contentHash), p.trashPathFlat(contentHash)} {
		if err := os.Remove(candidate); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to purge blob %s: %w", contentHash, err)
		}
	}
	return nil
}

// ListActive returns all content hashes in the active pool.
//
// This implements pool.Enumerable for the orphan-scan phase of the sweeper.
// The scan walks the whole bucket tree and may be slow on large corpora.
func (p *FSPool) ListActive(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var hashes []string
	err := filepath.WalkDir(p.blobDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if len(hashes)%100 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if pool.ValidHash(d.Name()) {
			hashes = append(hashes, d.Name())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan blobs: %w", err)
	}
	return hashes, nil
}

// Close cleans up leftover staging files. Blobs themselves need no teardown.
func (p *FSPool) Close() error {
	leftovers, err := os.ReadDir(p.tmpDir)
	if err != nil {
		return nil
	}
	for _, entry := range leftovers {
		os.Remove(filepath.Join(p.tmpDir, entry.Name()))
	}
	return nil
}

var (
	_ pool.Pool       = (*FSPool)(nil)
	_ pool.Enumerable = (*FSPool)(nil)
)
