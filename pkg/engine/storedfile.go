package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/poolfs/poolfs/pkg/index"
	"github.com/poolfs/poolfs/pkg/pool"
)

// StoredFile is a read-only view of a logical file. It carries its own copy
// of the record, so later index mutations never show through a held view.
type StoredFile struct {
	engine *Engine
	record index.Record
}

func newStoredFile(e *Engine, record *index.Record) *StoredFile {
	return &StoredFile{engine: e, record: *record}
}

// Filename returns the leaf name, or the last path component for a
// directory.
func (f *StoredFile) Filename() string {
	if !f.IsDirectory() {
		return f.record.Name
	}
	if f.record.Path == "/" {
		return "/"
	}
	trimmed := f.record.Path[:len(f.record.Path)-1]
	for i := len(trimmed) - 1; i >= 0; i-- {
		if trimmed[i] == '/' {
			return trimmed[i+1:]
		}
	}
	return trimmed
}

// Filepath returns the virtual directory path holding the file.
func (f *StoredFile) Filepath() string { return f.record.Path }

func (f *StoredFile) Size() int64          { return f.record.Size }
func (f *StoredFile) MimeType() string     { return f.record.MimeType }
func (f *StoredFile) Author() string       { return f.record.Author }
func (f *StoredFile) SortOrder() int       { return f.record.SortOrder }
func (f *StoredFile) CreatedAt() time.Time { return f.record.CreatedAt }
func (f *StoredFile) ModifiedAt() time.Time { return f.record.ModifiedAt }

// IsDirectory reports whether the view is a directory marker.
func (f *StoredFile) IsDirectory() bool { return f.record.IsDirectory() }

// ContentHash returns the hash addressing the blob in the pool.
func (f *StoredFile) ContentHash() string { return f.record.ContentHash }

// PathnameHash returns the record's external identifier.
func (f *StoredFile) PathnameHash() string { return f.record.PathnameHash }

// Key returns the composite key of the file.
func (f *StoredFile) Key() index.Key { return f.record.Key() }

// Record returns a copy of the underlying record.
func (f *StoredFile) Record() index.Record { return f.record }

// Open streams the file's content. A blob missing from the active pool is
// recovered from trash once before the read is declared failed.
func (f *StoredFile) Open(ctx context.Context) (io.ReadCloser, error) {
	rc, err := f.engine.pool.Read(ctx, f.record.ContentHash)
	if err == nil {
		return rc, nil
	}
	if !errors.Is(err, pool.ErrBlobMissing) {
		return nil, err
	}

	recovered, recErr := f.engine.TryContentRecovery(ctx, &f.record)
	if recErr != nil {
		return nil, fmt.Errorf("blob %s missing and recovery failed: %w", f.record.ContentHash, recErr)
	}
	if !recovered {
		return nil, fmt.Errorf("blob %s lost (not in trash either): %w", f.record.ContentHash, pool.ErrBlobMissing)
	}
	return f.engine.pool.Read(ctx, f.record.ContentHash)
}

// CopyTo streams the file's content into a writer, returning the bytes
// written.
func (f *StoredFile) CopyTo(ctx context.Context, w io.Writer) (int64, error) {
	rc, err := f.Open(ctx)
	if err != nil {
		return 0, err
	}
	defer rc.Close()
	return io.Copy(w, rc)
}

// CopyToPath writes the file's content to a local path, truncating any
// existing file.
func (f *StoredFile) CopyToPath(ctx context.Context, localPath string) error {
	out, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", localPath, err)
	}
	_, err = f.CopyTo(ctx, out)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		// A failed copy or flush must not leave a partial destination.
		os.Remove(localPath)
		return err
	}
	return nil
}

// ReadAll returns the whole content in memory. Intended for small files.
func (f *StoredFile) ReadAll(ctx context.Context) ([]byte, error) {
	rc, err := f.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
