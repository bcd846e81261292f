// Package s3 implements pool.Pool on an S3 (or S3-compatible) bucket.
//
// Blobs are stored under a "blobs/" key prefix and trashed blobs under
// "trash/". S3 keys need no fan-out bucketing because object stores have no
// per-directory entry limits, so keys are simply "<prefix>blobs/<hash>".
//
// Deviation from the filesystem pool: S3 has no rename, so trash moves are
// CopyObject followed by DeleteObject. The copy completes before the delete
// is issued, so there is still no window with zero copies of the data, but
// the pair is not atomic; a crash in between leaves the blob present in both
// areas, which MoveToTrash and Recover both tolerate.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/poolfs/poolfs/pkg/pool"
)

// S3Pool implements pool.Pool backed by an S3 bucket.
//
// Thread Safety: safe for concurrent use. Identical concurrent writes are
// last-write-wins over bit-identical bytes, which is indistinguishable from
// either writer winning.
type S3Pool struct {
	client    *awss3.Client
	bucket    string
	keyPrefix string
}

// Config contains configuration for creating an S3 pool.
type Config struct {
	// Client is the configured S3 client.
	Client *awss3.Client

	// Bucket is the S3 bucket name. The bucket must already exist.
	Bucket string

	// KeyPrefix is an optional prefix for all object keys.
	// Example: "poolfs/" results in keys like "poolfs/blobs/abc123".
	KeyPrefix string
}

// New creates an S3 pool and verifies bucket access.
func New(ctx context.Context, cfg Config) (*S3Pool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	_, err := cfg.Client.HeadBucket(ctx, &awss3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	return &S3Pool{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
	}, nil
}

func (p *S3Pool) blobKey(contentHash string) string {
	return p.keyPrefix + "blobs/" + contentHash
}

func (p *S3Pool) trashKey(contentHash string) string {
	return p.keyPrefix + "trash/" + contentHash
}

// headSize returns the size of the object at key, or found=false if absent.
func (p *S3Pool) headSize(ctx context.Context, key string) (size int64, found bool, err error) {
	result, err := p.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to head object: %w", err)
	}
	if result.ContentLength != nil {
		size = *result.ContentLength
	}
	return size, true, nil
}

// AddFromBytes stores data under its content hash. A blob already present
// under the hash makes the call a deduplicated no-op.
func (p *S3Pool) AddFromBytes(ctx context.Context, data []byte) (pool.AddResult, error) {
	if err := ctx.Err(); err != nil {
		return pool.AddResult{}, err
	}

	contentHash := pool.HashBytes(data)
	size := int64(len(data))

	existingSize, found, err := p.headSize(ctx, p.blobKey(contentHash))
	if err != nil {
		return pool.AddResult{}, err
	}
	if found {
		if existingSize != size {
			return pool.AddResult{}, fmt.Errorf(
				"blob %s: existing size %d, expected %d: %w",
				contentHash, existingSize, size, pool.ErrSizeMismatch)
		}
		return pool.AddResult{ContentHash: contentHash, Size: size, IsNew: false}, nil
	}

	_, err = p.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(p.blobKey(contentHash)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return pool.AddResult{}, fmt.Errorf("blob %s: %w: %w", contentHash, err, pool.ErrWriteFailed)
	}

	return pool.AddResult{ContentHash: contentHash, Size: size, IsNew: true}, nil
}

// AddFromPath stores the contents of a local file.
//
// S3 PutObject needs a seekable body for signing, so the local file handle is
// streamed directly. knownHash skips the hashing pass; size is verified by
// the ContentLength the SDK enforces against the stream.
func (p *S3Pool) AddFromPath(ctx context.Context, localPath string, knownHash string) (pool.AddResult, error) {
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
		f, err := os.Open(localPath)
		if err != nil {
			return pool.AddResult{}, fmt.Errorf("failed to open source file: %w", err)
		}
		contentHash, _, err = pool.HashReader(f)
		f.Close()
		if err != nil {
			return pool.AddResult{}, fmt.Errorf("failed to hash source file: %w", err)
		}
	}
	if !pool.ValidHash(contentHash) {
		return pool.AddResult{}, fmt.Errorf("hash %q: %w", contentHash, pool.ErrInvalidHash)
	}

	existingSize, found, err := p.headSize(ctx, p.blobKey(contentHash))
	if err != nil {
		return pool.AddResult{}, err
	}
	if found {
		if existingSize != size {
			return pool.AddResult{}, fmt.Errorf(
				"blob %s: existing size %d, expected %d: %w",
				contentHash, existingSize, size, pool.ErrSizeMismatch)
		}
		return pool.AddResult{ContentHash: contentHash, Size: size, IsNew: false}, nil
	}

	f, err := os.Open(localPath)
	if err != nil {
		return pool.AddResult{}, fmt.Errorf("failed to open source file: %w", err)
	}
	defer f.Close()

	_, err = p.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(p.blobKey(contentHash)),
		Body:          f,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return pool.AddResult{}, fmt.Errorf("blob %s: %w: %w", contentHash, err, pool.ErrWriteFailed)
	}

	return pool.AddResult{ContentHash: contentHash, Size: size, IsNew: true}, nil
}

// Read returns a stream over an active blob. The caller must close it.
func (p *S3Pool) Read(ctx context.Context, contentHash string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !pool.ValidHash(contentHash) {
		return nil, fmt.Errorf("hash %q: %w", contentHash, pool.ErrInvalidHash)
	}

	result, err := p.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.blobKey(contentHash)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("blob %s: %w", contentHash, pool.ErrBlobMissing)
		}
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return result.Body, nil
}

// Exists reports whether a blob is present in the active pool.
func (p *S3Pool) Exists(ctx context.Context, contentHash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !pool.ValidHash(contentHash) {
		return false, fmt.Errorf("hash %q: %w", contentHash, pool.ErrInvalidHash)
	}
	_, found, err := p.headSize(ctx, p.blobKey(contentHash))
	return found, err
}

// Size returns the byte size of an active blob.
func (p *S3Pool) Size(ctx context.Context, contentHash string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if !pool.ValidHash(contentHash) {
		return 0, fmt.Errorf("hash %q: %w", contentHash, pool.ErrInvalidHash)
	}
	size, found, err := p.headSize(ctx, p.blobKey(contentHash))
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("blob %s: %w", contentHash, pool.ErrBlobMissing)
	}
	return size, nil
}

// MoveToTrash copies a blob to the trash prefix and removes the active copy.
func (p *S3Pool) MoveToTrash(ctx context.Context, contentHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !pool.ValidHash(contentHash) {
		return fmt.Errorf("hash %q: %w", contentHash, pool.ErrInvalidHash)
	}

	_, found, err := p.headSize(ctx, p.blobKey(contentHash))
	if err != nil {
		return err
	}
	if !found {
		// Idempotent: already trashed or never present.
		return nil
	}

	_, trashed, err := p.headSize(ctx, p.trashKey(contentHash))
	if err != nil {
		return err
	}
	if !trashed {
		_, err = p.client.CopyObject(ctx, &awss3.CopyObjectInput{
			Bucket:     aws.String(p.bucket),
			Key:        aws.String(p.trashKey(contentHash)),
			CopySource: aws.String(p.bucket + "/" + p.blobKey(contentHash)),
		})
		if err != nil {
			return fmt.Errorf("failed to copy blob %s to trash: %w", contentHash, err)
		}
	}

	_, err = p.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.blobKey(contentHash)),
	})
	if err != nil {
		return fmt.Errorf("failed to remove active blob %s: %w", contentHash, err)
	}
	return nil
}

// Recover copies a blob back from the trash prefix to the active prefix.
//
// Validation is size-only: re-hashing would require a full download, and S3
// already guards object integrity with per-request checksums.
func (p *S3Pool) Recover(ctx context.Context, contentHash string, expectedSize int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !pool.ValidHash(contentHash) {
		return false, fmt.Errorf("hash %q: %w", contentHash, pool.ErrInvalidHash)
	}

	_, active, err := p.headSize(ctx, p.blobKey(contentHash))
	if err != nil {
		return false, err
	}
	if active {
		_, _ = p.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
			Bucket: aws.String(p.bucket),
			Key:    aws.String(p.trashKey(contentHash)),
		})
		return true, nil
	}

	trashSize, found, err := p.headSize(ctx, p.trashKey(contentHash))
	if err != nil {
		return false, err
	}
	if !found || trashSize != expectedSize {
		return false, nil
	}

	_, err = p.client.CopyObject(ctx, &awss3.CopyObjectInput{
		Bucket:     aws.String(p.bucket),
		Key:        aws.String(p.blobKey(contentHash)),
		CopySource: aws.String(p.bucket + "/" + p.trashKey(contentHash)),
	})
	if err != nil {
		return false, fmt.Errorf("failed to restore blob %s: %w", contentHash, err)
	}

	_, err = p.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.trashKey(contentHash)),
	})
	if err != nil {
		return false, fmt.Errorf("failed to remove trash copy of %s: %w", contentHash, err)
	}
	return true, nil
}

// ListTrash enumerates blobs under the trash prefix.
func (p *S3Pool) ListTrash(ctx context.Context) ([]pool.TrashEntry, error) {
	return p.list(ctx, p.keyPrefix+"trash/", func(obj types.Object, hash string) pool.TrashEntry {
		entry := pool.TrashEntry{ContentHash: hash}
		if obj.Size != nil {
			entry.Size = *obj.Size
		}
		if obj.LastModified != nil {
			entry.TrashedAt = *obj.LastModified
		}
		return entry
	})
}

// ListActive implements pool.Enumerable.
func (p *S3Pool) ListActive(ctx context.Context) ([]string, error) {
	entries, err := p.list(ctx, p.keyPrefix+"blobs/", func(obj types.Object, hash string) pool.TrashEntry {
		return pool.TrashEntry{ContentHash: hash}
	})
	if err != nil {
		return nil, err
	}
	hashes := make([]string, 0, len(entries))
	for _, entry := range entries {
		hashes = append(hashes, entry.ContentHash)
	}
	return hashes, nil
}

// list pages through all objects under prefix, mapping each to a TrashEntry.
func (p *S3Pool) list(ctx context.Context, prefix string, mk func(types.Object, string) pool.TrashEntry) ([]pool.TrashEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entries []pool.TrashEntry
	paginator := awss3.NewListObjectsV2Paginator(p.client, &awss3.ListObjectsV2Input{
		Bucket: aws.String(p.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			hash := (*obj.Key)[len(prefix):]
			if !pool.ValidHash(hash) {
				continue
			}
			entries = append(entries, mk(obj, hash))
		}
	}
	return entries, nil
}

// PurgeTrash permanently removes a blob from the trash prefix. Idempotent:
// S3 DeleteObject succeeds on absent keys.
func (p *S3Pool) PurgeTrash(ctx context.Context, contentHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !pool.ValidHash(contentHash) {
		return fmt.Errorf("hash %q: %w", contentHash, pool.ErrInvalidHash)
	}

	_, err := p.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.trashKey(contentHash)),
	})
	if err != nil {
		return fmt.Errorf("failed to purge blob %s: %w", contentHash, err)
	}
	return nil
}

// Close is a no-op; the S3 client is owned by the caller.
func (p *S3Pool) Close() error {
	return nil
}

var (
	_ pool.Pool       = (*S3Pool)(nil)
	_ pool.Enumerable = (*S3Pool)(nil)
)
