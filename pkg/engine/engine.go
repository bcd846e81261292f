// Package engine ties the content pool and the file index together into the
// storage engine: creating logical files with de-duplicated content,
// deleting them with deferred blob reclamation, and reading them back.
//
// The engine owns the consistency rules between the two stores. Content is
// always written to the pool before its record is inserted, and a failed
// insert trashes a blob it just created, so a crash or error never leaves
// an addressable blob without a record pointing at it (a blob already
// shared with other records is simply left in place).
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/poolfs/poolfs/internal/logger"
	"github.com/poolfs/poolfs/pkg/index"
	"github.com/poolfs/poolfs/pkg/pool"
)

// Engine is the file storage engine facade.
type Engine struct {
	pool    pool.Pool
	index   index.Index
	fetcher Fetcher

	// emptyHash is the content hash of the zero-length blob, computed
	// once at construction. Directory records all reference it.
	emptyHash string
}

// Option configures optional Engine collaborators.
type Option func(*Engine)

// WithFetcher replaces the default HTTP fetcher used by CreateFromURL.
func WithFetcher(f Fetcher) Option {
	return func(e *Engine) { e.fetcher = f }
}

// New builds an Engine over a content pool and a file index.
func New(p pool.Pool, idx index.Index, opts ...Option) *Engine {
	e := &Engine{
		pool:      p,
		index:     idx,
		fetcher:   NewHTTPFetcher(),
		emptyHash: pool.HashBytes(nil),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateFromBytes stores in-memory content as a new logical file.
func (e *Engine) CreateFromBytes(ctx context.Context, req FileCreateRequest, data []byte) (*StoredFile, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	res, err := e.pool.AddFromBytes(ctx, data)
	if err != nil {
		return nil, err
	}
	return e.finishCreate(ctx, req, res)
}

// CreateFromPath stores the content of a local file as a new logical file.
// When req.KnownContentHash is set the pool trusts it instead of rehashing.
func (e *Engine) CreateFromPath(ctx context.Context, req FileCreateRequest, localPath string) (*StoredFile, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	res, err := e.pool.AddFromPath(ctx, localPath, req.KnownContentHash)
	if err != nil {
		return nil, err
	}
	return e.finishCreate(ctx, req, res)
}

// CreateFromURL downloads remote content and stores it as a new logical
// file. The download is spooled to a temporary file so arbitrarily large
// content never has to fit in memory.
func (e *Engine) CreateFromURL(ctx context.Context, req FileCreateRequest, url string, fetchOpts FetchOptions) (*StoredFile, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	body, err := e.fetcher.Fetch(ctx, url, fetchOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer body.Close()

	tmp, err := os.CreateTemp("", "poolfs-fetch-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create spool file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	_, copyErr := io.Copy(tmp, body)
	closeErr := tmp.Close()
	if copyErr != nil {
		return nil, fmt.Errorf("failed to spool %s: %w", url, copyErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("failed to spool %s: %w", url, closeErr)
	}

	res, err := e.pool.AddFromPath(ctx, tmpPath, "")
	if err != nil {
		return nil, err
	}
	return e.finishCreate(ctx, req, res)
}

// CopyFile creates a new logical file sharing the content of an existing
// one. No blob bytes move; only a record is inserted. Metadata fields left
// empty on the request are inherited from the source.
func (e *Engine) CopyFile(ctx context.Context, src index.Key, req FileCreateRequest) (*StoredFile, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	srcRec, err := e.index.GetByKey(ctx, src)
	if err != nil {
		return nil, err
	}
	if srcRec == nil {
		return nil, fmt.Errorf("copy source %s: %w", src, ErrFileNotFound)
	}
	if req.MimeType == "" {
		req.MimeType = srcRec.MimeType
	}
	if req.Author == "" {
		req.Author = srcRec.Author
	}
	res := pool.AddResult{ContentHash: srcRec.ContentHash, Size: srcRec.Size, IsNew: false}
	return e.finishCreate(ctx, req, res)
}

// StoreDerived stores content derived from an existing file (a converted
// rendition, a thumbnail) next to it: same scope and path, the given name.
// An existing derived file with that name is replaced.
func (e *Engine) StoreDerived(ctx context.Context, src index.Key, name string, data []byte, mimeType string) (*StoredFile, error) {
	srcRec, err := e.index.GetByKey(ctx, src)
	if err != nil {
		return nil, err
	}
	if srcRec == nil {
		return nil, fmt.Errorf("derivation source %s: %w", src, ErrFileNotFound)
	}
	req := FileCreateRequest{
		ContextID: srcRec.ContextID,
		Area:      srcRec.Area,
		ItemID:    srcRec.ItemID,
		Path:      srcRec.Path,
		Name:      name,
		MimeType:  mimeType,
		Author:    srcRec.Author,
		SortOrder: srcRec.SortOrder,
		Overwrite: true,
	}
	return e.CreateFromBytes(ctx, req, data)
}

// finishCreate runs the shared tail of the create pipeline: duplicate
// policy, ancestor directories, record insert, and blob rollback when the
// insert fails on content this request introduced.
func (e *Engine) finishCreate(ctx context.Context, req FileCreateRequest, res pool.AddResult) (*StoredFile, error) {
	key := req.Key()
	pathnameHash := key.PathnameHash()

	existing, err := e.index.Get(ctx, pathnameHash)
	if err != nil {
		e.rollbackBlob(ctx, res)
		return nil, err
	}
	if existing != nil && !req.Overwrite {
		e.rollbackBlob(ctx, res)
		return nil, fmt.Errorf("key %s: %w", key, ErrDuplicateFile)
	}

	if err := e.ensureDirectories(ctx, key); err != nil {
		e.rollbackBlob(ctx, res)
		return nil, err
	}

	created, modified := req.times(time.Now().UTC())
	record := &index.Record{
		PathnameHash: pathnameHash,
		ContextID:    key.ContextID,
		Area:         key.Area,
		ItemID:       key.ItemID,
		Path:         key.Path,
		Name:         key.Name,
		ContentHash:  res.ContentHash,
		Size:         res.Size,
		MimeType:     req.MimeType,
		Author:       req.Author,
		SortOrder:    req.SortOrder,
		CreatedAt:    created,
		ModifiedAt:   modified,
	}

	if existing != nil {
		if err := e.index.Update(ctx, record); err != nil {
			e.rollbackBlob(ctx, res)
			return nil, err
		}
		if existing.ContentHash != record.ContentHash {
			e.deletedFileCleanup(ctx, existing.ContentHash)
		}
	} else {
		if err := e.index.Insert(ctx, record); err != nil {
			e.rollbackBlob(ctx, res)
			if errors.Is(err, index.ErrDuplicate) {
				// Lost an insert race since the policy check.
				return nil, fmt.Errorf("key %s: %w", key, ErrDuplicateFile)
			}
			return nil, err
		}
	}

	return newStoredFile(e, record), nil
}

// rollbackBlob trashes a blob the failed create had just introduced.
// Shared content (IsNew false, or referenced by another record meanwhile)
// stays put. Best effort: a blob the rollback misses is unreferenced and
// the orphan scan will find it.
func (e *Engine) rollbackBlob(ctx context.Context, res pool.AddResult) {
	if !res.IsNew {
		return
	}
	refs, err := e.index.CountContentRefs(ctx, res.ContentHash)
	if err != nil {
		logger.Warn("Rollback ref check for %s failed: %v", res.ContentHash, err)
		return
	}
	if refs > 0 {
		return
	}
	if err := e.pool.MoveToTrash(ctx, res.ContentHash); err != nil {
		logger.Warn("Rollback trash of %s failed: %v", res.ContentHash, err)
	}
}

// ensureDirectories creates the missing directory records above a key,
// bottom-up, ending at the root marker. Directory records reference the
// empty blob, which AddFromBytes makes exist idempotently.
func (e *Engine) ensureDirectories(ctx context.Context, key index.Key) error {
	dir := key.Dir()
	for {
		exists, err := e.index.Exists(ctx, dir.PathnameHash())
		if err != nil {
			return err
		}
		if exists {
			// Ancestors of an existing directory already exist.
			return nil
		}
		if err := e.createDirectoryRecord(ctx, dir); err != nil {
			return err
		}
		var ok bool
		if dir, ok = dir.Parent(); !ok {
			return nil
		}
	}
}

func (e *Engine) createDirectoryRecord(ctx context.Context, dir index.Key) error {
	if _, err := e.pool.AddFromBytes(ctx, nil); err != nil {
		return fmt.Errorf("failed to ensure empty blob for directory %s: %w", dir.Path, err)
	}
	now := time.Now().UTC()
	record := &index.Record{
		PathnameHash: dir.PathnameHash(),
		ContextID:    dir.ContextID,
		Area:         dir.Area,
		ItemID:       dir.ItemID,
		Path:         dir.Path,
		Name:         index.DirectoryName,
		ContentHash:  e.emptyHash,
		Size:         0,
		CreatedAt:    now,
		ModifiedAt:   now,
	}
	err := e.index.Insert(ctx, record)
	if errors.Is(err, index.ErrDuplicate) {
		// Another create raced us to it; same outcome.
		return nil
	}
	return err
}

// Delete removes the logical file for a pathname hash. Absent records are
// a no-op. Deleting a directory removes its whole subtree, children first.
// Blobs left unreferenced are moved to trash, best effort.
func (e *Engine) Delete(ctx context.Context, pathnameHash string) error {
	record, err := e.index.Get(ctx, pathnameHash)
	if err != nil {
		return err
	}
	if record == nil {
		return nil
	}
	if record.IsDirectory() {
		return e.deleteDirectory(ctx, record)
	}

	if err := e.index.Delete(ctx, pathnameHash); err != nil {
		if errors.Is(err, index.ErrNotFound) {
			return nil
		}
		return err
	}
	e.deletedFileCleanup(ctx, record.ContentHash)
	return nil
}

// DeleteByKey is Delete keyed by the composite tuple.
func (e *Engine) DeleteByKey(ctx context.Context, key index.Key) error {
	return e.Delete(ctx, key.PathnameHash())
}

// deleteDirectory removes a directory record and everything beneath it.
// Children go first so an interrupted delete never leaves records whose
// parent directory is gone.
func (e *Engine) deleteDirectory(ctx context.Context, dir *index.Record) error {
	scope := index.Scope{ContextID: dir.ContextID, Area: dir.Area, ItemID: dir.ItemID}
	all, err := e.index.ListScope(ctx, scope.Selector())
	if err != nil {
		return err
	}

	var subtree []*index.Record
	for _, r := range all {
		if !index.IsPathWithin(dir.Path, r.Path) {
			continue
		}
		if r.PathnameHash == dir.PathnameHash {
			continue
		}
		subtree = append(subtree, r)
	}
	// Deepest entries first; files before the marker at equal depth.
	sortChildrenFirst(subtree)
	subtree = append(subtree, dir)

	hashes := make(map[string]struct{})
	for _, r := range subtree {
		if err := e.index.Delete(ctx, r.PathnameHash); err != nil && !errors.Is(err, index.ErrNotFound) {
			return err
		}
		hashes[r.ContentHash] = struct{}{}
	}
	for hash := range hashes {
		e.deletedFileCleanup(ctx, hash)
	}
	return nil
}

// sortChildrenFirst orders subtree records for deletion: deepest paths
// first, and at equal depth files before the directory marker.
func sortChildrenFirst(records []*index.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		di, dj := index.PathDepth(records[i].Path), index.PathDepth(records[j].Path)
		if di != dj {
			return di > dj
		}
		return !records[i].IsDirectory() && records[j].IsDirectory()
	})
}

// DeleteScope removes every record a selector matches and reclaims the
// blobs left unreferenced. Returns how many records were removed.
func (e *Engine) DeleteScope(ctx context.Context, sel index.Selector) (int, error) {
	removed, err := e.index.DeleteScope(ctx, sel)
	if err != nil {
		return len(removed), err
	}
	hashes := make(map[string]struct{})
	for _, r := range removed {
		hashes[r.ContentHash] = struct{}{}
	}
	for hash := range hashes {
		e.deletedFileCleanup(ctx, hash)
	}
	return len(removed), nil
}

// deletedFileCleanup moves a blob to trash once nothing references it.
//
// The ref check and the move are not atomic. A create may insert a record
// for the same content between them; the blob it references then sits in
// trash, and the next read recovers it. That rare corner degrades to a
// recovery, never to data loss, so the window is tolerated rather than
// locked away. Failures here are logged, not surfaced: record deletion has
// already succeeded and reclamation is a background concern.
func (e *Engine) deletedFileCleanup(ctx context.Context, contentHash string) {
	refs, err := e.index.CountContentRefs(ctx, contentHash)
	if err != nil {
		logger.Warn("Cleanup ref check for %s failed: %v", contentHash, err)
		return
	}
	if refs > 0 {
		return
	}
	if err := e.pool.MoveToTrash(ctx, contentHash); err != nil {
		logger.Warn("Cleanup trash of %s failed: %v", contentHash, err)
		return
	}
	logger.Debug("Trashed unreferenced blob %s", contentHash)
}

// GetFile returns the stored file for a pathname hash, or (nil, nil) when
// no record exists.
func (e *Engine) GetFile(ctx context.Context, pathnameHash string) (*StoredFile, error) {
	record, err := e.index.Get(ctx, pathnameHash)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, nil
	}
	return newStoredFile(e, record), nil
}

// GetFileByKey is GetFile keyed by the composite tuple.
func (e *Engine) GetFileByKey(ctx context.Context, key index.Key) (*StoredFile, error) {
	return e.GetFile(ctx, key.PathnameHash())
}

// ListOptions shape a listing.
type ListOptions struct {
	// IncludeDirs keeps directory marker records in the result.
	IncludeDirs bool

	// Sorted orders the result directories-first, then by sort order and
	// name. Unsorted results come back in storage order.
	Sorted bool
}

// ListArea returns the files in an area, across all items when itemID is
// nil.
func (e *Engine) ListArea(ctx context.Context, contextID int64, area string, itemID *int64, opts ListOptions) ([]*StoredFile, error) {
	records, err := e.index.ListScope(ctx, index.Selector{ContextID: contextID, Area: area, ItemID: itemID})
	if err != nil {
		return nil, err
	}
	return e.finishListing(records, opts), nil
}

// ListDirectory returns the children of a directory. Non-recursive
// listings return direct children only; recursive ones the whole subtree.
func (e *Engine) ListDirectory(ctx context.Context, scope index.Scope, dir string, recursive bool, opts ListOptions) ([]*StoredFile, error) {
	var records []*index.Record
	var err error
	if recursive {
		var all []*index.Record
		all, err = e.index.ListScope(ctx, scope.Selector())
		if err != nil {
			return nil, err
		}
		dirHash := index.Key{ContextID: scope.ContextID, Area: scope.Area, ItemID: scope.ItemID, Path: dir, Name: index.DirectoryName}.PathnameHash()
		for _, r := range all {
			if index.IsPathWithin(dir, r.Path) && r.PathnameHash != dirHash {
				records = append(records, r)
			}
		}
	} else {
		records, err = e.index.ListDirectory(ctx, scope, dir)
		if err != nil {
			return nil, err
		}
	}
	return e.finishListing(records, opts), nil
}

func (e *Engine) finishListing(records []*index.Record, opts ListOptions) []*StoredFile {
	if !opts.IncludeDirs {
		kept := records[:0]
		for _, r := range records {
			if !r.IsDirectory() {
				kept = append(kept, r)
			}
		}
		records = kept
	}
	if opts.Sorted {
		index.SortRecords(records)
	}
	files := make([]*StoredFile, len(records))
	for i, r := range records {
		files[i] = newStoredFile(e, r)
	}
	return files
}

// DirectoryTree builds the full directory tree of a scope from a single
// index scan.
func (e *Engine) DirectoryTree(ctx context.Context, scope index.Scope) (*Tree, error) {
	records, err := e.index.ListScope(ctx, scope.Selector())
	if err != nil {
		return nil, err
	}
	return BuildTree(records), nil
}

// TryContentRecovery attempts to restore a record's blob from trash,
// validating size and digest. Returns true when the blob is readable
// afterwards.
func (e *Engine) TryContentRecovery(ctx context.Context, record *index.Record) (bool, error) {
	recovered, err := e.pool.Recover(ctx, record.ContentHash, record.Size)
	if err != nil {
		return false, err
	}
	if recovered {
		logger.Info("Recovered blob %s from trash for %s", record.ContentHash, record.PathnameHash)
	}
	return recovered, nil
}

// Pool exposes the underlying content pool, for maintenance tooling.
func (e *Engine) Pool() pool.Pool { return e.pool }

// Index exposes the underlying file index, for maintenance tooling.
func (e *Engine) Index() index.Index { return e.index }
