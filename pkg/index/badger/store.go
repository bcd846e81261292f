// Package badger provides a persistent Index backed by BadgerDB, an
// embedded key-value store with ACID transactions.
//
// Records are stored as JSON values under namespaced keys (see keys.go).
// All mutations update the record and its secondary index entries inside a
// single transaction, so the scope and content ref indexes never drift from
// the record store.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/poolfs/poolfs/internal/logger"
	"github.com/poolfs/poolfs/pkg/index"
)

// idSequenceKey names the badger sequence used to assign Record.ID.
const idSequenceKey = "seq:record-id"

// idSequenceBandwidth is how many IDs each lease reserves. Unused IDs from
// a lease are lost on restart, which only costs gaps in the ID space.
const idSequenceBandwidth = 64

// BadgerIndex implements index.Index on BadgerDB.
type BadgerIndex struct {
	db  *badger.DB
	seq *badger.Sequence
}

// Config holds the options for opening a BadgerIndex.
type Config struct {
	// DBPath is the directory holding the database files. Created if
	// missing.
	DBPath string

	// InMemory opens the database with no disk backing. DBPath is
	// ignored. Intended for tests.
	InMemory bool
}

// New opens (or creates) a BadgerDB-backed index at cfg.DBPath.
func New(ctx context.Context, cfg Config) (*BadgerIndex, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(cfg.DBPath)
	opts = opts.WithLoggingLevel(badger.WARNING)
	// Records are small JSON blobs; compression costs more than it saves.
	opts = opts.WithCompression(options.None)
	if cfg.InMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open index database at %s: %w", cfg.DBPath, err)
	}

	seq, err := db.GetSequence([]byte(idSequenceKey), idSequenceBandwidth)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open record id sequence: %w", err)
	}

	logger.Debug("Opened index database at %s", cfg.DBPath)
	return &BadgerIndex{db: db, seq: seq}, nil
}

func (s *BadgerIndex) Get(ctx context.Context, pathnameHash string) (*index.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var record *index.Record
	err := s.db.View(func(txn *badger.Txn) error {
		r, err := getRecord(txn, pathnameHash)
		if err != nil {
			return err
		}
		record = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *BadgerIndex) GetByKey(ctx context.Context, key index.Key) (*index.Record, error) {
	return s.Get(ctx, key.PathnameHash())
}

func (s *BadgerIndex) Exists(ctx context.Context, pathnameHash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	exists := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(keyRecord(pathnameHash))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	return exists, err
}

func (s *BadgerIndex) Insert(ctx context.Context, record *index.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("failed to assign record id: %w", err)
	}
	// Sequence starts at 0; IDs are 1-based.
	record.ID = id + 1

	insert := func(txn *badger.Txn) error {
		_, err := txn.Get(keyRecord(record.PathnameHash))
		if err == nil {
			return index.ErrDuplicate
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return putRecord(txn, record)
	}

	err = s.db.Update(insert)
	if !errors.Is(err, badger.ErrConflict) {
		return err
	}
	// Lost a commit race. When the winner stored this same pathname hash
	// the insert is a duplicate; an overlapping write of another key just
	// needs the transaction rerun.
	exists, checkErr := s.Exists(ctx, record.PathnameHash)
	if checkErr != nil {
		return checkErr
	}
	if exists {
		return index.ErrDuplicate
	}
	return s.db.Update(insert)
}

func (s *BadgerIndex) Update(ctx context.Context, record *index.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		existing, err := getRecord(txn, record.PathnameHash)
		if err != nil {
			return err
		}
		if existing == nil {
			return index.ErrNotFound
		}
		record.ID = existing.ID
		record.CreatedAt = existing.CreatedAt
		// The content hash may change; drop the old ref entry first so
		// the ref index tracks the stored record exactly.
		if existing.ContentHash != record.ContentHash {
			if err := txn.Delete(keyContentRef(existing.ContentHash, existing.PathnameHash)); err != nil {
				return err
			}
		}
		return putRecord(txn, record)
	})
}

func (s *BadgerIndex) Delete(ctx context.Context, pathnameHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		existing, err := getRecord(txn, pathnameHash)
		if err != nil {
			return err
		}
		if existing == nil {
			return index.ErrNotFound
		}
		return deleteRecord(txn, existing)
	})
}

func (s *BadgerIndex) ListScope(ctx context.Context, sel index.Selector) ([]*index.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var records []*index.Record
	err := s.db.View(func(txn *badger.Txn) error {
		hashes, err := scanSelector(txn, sel)
		if err != nil {
			return err
		}
		for i, hash := range hashes {
			if i%100 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			r, err := getRecord(txn, hash)
			if err != nil {
				return err
			}
			if r == nil {
				// Scope entry with no record means a partially
				// failed delete; skip it rather than fail the
				// whole listing.
				logger.Warn("Index scope entry without record: %s", hash)
				continue
			}
			records = append(records, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *BadgerIndex) ListDirectory(ctx context.Context, scope index.Scope, dir string) ([]*index.Record, error) {
	all, err := s.ListScope(ctx, scope.Selector())
	if err != nil {
		return nil, err
	}
	var out []*index.Record
	for _, r := range all {
		if r.IsDirectory() {
			if index.IsDirectChild(dir, r.Path) {
				out = append(out, r)
			}
			continue
		}
		if r.Path == dir {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *BadgerIndex) DeleteScope(ctx context.Context, sel index.Selector) ([]*index.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var removed []*index.Record
	// Deletions run in batches to stay under badger's transaction size
	// limit for large scopes.
	for {
		var batch []*index.Record
		err := s.db.Update(func(txn *badger.Txn) error {
			batch = nil
			entries, err := scanSelectorKeys(txn, sel)
			if err != nil {
				return err
			}
			if len(entries) > deleteBatchSize {
				entries = entries[:deleteBatchSize]
			}
			for _, entry := range entries {
				r, err := getRecord(txn, entry.pathnameHash)
				if err != nil {
					return err
				}
				if r == nil {
					if err := txn.Delete(entry.key); err != nil {
						return err
					}
					continue
				}
				if err := deleteRecord(txn, r); err != nil {
					return err
				}
				batch = append(batch, r)
			}
			return nil
		})
		if err != nil {
			return removed, err
		}
		if len(batch) == 0 {
			return removed, nil
		}
		removed = append(removed, batch...)
		if err := ctx.Err(); err != nil {
			return removed, err
		}
	}
}

const deleteBatchSize = 500

func (s *BadgerIndex) CountContentRefs(ctx context.Context, contentHash string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = keyContentPrefix(contentHash)
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

func (s *BadgerIndex) ListContentHashes(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var hashes []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixContent)
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		last := ""
		n := 0
		for it.Rewind(); it.Valid(); it.Next() {
			n++
			if n%100 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			hash := contentHashFromRefKey(it.Item().Key())
			// Ref keys sort by content hash, so duplicates are
			// adjacent.
			if hash == last {
				continue
			}
			last = hash
			hashes = append(hashes, hash)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return hashes, nil
}

func (s *BadgerIndex) Close() error {
	if err := s.seq.Release(); err != nil {
		logger.Warn("Failed to release record id sequence: %v", err)
	}
	return s.db.Close()
}

// getRecord reads and decodes a record inside a transaction, returning
// (nil, nil) when absent.
func getRecord(txn *badger.Txn, pathnameHash string) (*index.Record, error) {
	item, err := txn.Get(keyRecord(pathnameHash))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var record index.Record
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &record)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to decode record %s: %w", pathnameHash, err)
	}
	return &record, nil
}

// putRecord writes a record and its secondary index entries.
func putRecord(txn *badger.Txn, record *index.Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", record.PathnameHash, err)
	}
	if err := txn.Set(keyRecord(record.PathnameHash), data); err != nil {
		return err
	}
	scope := index.Scope{ContextID: record.ContextID, Area: record.Area, ItemID: record.ItemID}
	if err := txn.Set(keyScope(scope, record.PathnameHash), nil); err != nil {
		return err
	}
	return txn.Set(keyContentRef(record.ContentHash, record.PathnameHash), nil)
}

// deleteRecord removes a record and its secondary index entries.
func deleteRecord(txn *badger.Txn, record *index.Record) error {
	if err := txn.Delete(keyRecord(record.PathnameHash)); err != nil {
		return err
	}
	scope := index.Scope{ContextID: record.ContextID, Area: record.Area, ItemID: record.ItemID}
	if err := txn.Delete(keyScope(scope, record.PathnameHash)); err != nil {
		return err
	}
	return txn.Delete(keyContentRef(record.ContentHash, record.PathnameHash))
}

// scopeEntry pairs a scope index key with its trailing pathname hash.
type scopeEntry struct {
	key          []byte
	pathnameHash string
}

// scanSelectorKeys collects the scope index entries a selector matches.
func scanSelectorKeys(txn *badger.Txn, sel index.Selector) ([]scopeEntry, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = keySelectorPrefix(sel)
	opts.PrefetchValues = false

	it := txn.NewIterator(opts)
	defer it.Close()

	var entries []scopeEntry
	for it.Rewind(); it.Valid(); it.Next() {
		key := it.Item().KeyCopy(nil)
		entries = append(entries, scopeEntry{key: key, pathnameHash: pathnameHashFromScopeKey(key)})
	}
	return entries, nil
}

// scanSelector collects only the pathname hashes a selector matches.
func scanSelector(txn *badger.Txn, sel index.Selector) ([]string, error) {
	entries, err := scanSelectorKeys(txn, sel)
	if err != nil {
		return nil, err
	}
	hashes := make([]string, len(entries))
	for i, e := range entries {
		hashes[i] = e.pathnameHash
	}
	return hashes, nil
}

var _ index.Index = (*BadgerIndex)(nil)
