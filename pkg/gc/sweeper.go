// Package gc provides the periodic trash sweeper.
//
// Deleted content is never removed immediately: unreferenced blobs are moved
// to a trash area and only purged once they have sat there longer than the
// retention window. The sweeper is the component that finally reclaims the
// space. It can also run an orphan scan, moving active blobs that no record
// references into trash, which catches content stranded by crashes between
// a pool write and its record insert.
package gc

import (
	"context"
	"fmt"
	"time"

	"github.com/poolfs/poolfs/internal/logger"
	"github.com/poolfs/poolfs/internal/ratelimiter"
	"github.com/poolfs/poolfs/pkg/index"
	"github.com/poolfs/poolfs/pkg/pool"
)

// Sweeper periodically purges expired trash and optionally sweeps orphaned
// active blobs into trash.
//
// Thread Safety: Safe for concurrent use.
type Sweeper struct {
	pool    pool.Pool
	index   index.Index
	config  Config
	limiter *ratelimiter.Limiter
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Config contains configuration for the trash sweeper.
type Config struct {
	// Enabled controls whether sweeping is active (default: true when
	// constructed through pkg/config).
	Enabled bool

	// Interval is how often a sweep runs (default: 24h).
	Interval time.Duration

	// Retention is how long a trashed blob stays recoverable before it
	// is purged (default: 7 days).
	Retention time.Duration

	// OrphanScan also moves active blobs with no index references into
	// trash. Requires a pool implementing pool.Enumerable.
	OrphanScan bool

	// DryRun logs what a sweep would purge without purging it.
	DryRun bool

	// OpsPerSecond throttles pool purge and trash operations during a
	// sweep so maintenance does not starve regular traffic. 0 means
	// unlimited.
	OpsPerSecond uint
}

// Stats describes one sweep run.
type Stats struct {
	StartTime time.Time
	EndTime   time.Time

	// TrashedCount is how many trash entries were inspected.
	TrashedCount int

	// PurgedCount is how many expired blobs were purged (or would have
	// been, in dry-run mode).
	PurgedCount int

	// PurgedBytes is the total size of the purged blobs.
	PurgedBytes int64

	// OrphanedCount is how many active blobs the orphan scan moved to
	// trash.
	OrphanedCount int

	// FailedCount is how many purge or trash moves failed.
	FailedCount int
}

// Summary returns a one-line human-readable account of the run.
func (s *Stats) Summary() string {
	return fmt.Sprintf("inspected=%d purged=%d bytes=%d orphaned=%d failed=%d duration=%s",
		s.TrashedCount, s.PurgedCount, s.PurgedBytes, s.OrphanedCount, s.FailedCount,
		s.EndTime.Sub(s.StartTime).Round(time.Millisecond))
}

// NewSweeper creates a sweeper over a pool and an index.
//
// The sweeper is initialized but not started; call Start to begin periodic
// sweeps. An OrphanScan config over a pool that cannot enumerate active
// blobs is rejected here rather than failing every run.
func NewSweeper(p pool.Pool, idx index.Index, config Config) (*Sweeper, error) {
	if config.OrphanScan {
		if _, ok := p.(pool.Enumerable); !ok {
			return nil, fmt.Errorf("pool does not support active blob enumeration required by the orphan scan")
		}
	}
	if config.Interval == 0 {
		config.Interval = 24 * time.Hour
	}
	if config.Retention == 0 {
		config.Retention = 7 * 24 * time.Hour
	}
	return &Sweeper{
		pool:    p,
		index:   idx,
		config:  config,
		limiter: ratelimiter.New(config.OpsPerSecond, config.OpsPerSecond),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Start begins background sweeping. A disabled sweeper is a no-op.
func (s *Sweeper) Start() {
	if !s.config.Enabled {
		logger.Info("Trash sweeping disabled")
		return
	}
	logger.Info("Starting trash sweeper: interval=%s retention=%s orphan_scan=%v dry_run=%v",
		s.config.Interval, s.config.Retention, s.config.OrphanScan, s.config.DryRun)
	go s.worker()
}

// Stop signals the worker to stop and waits for any in-progress sweep,
// bounded by the context.
func (s *Sweeper) Stop(ctx context.Context) error {
	if !s.config.Enabled {
		return nil
	}
	logger.Info("Stopping trash sweeper...")
	close(s.stopCh)
	select {
	case <-s.doneCh:
		logger.Info("Trash sweeper stopped")
		return nil
	case <-ctx.Done():
		logger.Warn("Trash sweeper shutdown timeout")
		return ctx.Err()
	}
}

// RunNow triggers an immediate sweep and blocks until it completes.
func (s *Sweeper) RunNow(ctx context.Context) (*Stats, error) {
	logger.Info("Running trash sweep (manual trigger)...")
	return s.sweep(ctx)
}

// worker is the background goroutine running periodic sweeps.
func (s *Sweeper) worker() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			stats, err := s.sweep(ctx)
			cancel()

			if err != nil {
				logger.Error("Trash sweep failed: %v", err)
			} else {
				logger.Info("Trash sweep completed: %s", stats.Summary())
			}
		case <-s.stopCh:
			return
		}
	}
}

// sweep performs one run: purge expired trash, then optionally move
// orphaned active blobs to trash. Individual blob failures are logged and
// counted, never fatal to the run.
func (s *Sweeper) sweep(ctx context.Context) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	defer func() { stats.EndTime = time.Now() }()

	if err := s.purgeExpired(ctx, stats); err != nil {
		return stats, err
	}
	if s.config.OrphanScan {
		if err := s.sweepOrphans(ctx, stats); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func (s *Sweeper) purgeExpired(ctx context.Context, stats *Stats) error {
	entries, err := s.pool.ListTrash(ctx)
	if err != nil {
		return fmt.Errorf("failed to list trash: %w", err)
	}
	stats.TrashedCount = len(entries)

	cutoff := time.Now().Add(-s.config.Retention)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.TrashedAt.After(cutoff) {
			continue
		}
		if s.config.DryRun {
			logger.Info("Sweep: would purge %s (%d bytes, trashed %s)",
				entry.ContentHash, entry.Size, entry.TrashedAt.Format(time.RFC3339))
			stats.PurgedCount++
			stats.PurgedBytes += entry.Size
			continue
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := s.pool.PurgeTrash(ctx, entry.ContentHash); err != nil {
			logger.Warn("Sweep: failed to purge %s: %v", entry.ContentHash, err)
			stats.FailedCount++
			continue
		}
		stats.PurgedCount++
		stats.PurgedBytes += entry.Size
	}
	return nil
}

// sweepOrphans moves active blobs with no index references into trash.
// They then age through the normal retention window, so a reference check
// gone wrong costs a recovery, not the content.
func (s *Sweeper) sweepOrphans(ctx context.Context, stats *Stats) error {
	enum := s.pool.(pool.Enumerable)

	referenced, err := s.index.ListContentHashes(ctx)
	if err != nil {
		return fmt.Errorf("failed to list referenced content: %w", err)
	}
	referencedSet := make(map[string]struct{}, len(referenced))
	for _, hash := range referenced {
		referencedSet[hash] = struct{}{}
	}

	active, err := enum.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active blobs: %w", err)
	}

	for _, hash := range active {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, ok := referencedSet[hash]; ok {
			continue
		}
		if s.config.DryRun {
			logger.Info("Sweep: would trash orphaned blob %s", hash)
			stats.OrphanedCount++
			continue
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := s.pool.MoveToTrash(ctx, hash); err != nil {
			logger.Warn("Sweep: failed to trash orphaned blob %s: %v", hash, err)
			stats.FailedCount++
			continue
		}
		logger.Debug("Sweep: trashed orphaned blob %s", hash)
		stats.OrphanedCount++
	}
	return nil
}
