package propagation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/star/starlisten/internal/tle"
)

// ErrNoDataset is returned when no TLE dataset has been loaded.
var ErrNoDataset = errors.New("no TLE dataset loaded")

// ErrUnknownSatellite is returned for NORAD IDs missing from the dataset.
var ErrUnknownSatellite = errors.New("satellite not in dataset")

// sgp4Cache holds preinitialized SGP4 propagators for one TLE dataset.
// Immutable after construction; safe for concurrent reads.
type sgp4Cache struct {
	props     map[int]*SGP4Propagator
	entries   map[int]tle.TLEEntry
	fetchedAt time.Time
}

// Catalog hands out SGP4 trajectories for the current TLE dataset and runs
// scans across all of it on the worker pool.
type Catalog struct {
	store  *tle.Store
	pool   *WorkerPool
	logger *slog.Logger
	sgp4   atomic.Pointer[sgp4Cache]
	sgp4Mu sync.Mutex // serializes cache rebuilds
}

// NewCatalog creates a catalog over store.
func NewCatalog(store *tle.Store, config PropConfig, logger *slog.Logger) *Catalog {
	return &Catalog{
		store:  store,
		pool:   NewWorkerPool(config.Workers, logger),
		logger: logger,
	}
}

// cached returns the propagator cache for ds, rebuilding it if the dataset
// has changed (double-checked locking).
func (c *Catalog) cached(ds *tle.TLEDataset) *sgp4Cache {
	if sc := c.sgp4.Load(); sc != nil && sc.fetchedAt.Equal(ds.FetchedAt) {
		return sc
	}

	c.sgp4Mu.Lock()
	defer c.sgp4Mu.Unlock()

	if sc := c.sgp4.Load(); sc != nil && sc.fetchedAt.Equal(ds.FetchedAt) {
		return sc
	}

	sc := &sgp4Cache{
		props:     make(map[int]*SGP4Propagator, len(ds.Satellites)),
		entries:   make(map[int]tle.TLEEntry, len(ds.Satellites)),
		fetchedAt: ds.FetchedAt,
	}
	var skipped int
	for _, entry := range ds.Satellites {
		if _, ok := sc.props[entry.NORADID]; ok {
			continue
		}
		sp, err := NewSGP4Propagator(entry.Line1, entry.Line2, entry.NORADID)
		if err != nil {
			c.logger.Warn("sgp4 cache init failed", "norad_id", entry.NORADID, "error", err)
			skipped++
			continue
		}
		sc.props[entry.NORADID] = sp
		sc.entries[entry.NORADID] = entry
	}

	c.logger.Info("sgp4 propagator cache rebuilt",
		"cached", len(sc.props),
		"skipped", skipped,
		"dataset_fetched_at", ds.FetchedAt.UTC().Format(time.RFC3339),
	)
	c.sgp4.Store(sc)
	return sc
}

// Trajectory returns the SGP4 trajectory and TLE entry for noradID.
func (c *Catalog) Trajectory(noradID int) (*SGP4Propagator, tle.TLEEntry, error) {
	ds := c.store.Get()
	if ds == nil {
		return nil, tle.TLEEntry{}, ErrNoDataset
	}
	sc := c.cached(ds)
	prop, ok := sc.props[noradID]
	if !ok {
		return nil, tle.TLEEntry{}, fmt.Errorf("NORAD %d: %w", noradID, ErrUnknownSatellite)
	}
	return prop, sc.entries[noradID], nil
}

// ScanAll runs fn over every satellite of the current dataset.
func (c *Catalog) ScanAll(ctx context.Context, fn ScanFunc) ([]ScanResult, error) {
	ds := c.store.Get()
	if ds == nil {
		return nil, ErrNoDataset
	}
	return c.scan(ctx, ds, ds.Satellites, fn), ctx.Err()
}

// ScanIDs runs fn over the listed satellites. Duplicate IDs are scanned once;
// an ID missing from the dataset fails the whole call with ErrUnknownSatellite.
func (c *Catalog) ScanIDs(ctx context.Context, noradIDs []int, fn ScanFunc) ([]ScanResult, error) {
	ds := c.store.Get()
	if ds == nil {
		return nil, ErrNoDataset
	}
	entries := make([]tle.TLEEntry, 0, len(noradIDs))
	seen := make(map[int]bool, len(noradIDs))
	for _, id := range noradIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		entry, ok := ds.Find(id)
		if !ok {
			return nil, fmt.Errorf("NORAD %d: %w", id, ErrUnknownSatellite)
		}
		entries = append(entries, entry)
	}
	return c.scan(ctx, ds, entries, fn), ctx.Err()
}

func (c *Catalog) scan(ctx context.Context, ds *tle.TLEDataset, entries []tle.TLEEntry, fn ScanFunc) []ScanResult {
	sc := c.cached(ds)

	c.logger.Debug("batch scan",
		"satellite_count", len(entries),
		"workers", c.pool.Workers(),
	)

	start := time.Now()
	results, successCount, errorCount := c.pool.ScanBatch(ctx, entries, sc.props, fn)

	c.logger.Debug("batch scan complete",
		"success", successCount,
		"errors", errorCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return results
}
