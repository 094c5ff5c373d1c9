package tle

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/star/starlisten/internal/metrics"
)

// Store provides thread-safe access to the current TLE dataset.
type Store struct {
	dataset atomic.Pointer[TLEDataset]
	mu      sync.Mutex // serializes refreshes
}

// NewStore creates a new empty Store.
func NewStore() *Store {
	return &Store{}
}

// Get returns the current dataset, or nil if none has been loaded.
func (s *Store) Get() *TLEDataset {
	return s.dataset.Load()
}

// Set atomically replaces the current dataset.
func (s *Store) Set(ds *TLEDataset) {
	s.dataset.Store(ds)
	metrics.SetTLEDatasetCount(len(ds.Satellites))
}

// AgeSeconds returns the age of the current dataset in seconds.
// Returns -1 if no dataset is loaded.
func (s *Store) AgeSeconds() float64 {
	ds := s.dataset.Load()
	if ds == nil {
		return -1
	}
	return time.Since(ds.FetchedAt).Seconds()
}

// Refresh fetches, parses and installs a new dataset, writing the raw data
// to cache when one is given. Concurrent refreshes run one at a time.
func (s *Store) Refresh(ctx context.Context, f *Fetcher, cache *Cache, logger *slog.Logger) (*TLEDataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := f.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := Parse(bytes.NewReader(data), logger)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no valid TLE entries from %s", f.SourceURL())
	}

	now := time.Now().UTC()
	if cache != nil {
		if err := cache.Write(data, now); err != nil {
			logger.Warn("failed to cache TLE data", "error", err)
		}
	}

	ds := NewDataset(f.SourceURL(), now, entries)
	s.Set(ds)
	logger.Info("TLE dataset refreshed", "source", ds.Source, "count", len(entries),
		"epoch_min", ds.EpochRange.Min.Format(time.RFC3339), "epoch_max", ds.EpochRange.Max.Format(time.RFC3339))
	return ds, nil
}
