package propagation

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/star/starlisten/internal/metrics"
	"github.com/star/starlisten/internal/tle"
)

// scanJob is a unit of work for the worker pool.
type scanJob struct {
	entry tle.TLEEntry
	prop  *SGP4Propagator // nil when no cached propagator exists
}

// WorkerPool runs independent per-satellite scans on a fixed number of
// goroutines. Each scan is itself single-threaded; listeners and iterators
// are never shared between workers.
type WorkerPool struct {
	workers int
	logger  *slog.Logger
}

// NewWorkerPool creates a worker pool with the given number of workers.
func NewWorkerPool(workers int, logger *slog.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		workers: workers,
		logger:  logger,
	}
}

// Workers returns the pool size.
func (wp *WorkerPool) Workers() int { return wp.workers }

// ScanBatch runs fn over every entry. props supplies preinitialized
// propagators keyed by NORAD ID and may be nil. Failed satellites are logged
// and reported in their ScanResult; results are ordered by NORAD ID.
func (wp *WorkerPool) ScanBatch(ctx context.Context, entries []tle.TLEEntry, props map[int]*SGP4Propagator, fn ScanFunc) ([]ScanResult, int, int) {
	if len(entries) == 0 {
		return nil, 0, 0
	}

	start := time.Now()
	jobs := make(chan scanJob, wp.workers*2)
	results := make(chan ScanResult, wp.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				result := scanSingle(ctx, job, fn)
				select {
				case results <- result:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, entry := range entries {
			job := scanJob{entry: entry}
			if props != nil {
				job.prop = props[entry.NORADID]
			}
			select {
			case jobs <- job:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]ScanResult, 0, len(entries))
	var successCount, errorCount int

	for result := range results {
		if result.Err != nil {
			errorCount++
			wp.logger.Warn("scan failed",
				"norad_id", result.NORADID,
				"error", result.Err,
			)
		} else {
			successCount++
		}
		out = append(out, result)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].NORADID < out[j].NORADID })
	metrics.RecordBatch(time.Since(start), successCount, errorCount)

	return out, successCount, errorCount
}

func scanSingle(ctx context.Context, job scanJob, fn ScanFunc) ScanResult {
	res := ScanResult{NORADID: job.entry.NORADID, Name: job.entry.Name}

	prop := job.prop
	if prop == nil {
		var err error
		prop, err = NewSGP4Propagator(job.entry.Line1, job.entry.Line2, job.entry.NORADID)
		if err != nil {
			res.Err = err
			return res
		}
	}

	res.Events, res.Err = fn(ctx, prop)
	return res
}
