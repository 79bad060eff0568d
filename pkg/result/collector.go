package result

import (
	"fmt"
	"sort"
	"sync"

	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

// ProgressFunc is invoked after each collected result with a sorted snapshot
// of everything collected so far. It is decoupled from any rendering concern;
// typical consumers re-render a progress table or push an update to a UI.
type ProgressFunc func(partial []Result)

// Collector accumulates results as workers complete, keyed by row index.
// Workers never target the same key, so the store is write-once per key;
// mu guards the map structure against concurrent writers and snapshot
// readers. progressMu serializes snapshot build plus hook delivery, so an
// observer always receives snapshots in growing order even when workers
// finish back to back.
type Collector struct {
	mu         sync.Mutex
	progressMu sync.Mutex
	results    map[int]Result
	onProgress ProgressFunc
}

// NewCollector creates an empty collector. onProgress is optional; pass nil
// when no progressive view is needed.
func NewCollector(onProgress ProgressFunc) *Collector {
	return &Collector{
		results:    make(map[int]Result),
		onProgress: onProgress,
	}
}

// Collect stores a completed result. A duplicate row index means the cursor
// discipline in the worker pool is broken and is returned as a consistency
// failure, never silently overwritten.
//
// Each progressive view replaces the previous one wholesale, so snapshot
// build and delivery are held together under progressMu; a slow observer
// delays the next delivery rather than receiving snapshots out of order.
func (c *Collector) Collect(res Result) error {
	if c.onProgress != nil {
		c.progressMu.Lock()
		defer c.progressMu.Unlock()
	}

	c.mu.Lock()
	if _, exists := c.results[res.RowIndex]; exists {
		c.mu.Unlock()
		return fmt.Errorf("%w: %d", sdkerrors.ErrDuplicateRow, res.RowIndex)
	}
	c.results[res.RowIndex] = res

	var snapshot []Result
	if c.onProgress != nil {
		snapshot = c.snapshotLocked()
	}
	c.mu.Unlock()

	if c.onProgress != nil {
		c.onProgress(snapshot)
	}
	return nil
}

// LiveSnapshot returns everything collected so far, sorted ascending by row
// index. Safe to call at any time, including mid-batch; it never blocks on
// outstanding work.
func (c *Collector) LiveSnapshot() []Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Count returns the number of results collected so far
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

// Finalize returns the complete ordered result list. It is only valid once
// all workers have finished; a count mismatch against the submitted row
// count indicates a bug in the worker pool and is returned as a consistency
// failure.
func (c *Collector) Finalize(expected int) ([]Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.results) != expected {
		return nil, fmt.Errorf("%w: got %d, want %d", sdkerrors.ErrResultCountMismatch, len(c.results), expected)
	}
	return c.snapshotLocked(), nil
}

// snapshotLocked copies and sorts the current results. Caller must hold mu.
func (c *Collector) snapshotLocked() []Result {
	snapshot := make([]Result, 0, len(c.results))
	for _, res := range c.results {
		snapshot = append(snapshot, res)
	}
	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].RowIndex < snapshot[j].RowIndex
	})
	return snapshot
}
