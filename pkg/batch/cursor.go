package batch

import "sync/atomic"

// cursor is the single shared claim counter for a batch. Each worker
// atomically claims the next unclaimed row index until the row set is
// exhausted, so workers with faster completions naturally claim more rows
// than slower ones. A fixed row-per-worker partition would leave fast
// workers idle while slow workers still process their static shares.
type cursor struct {
	next  atomic.Int64
	limit int64
}

func newCursor(rowCount int) *cursor {
	return &cursor{limit: int64(rowCount)}
}

// Claim atomically claims the next row index. The second return value is
// false once every index in [0, rowCount) has been handed out.
func (c *cursor) Claim() (int, bool) {
	idx := c.next.Add(1) - 1
	if idx >= c.limit {
		return 0, false
	}
	return int(idx), true
}
