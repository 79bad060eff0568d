// Package result defines the per-row outcome record produced by a batch run
// and the collector that accumulates records as workers finish.
package result

// Result represents the outcome of scoring a single row.
// Exactly one of Output and Error is populated once the result is finalized:
// a successful score carries the normalized response payload, a failed one
// carries a caller-facing description of what went wrong.
type Result struct {
	// RowIndex is the 0-based position of the row in the submitted batch.
	// It is the sole ordering key for results.
	RowIndex int `json:"rowIndex"`

	// Output is the normalized response payload on success, nil on failure
	Output map[string]interface{} `json:"output,omitempty"`

	// Error is a human-readable failure description, empty on success
	Error string `json:"error,omitempty"`

	// ExecutionTimeMs is the wall-clock duration of the single endpoint call,
	// captured even when the call failed. It does not include time spent
	// waiting for a worker slot.
	ExecutionTimeMs float64 `json:"executionTimeMs"`
}

// Succeeded reports whether the row was scored successfully
func (r Result) Succeeded() bool {
	return r.Error == ""
}
