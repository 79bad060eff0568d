package scoring

import (
	"context"
	"time"

	"github.com/wehubfusion/Daedalus/pkg/result"
	"go.uber.org/zap"
)

// Executor wraps one endpoint call with timing and success/error capture.
// It never returns an error: a failed call is represented as a result with
// the Error field populated, because the worker pool contract forbids
// per-row failures from propagating out of the worker loop.
type Executor struct {
	endpoint Endpoint
	logger   *zap.Logger
}

// NewExecutor creates an executor for the given endpoint.
// If logger is nil a production logger is used.
func NewExecutor(endpoint Endpoint, logger *zap.Logger) *Executor {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Executor{
		endpoint: endpoint,
		logger:   logger,
	}
}

// Execute scores a single row and normalizes the outcome.
// The timestamps bracket only the endpoint call itself, so ExecutionTimeMs
// measures the remote operation, not the row's total time in the system.
func (e *Executor) Execute(ctx context.Context, rowIndex int, row Row) result.Result {
	start := time.Now()
	output, err := e.endpoint.Score(ctx, row)
	elapsed := time.Since(start)

	res := result.Result{
		RowIndex:        rowIndex,
		ExecutionTimeMs: float64(elapsed.Nanoseconds()) / 1e6,
	}

	if err != nil {
		res.Error = err.Error()
		e.logger.Debug("Row scoring failed",
			zap.Int("rowIndex", rowIndex),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return res
	}

	res.Output = output
	e.logger.Debug("Row scored",
		zap.Int("rowIndex", rowIndex),
		zap.Duration("elapsed", elapsed))
	return res
}
