// Package batch runs a set of independent rows against a rate-limited
// scoring endpoint with a caller-chosen concurrency ceiling, preserving
// per-row result identity, isolating per-row failures and producing
// aggregate performance statistics for reporting and export.
package batch

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wehubfusion/Daedalus/internal/reporting"
	internaltracing "github.com/wehubfusion/Daedalus/internal/tracing"
	"github.com/wehubfusion/Daedalus/pkg/concurrency"
	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/result"
	"github.com/wehubfusion/Daedalus/pkg/scoring"
	"github.com/wehubfusion/Daedalus/pkg/stats"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options holds optional runner configuration.
// All fields may be left zero.
type Options struct {
	// OnProgress is invoked after each collected result with a sorted
	// snapshot of the batch so far, for progressive display
	OnProgress result.ProgressFunc

	// Tracing enables OpenTelemetry spans around the batch and each row
	Tracing *TracingConfig

	// Reporting enables Sentry capture of internal consistency failures
	Reporting *ReportingConfig

	// BreakerThreshold is the consecutive-failure count that opens the
	// endpoint circuit breaker. 0 leaves the breaker disabled, so every
	// row reaches the endpoint no matter how many fail.
	BreakerThreshold int64
}

// Report is the outcome of one completed batch
type Report struct {
	// BatchID uniquely identifies this run in logs, spans and export paths
	BatchID string

	// Results holds exactly one entry per submitted row, ordered by row index
	Results []result.Result

	// Statistics are the aggregate metrics over Results
	Statistics stats.BatchStatistics

	// PeakConcurrent is the highest number of simultaneously in-flight
	// scoring calls observed during the run
	PeakConcurrent int64
}

// Runner executes batches against a scoring endpoint.
// A Runner is reusable across batches; each Run is an independent batch
// with its own cursor, collector and limiter.
type Runner struct {
	executor         *scoring.Executor
	logger           *zap.Logger
	onProgress       result.ProgressFunc
	breakerThreshold int64
	tracer           trace.Tracer
	tracingShutdown  func(context.Context) error
	reporter         *reporting.Reporter
}

// NewRunner creates a runner for the given endpoint.
// The logger is required. options may be nil; tracing and Sentry reporting
// are only set up when configured, and a tracing setup failure downgrades
// to a warning rather than failing construction.
func NewRunner(endpoint scoring.Endpoint, logger *zap.Logger, options *Options) (*Runner, error) {
	if endpoint == nil {
		return nil, sdkerrors.ErrNilEndpoint
	}
	if logger == nil {
		return nil, stderrors.New("logger cannot be nil")
	}
	if options == nil {
		options = &Options{}
	}

	runner := &Runner{
		executor:         scoring.NewExecutor(endpoint, logger),
		logger:           logger,
		onProgress:       options.OnProgress,
		breakerThreshold: options.BreakerThreshold,
		tracer:           otel.Tracer("daedalus/batch"),
	}

	if options.Tracing != nil {
		shutdown, err := internaltracing.Setup(context.Background(), options.Tracing.toInternalConfig(), logger)
		if err != nil {
			logger.Warn("Failed to setup tracing, continuing without tracing", zap.Error(err))
		} else {
			runner.tracingShutdown = shutdown
			logger.Info("Tracing setup complete",
				zap.String("service", options.Tracing.ServiceName),
				zap.String("endpoint", options.Tracing.OTLPEndpoint))
		}
	}

	if options.Reporting != nil {
		reporter, err := reporting.Setup(options.Reporting.toInternalConfig(), logger)
		if err != nil {
			logger.Warn("Failed to setup Sentry reporting, continuing without it", zap.Error(err))
		} else {
			runner.reporter = reporter
		}
	}

	return runner, nil
}

// Close shuts down tracing and flushes pending Sentry events.
// Call it when the runner is no longer needed.
func (r *Runner) Close() error {
	r.reporter.Flush(2 * time.Second)
	if r.tracingShutdown != nil {
		if err := internaltracing.Shutdown(r.tracingShutdown, r.logger); err != nil {
			return err
		}
		r.logger.Info("Tracing shutdown complete")
	}
	return nil
}

// Run executes one batch and blocks until every row has produced a result.
//
// Invalid arguments (empty row set, non-positive maxConcurrent) are rejected
// synchronously before any work starts. Per-row scoring failures never abort
// the batch; they are captured in the corresponding Result and counted in
// the statistics. The only errors Run returns after work has started are
// internal consistency failures, which indicate a bug in the cursor or
// collector logic.
func (r *Runner) Run(ctx context.Context, rows []scoring.Row, maxConcurrent int) (*Report, error) {
	if len(rows) == 0 {
		return nil, sdkerrors.ErrNoRows
	}
	if maxConcurrent <= 0 {
		return nil, fmt.Errorf("%w: got %d", sdkerrors.ErrInvalidConcurrency, maxConcurrent)
	}

	workers := maxConcurrent
	if workers > len(rows) {
		workers = len(rows)
	}

	batchID := uuid.NewString()
	collector := result.NewCollector(r.onProgress)
	cur := newCursor(len(rows))

	var limiter *concurrency.Limiter
	if r.breakerThreshold > 0 {
		limiter = concurrency.NewLimiterWithCircuitBreaker(workers,
			concurrency.NewCircuitBreaker(r.breakerThreshold, 30*time.Second))
	} else {
		limiter = concurrency.NewLimiter(workers)
	}

	ctx, span := r.tracer.Start(ctx, "batch.Run",
		trace.WithAttributes(
			attribute.String("batch.id", batchID),
			attribute.Int("batch.rows", len(rows)),
			attribute.Int("batch.workers", workers),
		))
	defer span.End()

	r.logger.Info("Batch started",
		zap.String("batchID", batchID),
		zap.Int("rows", len(rows)),
		zap.Int("requestedConcurrency", maxConcurrent),
		zap.Int("workers", workers))

	start := time.Now()

	group, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		workerID := i
		group.Go(func() error {
			return r.worker(groupCtx, workerID, batchID, rows, cur, collector, limiter)
		})
	}

	if err := group.Wait(); err != nil {
		return nil, r.consistencyFailure(span, batchID, err)
	}

	totalRuntime := time.Since(start)

	results, err := collector.Finalize(len(rows))
	if err != nil {
		return nil, r.consistencyFailure(span, batchID, err)
	}

	statistics := stats.Aggregate(results)
	statistics.TotalRuntimeMs = float64(totalRuntime.Nanoseconds()) / 1e6

	metrics := limiter.GetMetrics()
	span.SetAttributes(
		attribute.Int64("batch.duration_ms", totalRuntime.Milliseconds()),
		attribute.Int("batch.success_count", statistics.SuccessCount),
		attribute.Int("batch.error_count", statistics.ErrorCount),
		attribute.Int64("batch.peak_concurrent", metrics.PeakConcurrent),
	)
	span.SetStatus(codes.Ok, "Batch completed")

	r.logger.Info("Batch completed",
		zap.String("batchID", batchID),
		zap.Duration("totalRuntime", totalRuntime),
		zap.Int("successCount", statistics.SuccessCount),
		zap.Int("errorCount", statistics.ErrorCount),
		zap.Float64("successRatePercent", statistics.SuccessRatePercent),
		zap.Int64("peakConcurrent", metrics.PeakConcurrent))

	return &Report{
		BatchID:        batchID,
		Results:        results,
		Statistics:     statistics,
		PeakConcurrent: metrics.PeakConcurrent,
	}, nil
}

// worker repeatedly claims the next row index and scores it until the
// cursor is exhausted. Scoring failures land in the collected result; the
// only error a worker can return is a consistency failure from the
// collector.
func (r *Runner) worker(ctx context.Context, workerID int, batchID string, rows []scoring.Row, cur *cursor, collector *result.Collector, limiter *concurrency.Limiter) error {
	r.logger.Debug("Worker started", zap.Int("workerID", workerID), zap.String("batchID", batchID))
	defer r.logger.Debug("Worker stopped", zap.Int("workerID", workerID), zap.String("batchID", batchID))

	for {
		idx, ok := cur.Claim()
		if !ok {
			return nil
		}

		res := r.scoreRow(ctx, workerID, idx, rows[idx], limiter)
		if err := collector.Collect(res); err != nil {
			return err
		}
	}
}

// scoreRow executes a single claimed row under the limiter and wraps the
// call in a span. It always produces a result: when the limiter refuses the
// slot (open circuit, cancelled context) the refusal becomes a row-level
// failure so the batch still yields one result per row.
func (r *Runner) scoreRow(ctx context.Context, workerID, idx int, row scoring.Row, limiter *concurrency.Limiter) result.Result {
	ctx, span := r.tracer.Start(ctx, "batch.scoreRow",
		trace.WithAttributes(
			attribute.Int("worker.id", workerID),
			attribute.Int("row.index", idx),
		))
	defer span.End()

	var res result.Result
	executed := false
	callErr := limiter.GoSync(ctx, func() error {
		executed = true
		res = r.executor.Execute(ctx, idx, row)
		if !res.Succeeded() {
			return stderrors.New(res.Error)
		}
		return nil
	})

	if !executed {
		// Slot was never granted; synthesize the failure result
		res = result.Result{RowIndex: idx, Error: callErr.Error()}
	}

	span.SetAttributes(attribute.Float64("row.execution_time_ms", res.ExecutionTimeMs))
	if !res.Succeeded() {
		span.SetStatus(codes.Error, res.Error)
	} else {
		span.SetStatus(codes.Ok, "Row scored")
	}
	return res
}

// consistencyFailure records a broken invariant on the span, reports it to
// Sentry when configured and returns it to the caller
func (r *Runner) consistencyFailure(span trace.Span, batchID string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	r.logger.Error("Batch aborted on consistency failure",
		zap.String("batchID", batchID),
		zap.Error(err))
	r.reporter.CaptureConsistencyFailure(batchID, err)
	return err
}
