// Package reporting forwards assertion-level failures to Sentry.
// Row-level scoring failures are business outcomes and are never reported
// here; only broken internal invariants (duplicate row index, result count
// mismatch) reach Sentry.
package reporting

import (
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

// Config holds Sentry reporting configuration
type Config struct {
	DSN         string
	Environment string
	Release     string
}

// Reporter captures consistency failures. A nil Reporter is valid and
// drops everything, so callers never need to branch.
type Reporter struct {
	hub    *sentry.Hub
	logger *zap.Logger
}

// Setup initializes the Sentry client and returns a reporter.
// Returns an error when the DSN is rejected by the SDK.
func Setup(config Config, logger *zap.Logger) (*Reporter, error) {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         config.DSN,
		Environment: config.Environment,
		Release:     config.Release,
	})
	if err != nil {
		return nil, err
	}

	hub := sentry.NewHub(client, sentry.NewScope())
	logger.Info("Sentry reporting enabled",
		zap.String("environment", config.Environment))

	return &Reporter{hub: hub, logger: logger}, nil
}

// CaptureConsistencyFailure reports a broken batch invariant tagged with the
// batch ID
func (r *Reporter) CaptureConsistencyFailure(batchID string, err error) {
	if r == nil || err == nil {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("batch_id", batchID)
		scope.SetLevel(sentry.LevelFatal)
		r.hub.CaptureException(err)
	})
	r.logger.Error("Consistency failure reported",
		zap.String("batchID", batchID),
		zap.Error(err))
}

// Flush waits for buffered events to be delivered
func (r *Reporter) Flush(timeout time.Duration) {
	if r == nil {
		return
	}
	r.hub.Flush(timeout)
}
