// Package scoring defines the boundary to the remote scoring service and the
// executor that normalizes a single call into a uniform result record.
//
// The runner does not know or care about the wire format of the service; it
// only needs something that can score one row and fail. Three endpoint
// implementations are provided: HTTP (bearer-authenticated REST call), NATS
// (request-reply over a subject) and Script (a local JavaScript function for
// simulation and testing).
package scoring

import "context"

// Row is one unit of input work: an opaque mapping from parameter name to
// value, identified only by its position in the submitted batch.
type Row = map[string]interface{}

// Output is the normalized response payload for a successfully scored row
type Output = map[string]interface{}

// Endpoint executes a single row's input against a remote operation.
// Completion order across concurrent calls is unspecified; implementations
// must be safe for concurrent use.
type Endpoint interface {
	Score(ctx context.Context, row Row) (Output, error)
}

// EndpointFunc adapts a plain function to the Endpoint interface
type EndpointFunc func(ctx context.Context, row Row) (Output, error)

// Score implements Endpoint
func (f EndpointFunc) Score(ctx context.Context, row Row) (Output, error) {
	return f(ctx, row)
}
