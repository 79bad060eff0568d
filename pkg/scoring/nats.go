package scoring

import (
	"context"
	"encoding/json"
	"fmt"

	natsclient "github.com/nats-io/nats.go"
	internalnats "github.com/wehubfusion/Daedalus/internal/nats"
	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"go.uber.org/zap"
)

// NATSEndpoint scores rows over NATS request-reply: the row is published as
// JSON to a subject and the scoring service answers on the reply inbox with
// either an output payload or an error description.
type NATSEndpoint struct {
	conn    *natsclient.Conn
	subject string
	logger  *zap.Logger
}

// natsReply is the wire shape of a scoring service answer
type natsReply struct {
	Output map[string]interface{} `json:"output,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// NewNATSEndpoint creates a scoring endpoint over an existing connection
func NewNATSEndpoint(conn *natsclient.Conn, subject string, logger *zap.Logger) (*NATSEndpoint, error) {
	if conn == nil {
		return nil, sdkerrors.ErrNotConnected
	}
	if subject == "" {
		return nil, fmt.Errorf("scoring subject cannot be empty")
	}
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &NATSEndpoint{
		conn:    conn,
		subject: subject,
		logger:  logger,
	}, nil
}

// ConnectNATSEndpoint dials NATS and creates a scoring endpoint in one step
func ConnectNATSEndpoint(ctx context.Context, config *internalnats.ConnectionConfig, subject string, logger *zap.Logger) (*NATSEndpoint, error) {
	conn, err := internalnats.Connect(ctx, config, logger)
	if err != nil {
		return nil, err
	}
	return NewNATSEndpoint(conn, subject, logger)
}

// Score sends the row to the scoring subject and waits for the reply.
// The deadline comes from ctx; a service-side failure arrives as a reply
// with the error field set and is surfaced as a plain error.
func (e *NATSEndpoint) Score(ctx context.Context, row Row) (Output, error) {
	if !internalnats.IsConnected(e.conn) {
		return nil, sdkerrors.ErrNotConnected
	}

	data, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("failed to encode row: %w", err)
	}

	msg, err := e.conn.RequestWithContext(ctx, e.subject, data)
	if err != nil {
		return nil, fmt.Errorf("scoring request failed: %w", err)
	}

	var reply natsReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return nil, fmt.Errorf("malformed scoring reply: %w", err)
	}
	if reply.Error != "" {
		return nil, fmt.Errorf("scoring service error: %s", reply.Error)
	}
	return reply.Output, nil
}

// Close drains the underlying connection
func (e *NATSEndpoint) Close() error {
	return internalnats.Close(e.conn)
}
