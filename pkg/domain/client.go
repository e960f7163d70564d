package domain

import (
	"context"
	"time"
)

// Client represents a connected client interface
type Client interface {
	// ID returns the opaque per-connection handle
	ID() string

	// Send sends a message to the client
	Send(ctx context.Context, message []byte) error

	// Close closes the client connection with a close code and reason
	Close(code int, reason string) error

	// Context is done once the connection is gone
	Context() context.Context
}

// ClientInfo is the identity a connection gains once it announces itself.
// A ClientInfo exists for a connection iff that connection has sent an
// "online" frame and has not yet been reaped.
type ClientInfo struct {
	UserID   string
	LastPing time.Time
}
