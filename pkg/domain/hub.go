package domain

import "context"

// HubStats provides statistics about the hub
type HubStats struct {
	ConnectedClients int   `json:"connected_clients"`
	IdentifiedUsers  int   `json:"identified_users"`
	MessagesReceived int64 `json:"messages_received"`
	BroadcastsSent   int64 `json:"broadcasts_sent"`
	UptimeSeconds    int64 `json:"uptime_seconds"`
}

// Hub owns the connection registry and the broadcast loop.
type Hub interface {
	// Start starts the hub
	Start(ctx context.Context) error

	// Stop stops the hub gracefully, closing every open connection
	Stop() error

	// Register adds a new, still anonymous connection
	Register(client Client) error

	// Unregister handles a connection going away for any reason
	Unregister(clientID string) error

	// Inbound hands a raw frame from a connection to the hub
	Inbound(clientID string, frame []byte) error

	// Broadcast sends a message to all open connections
	Broadcast(message []byte) error

	// SetOffline marks a user offline by id, bypassing the wire protocol.
	// This is the path the logout endpoint uses.
	SetOffline(ctx context.Context, userID string) error

	// Stats returns a snapshot of hub statistics
	Stats() HubStats
}
