package domain

import "encoding/json"

// MessageType represents the type of presence message
type MessageType string

const (
	// Client -> server
	MessageTypeOnline  MessageType = "online"
	MessageTypeOffline MessageType = "offline"
	MessageTypePing    MessageType = "ping"

	// Server -> client
	MessageTypeStatusUpdate MessageType = "statusUpdate"
	MessageTypeError        MessageType = "error"
)

// Message is the single wire frame exchanged with clients, JSON encoded,
// one object per frame. Fields beyond Type are populated per message type.
type Message struct {
	Type     MessageType `json:"type"`
	UserID   string      `json:"userId,omitempty"`
	IsOnline *bool       `json:"isOnline,omitempty"`
	Message  string      `json:"message,omitempty"`
}

// NewStatusUpdate builds the broadcast frame announcing a user's presence change.
func NewStatusUpdate(userID string, online bool) Message {
	return Message{
		Type:     MessageTypeStatusUpdate,
		UserID:   userID,
		IsOnline: &online,
	}
}

// NewErrorMessage builds the error frame sent back to a single client.
func NewErrorMessage(text string) Message {
	return Message{
		Type:    MessageTypeError,
		Message: text,
	}
}

// Encode marshals the message for the wire.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}
