package websocket

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rx3lixir/watchparty/internal/changefeed"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	MessageTypeConnected MessageType = "connected"
	MessageTypeChange    MessageType = "change"
	MessageTypeError     MessageType = "error"
)

// Message is the base structure for all WebSocket messages
type Message struct {
	Type      MessageType `json:"type"`
	Data      any         `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

// ConnectedData confirms successful connection
type ConnectedData struct {
	RoomID   string             `json:"room_id"`
	ClientID uuid.UUID          `json:"client_id"`
	Tables   []changefeed.Table `json:"tables"`
}

// ErrorData represents an error message
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewConnected creates a connection confirmation message
func NewConnected(roomID string, clientID uuid.UUID, tables []changefeed.Table) *Message {
	return &Message{
		Type: MessageTypeConnected,
		Data: ConnectedData{
			RoomID:   roomID,
			ClientID: clientID,
			Tables:   tables,
		},
		Timestamp: time.Now().Unix(),
	}
}

// NewChange wraps a row change
func NewChange(e changefeed.Event) *Message {
	return &Message{
		Type:      MessageTypeChange,
		Data:      e,
		Timestamp: time.Now().Unix(),
	}
}

// NewError creates an error message
func NewError(code, message string) *Message {
	return &Message{
		Type: MessageTypeError,
		Data: ErrorData{
			Code:    code,
			Message: message,
		},
		Timestamp: time.Now().Unix(),
	}
}

// IncomingMessage is a frame as read by a subscriber. Data stays raw
// until the type is known
type IncomingMessage struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}
