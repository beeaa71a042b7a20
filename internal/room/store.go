package room

import (
	"context"
)

// Store is the single storage capability the rest of the app talks to.
// PostgresStore, MemoryStore and the remote client all satisfy it with the
// same validation and error contract
type Store interface {
	CreateRoom(ctx context.Context, videoURL string) (*Room, error)
	GetRoom(ctx context.Context, roomID string) (*Room, error)

	AddParticipant(ctx context.Context, roomID, name string) (*Participant, error)
	CountParticipants(ctx context.Context, roomID string) (int, error)

	AppendMessage(ctx context.Context, roomID, senderName, body string) (*Message, error)
	// ListMessages returns the most recent messages, oldest first, at most limit
	ListMessages(ctx context.Context, roomID string, limit int) ([]*Message, error)

	UpsertVideoState(ctx context.Context, roomID string, position float64, playing bool) (*VideoState, error)
	GetVideoState(ctx context.Context, roomID string) (*VideoState, error)
}
