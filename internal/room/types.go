package room

import (
	"time"

	"github.com/google/uuid"
)

// SystemSender is the reserved sender name for join/leave announcements
const SystemSender = "System"

type Room struct {
	ID        string    `json:"id"`
	VideoURL  string    `json:"video_url"`
	CreatedAt time.Time `json:"created_at"`
}

type Participant struct {
	ID       uuid.UUID `json:"id"`
	RoomID   string    `json:"room_id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joined_at"`
}

type Message struct {
	ID         uuid.UUID `json:"id"`
	RoomID     string    `json:"room_id"`
	SenderName string    `json:"sender_name"`
	Body       string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}

// IsSystem reports whether the message is a join/leave announcement
func (m *Message) IsSystem() bool {
	return m.SenderName == SystemSender
}

// VideoState is the canonical shared playback state of a room.
// One row per room, overwritten on every change
type VideoState struct {
	RoomID    string    `json:"room_id"`
	Position  float64   `json:"position"`
	IsPlaying bool      `json:"is_playing"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CreateRoomRequest struct {
	VideoURL string `json:"video_url"`
}

type RoomResponse struct {
	Room     Room   `json:"room"`
	VideoID  string `json:"video_id"`
	ShareURL string `json:"share_url"`
}

type AddParticipantRequest struct {
	Name string `json:"name"`
}

type LeaveRequest struct {
	Name string `json:"name"`
}

type CountResponse struct {
	Count int `json:"count"`
}

type SendMessageRequest struct {
	SenderName string `json:"sender_name"`
	Message    string `json:"message"`
}

type GetMessagesResponse struct {
	Messages []Message `json:"messages"`
	Count    int       `json:"count"`
}

type UpdateVideoStateRequest struct {
	Position  float64 `json:"position"`
	IsPlaying bool    `json:"is_playing"`
}
