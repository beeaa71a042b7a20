package room

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps everything in process memory. It backs offline/demo mode
// and tests, and mirrors PostgresStore's contract
type MemoryStore struct {
	mu           sync.RWMutex
	rooms        map[string]*Room
	participants map[string][]*Participant
	messages     map[string][]*Message
	videoStates  map[string]*VideoState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:        make(map[string]*Room),
		participants: make(map[string][]*Participant),
		messages:     make(map[string][]*Message),
		videoStates:  make(map[string]*VideoState),
	}
}

// CreateRoom creates a new room around a YouTube link
func (s *MemoryStore) CreateRoom(ctx context.Context, videoURL string) (*Room, error) {
	videoURL, err := validateVideoURL(videoURL)
	if err != nil {
		return nil, err
	}

	r := &Room{
		ID:        NewRoomID(),
		VideoURL:  videoURL,
		CreatedAt: now(),
	}

	s.mu.Lock()
	s.rooms[r.ID] = r
	s.mu.Unlock()

	out := *r
	return &out, nil
}

// GetRoom retrieves a room by its ID
func (s *MemoryStore) GetRoom(ctx context.Context, roomID string) (*Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	out := *r
	return &out, nil
}

// AddParticipant records a participant joining a room
func (s *MemoryStore) AddParticipant(ctx context.Context, roomID, name string) (*Participant, error) {
	name, err := validateName(name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[roomID]; !ok {
		return nil, ErrRoomNotFound
	}

	p := &Participant{
		ID:       uuid.New(),
		RoomID:   roomID,
		Name:     name,
		JoinedAt: now(),
	}
	s.participants[roomID] = append(s.participants[roomID], p)

	out := *p
	return &out, nil
}

// CountParticipants counts everyone who ever joined the room
func (s *MemoryStore) CountParticipants(ctx context.Context, roomID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.participants[roomID]), nil
}

// AppendMessage adds a chat message to the room history
func (s *MemoryStore) AppendMessage(ctx context.Context, roomID, senderName, body string) (*Message, error) {
	senderName, body, err := validateMessage(senderName, body)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[roomID]; !ok {
		return nil, ErrRoomNotFound
	}

	history := s.messages[roomID]
	createdAt := now()
	// keep history sorted even if the wall clock steps back
	if n := len(history); n > 0 && createdAt.Before(history[n-1].CreatedAt) {
		createdAt = history[n-1].CreatedAt
	}

	m := &Message{
		ID:         uuid.New(),
		RoomID:     roomID,
		SenderName: senderName,
		Body:       body,
		CreatedAt:  createdAt,
	}
	s.messages[roomID] = append(history, m)

	out := *m
	return &out, nil
}

// ListMessages returns the latest messages of a room in ascending order
func (s *MemoryStore) ListMessages(ctx context.Context, roomID string, limit int) ([]*Message, error) {
	limit = ClampLimit(limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.messages[roomID]
	if len(history) > limit {
		history = history[len(history)-limit:]
	}

	out := make([]*Message, 0, len(history))
	for _, m := range history {
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

// UpsertVideoState overwrites the room's playback state
func (s *MemoryStore) UpsertVideoState(ctx context.Context, roomID string, position float64, playing bool) (*VideoState, error) {
	if err := validatePosition(position); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[roomID]; !ok {
		return nil, ErrRoomNotFound
	}

	updatedAt := now()
	if prev, ok := s.videoStates[roomID]; ok && !updatedAt.After(prev.UpdatedAt) {
		updatedAt = prev.UpdatedAt.Add(time.Microsecond)
	}

	vs := &VideoState{
		RoomID:    roomID,
		Position:  position,
		IsPlaying: playing,
		UpdatedAt: updatedAt,
	}
	s.videoStates[roomID] = vs

	out := *vs
	return &out, nil
}

// GetVideoState returns the current playback state of a room
func (s *MemoryStore) GetVideoState(ctx context.Context, roomID string) (*VideoState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vs, ok := s.videoStates[roomID]
	if !ok {
		return nil, ErrVideoStateNotFound
	}
	out := *vs
	return &out, nil
}
