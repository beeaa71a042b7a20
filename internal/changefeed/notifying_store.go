package changefeed

import (
	"context"
	"errors"
	"log/slog"

	"github.com/rx3lixir/watchparty/internal/room"
)

// NotifyingStore wraps a room.Store and publishes an event after every
// successful write. It stands in for database triggers when the store has none
type NotifyingStore struct {
	room.Store
	pub Publisher
	log *slog.Logger
}

func NewNotifyingStore(store room.Store, pub Publisher, log *slog.Logger) *NotifyingStore {
	return &NotifyingStore{Store: store, pub: pub, log: log}
}

func (s *NotifyingStore) AddParticipant(ctx context.Context, roomID, name string) (*room.Participant, error) {
	p, err := s.Store.AddParticipant(ctx, roomID, name)
	if err != nil {
		return nil, err
	}
	s.publish(TableParticipants, OpInsert, roomID, p)
	return p, nil
}

func (s *NotifyingStore) AppendMessage(ctx context.Context, roomID, senderName, body string) (*room.Message, error) {
	m, err := s.Store.AppendMessage(ctx, roomID, senderName, body)
	if err != nil {
		return nil, err
	}
	s.publish(TableMessages, OpInsert, roomID, m)
	return m, nil
}

func (s *NotifyingStore) UpsertVideoState(ctx context.Context, roomID string, position float64, playing bool) (*room.VideoState, error) {
	op := OpUpdate
	if _, err := s.Store.GetVideoState(ctx, roomID); errors.Is(err, room.ErrVideoStateNotFound) {
		op = OpInsert
	}

	vs, err := s.Store.UpsertVideoState(ctx, roomID, position, playing)
	if err != nil {
		return nil, err
	}
	s.publish(TableVideoState, op, roomID, vs)
	return vs, nil
}

func (s *NotifyingStore) publish(table Table, op Op, roomID string, record any) {
	e, err := NewEvent(table, op, roomID, record)
	if err != nil {
		s.log.Error("failed to build change event",
			"room_id", roomID,
			"table", table,
			"error", err)
		return
	}
	s.pub.Publish(e)
}
