package roomtest

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rx3lixir/watchparty/internal/room"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// VideoURL is a valid link used by contract tests
const VideoURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

// RunStoreContract checks behaviour every room.Store implementation must share
func RunStoreContract(t *testing.T, newStore func(t *testing.T) room.Store) {
	ctx := context.Background()

	t.Run("create and get room", func(t *testing.T) {
		s := newStore(t)

		created, err := s.CreateRoom(ctx, VideoURL)
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, VideoURL, created.VideoURL)

		got, err := s.GetRoom(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, created.VideoURL, got.VideoURL)
		assert.True(t, created.CreatedAt.Equal(got.CreatedAt))
		assert.Equal(t, time.UTC, got.CreatedAt.Location())
	})

	t.Run("room ids are unique", func(t *testing.T) {
		s := newStore(t)
		seen := map[string]bool{}
		for i := 0; i < 20; i++ {
			r, err := s.CreateRoom(ctx, VideoURL)
			require.NoError(t, err)
			assert.False(t, seen[r.ID])
			seen[r.ID] = true
		}
	})

	t.Run("create room validation", func(t *testing.T) {
		s := newStore(t)
		cases := []struct {
			url  string
			want error
		}{
			{"", room.ErrVideoURLRequired},
			{"   ", room.ErrVideoURLRequired},
			{"https://vimeo.com/12345", room.ErrInvalidVideoURL},
			{"https://www.youtube.com/watch?v=short", room.ErrNoVideoID},
		}
		for _, tc := range cases {
			_, err := s.CreateRoom(ctx, tc.url)
			assert.ErrorIs(t, err, tc.want, tc.url)
			assert.True(t, room.IsValidation(err))
		}
	})

	t.Run("unknown room", func(t *testing.T) {
		s := newStore(t)

		_, err := s.GetRoom(ctx, "missing")
		assert.ErrorIs(t, err, room.ErrRoomNotFound)

		_, err = s.AddParticipant(ctx, "missing", "alice")
		assert.ErrorIs(t, err, room.ErrRoomNotFound)

		_, err = s.AppendMessage(ctx, "missing", "alice", "hi")
		assert.ErrorIs(t, err, room.ErrRoomNotFound)

		_, err = s.UpsertVideoState(ctx, "missing", 1, true)
		assert.ErrorIs(t, err, room.ErrRoomNotFound)

		count, err := s.CountParticipants(ctx, "missing")
		require.NoError(t, err)
		assert.Zero(t, count)

		msgs, err := s.ListMessages(ctx, "missing", 10)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})

	t.Run("participants", func(t *testing.T) {
		s := newStore(t)
		rm, err := s.CreateRoom(ctx, VideoURL)
		require.NoError(t, err)

		p, err := s.AddParticipant(ctx, rm.ID, "  alice  ")
		require.NoError(t, err)
		assert.Equal(t, "alice", p.Name)
		assert.Equal(t, rm.ID, p.RoomID)

		_, err = s.AddParticipant(ctx, rm.ID, "bob")
		require.NoError(t, err)

		count, err := s.CountParticipants(ctx, rm.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		_, err = s.AddParticipant(ctx, rm.ID, "")
		assert.ErrorIs(t, err, room.ErrNameRequired)
		_, err = s.AddParticipant(ctx, rm.ID, strings.Repeat("x", room.MaxNameLength+1))
		assert.ErrorIs(t, err, room.ErrNameTooLong)
		_, err = s.AddParticipant(ctx, rm.ID, "system")
		assert.ErrorIs(t, err, room.ErrReservedName)

		_, err = s.AddParticipant(ctx, rm.ID, strings.Repeat("é", room.MaxNameLength))
		assert.NoError(t, err)
	})

	t.Run("messages are listed oldest first", func(t *testing.T) {
		s := newStore(t)
		rm, err := s.CreateRoom(ctx, VideoURL)
		require.NoError(t, err)

		for i := 0; i < 5; i++ {
			_, err := s.AppendMessage(ctx, rm.ID, "alice", fmt.Sprintf("msg %d", i))
			require.NoError(t, err)
		}

		msgs, err := s.ListMessages(ctx, rm.ID, 0)
		require.NoError(t, err)
		require.Len(t, msgs, 5)
		for i, m := range msgs {
			assert.Equal(t, fmt.Sprintf("msg %d", i), m.Body)
			assert.Equal(t, time.UTC, m.CreatedAt.Location())
			if i > 0 {
				assert.False(t, m.CreatedAt.Before(msgs[i-1].CreatedAt))
			}
		}
	})

	t.Run("message limit keeps the most recent", func(t *testing.T) {
		s := newStore(t)
		rm, err := s.CreateRoom(ctx, VideoURL)
		require.NoError(t, err)

		for i := 0; i < room.MaxMessageLimit+5; i++ {
			_, err := s.AppendMessage(ctx, rm.ID, "alice", fmt.Sprintf("msg %d", i))
			require.NoError(t, err)
		}

		msgs, err := s.ListMessages(ctx, rm.ID, 3)
		require.NoError(t, err)
		require.Len(t, msgs, 3)
		assert.Equal(t, fmt.Sprintf("msg %d", room.MaxMessageLimit+2), msgs[0].Body)
		assert.Equal(t, fmt.Sprintf("msg %d", room.MaxMessageLimit+4), msgs[2].Body)

		msgs, err = s.ListMessages(ctx, rm.ID, 1000)
		require.NoError(t, err)
		assert.Len(t, msgs, room.MaxMessageLimit)

		msgs, err = s.ListMessages(ctx, rm.ID, -1)
		require.NoError(t, err)
		assert.Len(t, msgs, room.DefaultMessageLimit)
	})

	t.Run("message validation", func(t *testing.T) {
		s := newStore(t)
		rm, err := s.CreateRoom(ctx, VideoURL)
		require.NoError(t, err)

		_, err = s.AppendMessage(ctx, rm.ID, "alice", "   ")
		assert.ErrorIs(t, err, room.ErrEmptyMessage)
		_, err = s.AppendMessage(ctx, rm.ID, "", "hello")
		assert.ErrorIs(t, err, room.ErrSenderRequired)
		_, err = s.AppendMessage(ctx, rm.ID, "alice", strings.Repeat("a", room.MaxMessageLength+1))
		assert.ErrorIs(t, err, room.ErrMessageTooLong)

		m, err := s.AppendMessage(ctx, rm.ID, room.SystemSender, "alice joined the room")
		require.NoError(t, err)
		assert.True(t, m.IsSystem())
	})

	t.Run("video state", func(t *testing.T) {
		s := newStore(t)
		rm, err := s.CreateRoom(ctx, VideoURL)
		require.NoError(t, err)

		_, err = s.GetVideoState(ctx, rm.ID)
		assert.ErrorIs(t, err, room.ErrVideoStateNotFound)

		first, err := s.UpsertVideoState(ctx, rm.ID, 12.5, true)
		require.NoError(t, err)
		assert.Equal(t, rm.ID, first.RoomID)
		assert.Equal(t, 12.5, first.Position)
		assert.True(t, first.IsPlaying)

		got, err := s.GetVideoState(ctx, rm.ID)
		require.NoError(t, err)
		assert.True(t, first.UpdatedAt.Equal(got.UpdatedAt))
		assert.Equal(t, time.UTC, got.UpdatedAt.Location())

		prev := first.UpdatedAt
		for i := 0; i < 10; i++ {
			vs, err := s.UpsertVideoState(ctx, rm.ID, float64(i), i%2 == 0)
			require.NoError(t, err)
			assert.True(t, vs.UpdatedAt.After(prev), "updated_at must strictly increase")
			prev = vs.UpdatedAt
		}

		got, err = s.GetVideoState(ctx, rm.ID)
		require.NoError(t, err)
		assert.Equal(t, 9.0, got.Position)
		assert.False(t, got.IsPlaying)
	})

	t.Run("video state validation", func(t *testing.T) {
		s := newStore(t)
		rm, err := s.CreateRoom(ctx, VideoURL)
		require.NoError(t, err)

		_, err = s.UpsertVideoState(ctx, rm.ID, -1, false)
		assert.ErrorIs(t, err, room.ErrInvalidPosition)
	})
}
