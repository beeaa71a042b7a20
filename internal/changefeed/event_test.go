package changefeed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTriggerPayload(t *testing.T) {
	payload := `{"table":"video_state","op":"UPDATE","room_id":"cs1ab2","record":{"room_id":"cs1ab2","position":42.5,"is_playing":true,"updated_at":"2026-10-19T12:30:00.123456+00:00"}}`

	e, err := DecodeEvent([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, TableVideoState, e.Table)
	assert.Equal(t, OpUpdate, e.Op)
	assert.Equal(t, "cs1ab2", e.RoomID)

	vs, err := e.VideoState()
	require.NoError(t, err)
	assert.Equal(t, 42.5, vs.Position)
	assert.True(t, vs.IsPlaying)
	want := time.Date(2026, 10, 19, 12, 30, 0, 123456000, time.UTC)
	assert.True(t, want.Equal(vs.UpdatedAt))

	_, err = e.Message()
	assert.Error(t, err)
}

func TestDecodeMessagePayload(t *testing.T) {
	payload := `{"table":"messages","op":"INSERT","room_id":"r1","record":{"id":"5f0c7f8e-7f0e-4c0e-9a57-1b1c2d3e4f50","room_id":"r1","sender_name":"alice","message":"hi","created_at":"2026-10-19T12:30:00Z"}}`

	e, err := DecodeEvent([]byte(payload))
	require.NoError(t, err)

	m, err := e.Message()
	require.NoError(t, err)
	assert.Equal(t, "alice", m.SenderName)
	assert.Equal(t, "hi", m.Body)
}

func TestDecodeEventRejectsBadPayloads(t *testing.T) {
	_, err := DecodeEvent([]byte(`not json`))
	assert.Error(t, err)

	_, err = DecodeEvent([]byte(`{"table":"users","op":"INSERT","room_id":"r1","record":{}}`))
	assert.Error(t, err)

	_, err = DecodeEvent([]byte(`{"table":"messages","op":"INSERT","record":{}}`))
	assert.Error(t, err)
}

func TestParseTables(t *testing.T) {
	tables, err := ParseTables("")
	require.NoError(t, err)
	assert.Equal(t, AllTables, tables)

	tables, err = ParseTables("messages, video_state,messages")
	require.NoError(t, err)
	assert.Equal(t, []Table{TableMessages, TableVideoState}, tables)

	_, err = ParseTables("messages,users")
	assert.Error(t, err)
}
