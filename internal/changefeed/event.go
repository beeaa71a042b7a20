package changefeed

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rx3lixir/watchparty/internal/room"
)

// Table names a watched table of the room store
type Table string

const (
	TableMessages     Table = "messages"
	TableVideoState   Table = "video_state"
	TableParticipants Table = "participants"
)

// AllTables is every table a room subscribes to
var AllTables = []Table{TableMessages, TableVideoState, TableParticipants}

func (t Table) Valid() bool {
	switch t {
	case TableMessages, TableVideoState, TableParticipants:
		return true
	}
	return false
}

// ParseTables parses a comma separated table list. Empty input means all tables
func ParseTables(raw string) ([]Table, error) {
	if strings.TrimSpace(raw) == "" {
		return AllTables, nil
	}

	seen := make(map[Table]bool)
	var tables []Table
	for _, part := range strings.Split(raw, ",") {
		t := Table(strings.TrimSpace(part))
		if !t.Valid() {
			return nil, fmt.Errorf("unknown table %q", part)
		}
		if !seen[t] {
			seen[t] = true
			tables = append(tables, t)
		}
	}
	return tables, nil
}

type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
)

// Event is a single row change scoped to one room
type Event struct {
	Table  Table           `json:"table"`
	Op     Op              `json:"op"`
	RoomID string          `json:"room_id"`
	Record json.RawMessage `json:"record"`
}

// NewEvent marshals record into an event
func NewEvent(table Table, op Op, roomID string, record any) (Event, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s record: %w", table, err)
	}
	return Event{Table: table, Op: op, RoomID: roomID, Record: raw}, nil
}

// DecodeEvent parses a notification payload as produced by the row triggers
func DecodeEvent(payload []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(payload, &e); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	if !e.Table.Valid() {
		return Event{}, fmt.Errorf("unknown table %q", e.Table)
	}
	if e.RoomID == "" {
		return Event{}, fmt.Errorf("event for %s has no room id", e.Table)
	}
	return e, nil
}

func (e Event) Message() (*room.Message, error) {
	m := new(room.Message)
	if err := e.decode(TableMessages, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (e Event) VideoState() (*room.VideoState, error) {
	vs := new(room.VideoState)
	if err := e.decode(TableVideoState, vs); err != nil {
		return nil, err
	}
	return vs, nil
}

func (e Event) Participant() (*room.Participant, error) {
	p := new(room.Participant)
	if err := e.decode(TableParticipants, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (e Event) decode(want Table, target any) error {
	if e.Table != want {
		return fmt.Errorf("event is for %s, not %s", e.Table, want)
	}
	if err := json.Unmarshal(e.Record, target); err != nil {
		return fmt.Errorf("failed to decode %s record: %w", want, err)
	}
	return nil
}
