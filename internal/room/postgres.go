package room

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// foreign_key_violation
const pgForeignKeyViolation = "23503"

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool}
}

// EnsureSchema creates tables and change-notification triggers if missing
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// CreateRoom creates a new room
func (s *PostgresStore) CreateRoom(ctx context.Context, videoURL string) (*Room, error) {
	videoURL, err := validateVideoURL(videoURL)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO rooms (id, video_url, created_at)
		VALUES ($1, $2, $3)
	`

	room := &Room{
		ID:        NewRoomID(),
		VideoURL:  videoURL,
		CreatedAt: now(),
	}

	_, err = s.pool.Exec(ctx, query, room.ID, room.VideoURL, room.CreatedAt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("operation cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("failed to create room: %w", err)
	}

	return room, nil
}

// GetRoom retrieves a room by its ID
func (s *PostgresStore) GetRoom(ctx context.Context, roomID string) (*Room, error) {
	query := `
		SELECT id, video_url, created_at
		FROM rooms
		WHERE id = $1
	`

	room := &Room{}
	err := s.pool.QueryRow(ctx, query, roomID).Scan(
		&room.ID,
		&room.VideoURL,
		&room.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	room.CreatedAt = room.CreatedAt.UTC()

	return room, nil
}

// AddParticipant adds a named participant to a room
func (s *PostgresStore) AddParticipant(ctx context.Context, roomID, name string) (*Participant, error) {
	name, err := validateName(name)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO participants (id, room_id, name, joined_at)
		VALUES ($1, $2, $3, $4)
	`

	p := &Participant{
		ID:       uuid.New(),
		RoomID:   roomID,
		Name:     name,
		JoinedAt: now(),
	}

	_, err = s.pool.Exec(ctx, query, p.ID, p.RoomID, p.Name, p.JoinedAt)
	if err != nil {
		return nil, mapWriteError(ctx, "failed to add participant", err)
	}

	return p, nil
}

// CountParticipants counts participants of a room
func (s *PostgresStore) CountParticipants(ctx context.Context, roomID string) (int, error) {
	query := `SELECT COUNT(*) FROM participants WHERE room_id = $1`

	var count int
	if err := s.pool.QueryRow(ctx, query, roomID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count participants: %w", err)
	}

	return count, nil
}

// AppendMessage stores a chat message
func (s *PostgresStore) AppendMessage(ctx context.Context, roomID, senderName, body string) (*Message, error) {
	senderName, body, err := validateMessage(senderName, body)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO messages (id, room_id, sender_name, message, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	m := &Message{
		ID:         uuid.New(),
		RoomID:     roomID,
		SenderName: senderName,
		Body:       body,
		CreatedAt:  now(),
	}

	_, err = s.pool.Exec(ctx, query, m.ID, m.RoomID, m.SenderName, m.Body, m.CreatedAt)
	if err != nil {
		return nil, mapWriteError(ctx, "failed to append message", err)
	}

	return m, nil
}

// ListMessages gets the latest messages of a room, oldest first
func (s *PostgresStore) ListMessages(ctx context.Context, roomID string, limit int) ([]*Message, error) {
	query := `
		SELECT id, room_id, sender_name, message, created_at
		FROM (
			SELECT id, room_id, sender_name, message, created_at, seq
			FROM messages
			WHERE room_id = $1
			ORDER BY created_at DESC, seq DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC, seq ASC
	`

	rows, err := s.pool.Query(ctx, query, roomID, ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()

	messages := []*Message{}
	for rows.Next() {
		m := &Message{}
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderName, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.CreatedAt = m.CreatedAt.UTC()
		messages = append(messages, m)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

// UpsertVideoState overwrites the playback state, last writer wins.
// updated_at is kept strictly increasing per room
func (s *PostgresStore) UpsertVideoState(ctx context.Context, roomID string, position float64, playing bool) (*VideoState, error) {
	if err := validatePosition(position); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO video_state (room_id, position, is_playing, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (room_id) DO UPDATE SET
			position   = EXCLUDED.position,
			is_playing = EXCLUDED.is_playing,
			updated_at = GREATEST(EXCLUDED.updated_at, video_state.updated_at + interval '1 microsecond')
		RETURNING room_id, position, is_playing, updated_at
	`

	vs := &VideoState{}
	err := s.pool.QueryRow(ctx, query, roomID, position, playing, now()).Scan(
		&vs.RoomID,
		&vs.Position,
		&vs.IsPlaying,
		&vs.UpdatedAt,
	)
	if err != nil {
		return nil, mapWriteError(ctx, "failed to upsert video state", err)
	}

	vs.UpdatedAt = vs.UpdatedAt.UTC()
	return vs, nil
}

// GetVideoState returns the room's playback state
func (s *PostgresStore) GetVideoState(ctx context.Context, roomID string) (*VideoState, error) {
	query := `
		SELECT room_id, position, is_playing, updated_at
		FROM video_state
		WHERE room_id = $1
	`

	vs := &VideoState{}
	err := s.pool.QueryRow(ctx, query, roomID).Scan(
		&vs.RoomID,
		&vs.Position,
		&vs.IsPlaying,
		&vs.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVideoStateNotFound
		}
		return nil, fmt.Errorf("failed to get video state: %w", err)
	}

	vs.UpdatedAt = vs.UpdatedAt.UTC()
	return vs, nil
}

func mapWriteError(ctx context.Context, msg string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return ErrRoomNotFound
	}
	if ctx.Err() != nil {
		return fmt.Errorf("operation cancelled: %w", ctx.Err())
	}
	return fmt.Errorf("%s: %w", msg, err)
}
