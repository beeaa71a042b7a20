package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rx3lixir/watchparty/internal/room"
	"github.com/rx3lixir/watchparty/pkg/httputil"
)

const defaultTimeout = 10 * time.Second

// Store is a room.Store backed by a remote watchparty server's REST API
type Store struct {
	baseURL string
	http    *http.Client
}

// NewStore talks to the server at baseURL (scheme and host, no /api suffix).
// A nil httpClient gets a client with a 10s timeout
func NewStore(baseURL string, httpClient *http.Client) *Store {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Store{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

func (s *Store) CreateRoom(ctx context.Context, videoURL string) (*room.Room, error) {
	var resp room.RoomResponse
	err := s.do(ctx, http.MethodPost, "/api/rooms", room.CreateRoomRequest{VideoURL: videoURL}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp.Room, nil
}

func (s *Store) GetRoom(ctx context.Context, roomID string) (*room.Room, error) {
	var resp room.RoomResponse
	if err := s.do(ctx, http.MethodGet, roomPath(roomID, ""), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Room, nil
}

func (s *Store) AddParticipant(ctx context.Context, roomID, name string) (*room.Participant, error) {
	p := new(room.Participant)
	err := s.do(ctx, http.MethodPost, roomPath(roomID, "/participants"), room.AddParticipantRequest{Name: name}, p)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) CountParticipants(ctx context.Context, roomID string) (int, error) {
	var resp room.CountResponse
	if err := s.do(ctx, http.MethodGet, roomPath(roomID, "/participants/count"), nil, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func (s *Store) AppendMessage(ctx context.Context, roomID, senderName, body string) (*room.Message, error) {
	m := new(room.Message)
	req := room.SendMessageRequest{SenderName: senderName, Message: body}
	if err := s.do(ctx, http.MethodPost, roomPath(roomID, "/messages"), req, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Store) ListMessages(ctx context.Context, roomID string, limit int) ([]*room.Message, error) {
	path := roomPath(roomID, "/messages")
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var resp room.GetMessagesResponse
	if err := s.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	out := make([]*room.Message, 0, len(resp.Messages))
	for i := range resp.Messages {
		out = append(out, &resp.Messages[i])
	}
	return out, nil
}

func (s *Store) UpsertVideoState(ctx context.Context, roomID string, position float64, playing bool) (*room.VideoState, error) {
	vs := new(room.VideoState)
	req := room.UpdateVideoStateRequest{Position: position, IsPlaying: playing}
	if err := s.do(ctx, http.MethodPut, roomPath(roomID, "/video-state"), req, vs); err != nil {
		return nil, err
	}
	return vs, nil
}

func (s *Store) GetVideoState(ctx context.Context, roomID string) (*room.VideoState, error) {
	vs := new(room.VideoState)
	if err := s.do(ctx, http.MethodGet, roomPath(roomID, "/video-state"), nil, vs); err != nil {
		return nil, err
	}
	return vs, nil
}

// Leave posts the system leave announcement for name
func (s *Store) Leave(ctx context.Context, roomID, name string) error {
	return s.do(ctx, http.MethodPost, roomPath(roomID, "/leave"), room.LeaveRequest{Name: name}, nil)
}

func roomPath(roomID, suffix string) string {
	return "/api/rooms/" + url.PathEscape(roomID) + suffix
}

func (s *Store) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

// ServerError is a failure reported by the server that maps to no store error
type ServerError struct {
	Status    int
	Message   string
	RequestID string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d: %s (request %s)", e.Status, e.Message, e.RequestID)
}

// decodeError turns an error response back into the store's error values
func decodeError(resp *http.Response) error {
	var body httputil.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil {
		body.Error = http.StatusText(resp.StatusCode)
	}

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return room.ValidationFromMessage(body.Error)
	case http.StatusNotFound:
		if body.Error == room.VideoStateNotFoundMessage {
			return room.ErrVideoStateNotFound
		}
		return room.ErrRoomNotFound
	}

	return &ServerError{
		Status:    resp.StatusCode,
		Message:   body.Error,
		RequestID: body.RequestID,
	}
}

// IsServerError reports whether err came from a 5xx/unmapped response
func IsServerError(err error) bool {
	var se *ServerError
	return errors.As(err, &se)
}
