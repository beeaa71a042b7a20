package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rx3lixir/watchparty/pkg/httputil"
)

// Not found messages as sent to clients
const (
	RoomNotFoundMessage       = "Room not found"
	VideoStateNotFoundMessage = "Video state not found"
)

type Handler struct {
	store         Store
	log           *slog.Logger
	dbTimeout     time.Duration
	publicBaseURL string
}

func NewHandler(store Store, log *slog.Logger, dbTimeout time.Duration, publicBaseURL string) *Handler {
	if dbTimeout == 0 {
		dbTimeout = time.Second * 5
	}
	return &Handler{store, log, dbTimeout, publicBaseURL}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/", httputil.Handler(h.HandleCreateRoom, h.log))
	r.Get("/{roomID}", httputil.Handler(h.HandleGetRoom, h.log))
	r.Post("/{roomID}/participants", httputil.Handler(h.HandleAddParticipant, h.log))
	r.Get("/{roomID}/participants/count", httputil.Handler(h.HandleCountParticipants, h.log))
	r.Post("/{roomID}/leave", httputil.Handler(h.HandleLeave, h.log))
	r.Post("/{roomID}/messages", httputil.Handler(h.HandleSendMessage, h.log))
	r.Get("/{roomID}/messages", httputil.Handler(h.HandleGetMessages, h.log))
	r.Put("/{roomID}/video-state", httputil.Handler(h.HandleUpdateVideoState, h.log))
	r.Get("/{roomID}/video-state", httputil.Handler(h.HandleGetVideoState, h.log))
}

func (h *Handler) dbCtx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.dbTimeout)
}

// HandleCreateRoom creates a room around a YouTube link
func (h *Handler) HandleCreateRoom(w http.ResponseWriter, r *http.Request) error {
	req := new(CreateRoomRequest)
	if err := httputil.DecodeJSON(r, req); err != nil {
		return err
	}

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	room, err := h.store.CreateRoom(ctx, req.VideoURL)
	if err != nil {
		return toHTTPError(err)
	}

	h.log.Info("room created",
		"room_id", room.ID,
		"video_url", room.VideoURL)

	return httputil.RespondJSON(w, http.StatusCreated, h.roomResponse(room))
}

// HandleGetRoom gets room details along with its share link
func (h *Handler) HandleGetRoom(w http.ResponseWriter, r *http.Request) error {
	roomID, err := httputil.URLParam(r, "roomID")
	if err != nil {
		return err
	}

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	room, err := h.store.GetRoom(ctx, roomID)
	if err != nil {
		return toHTTPError(err)
	}

	return httputil.RespondJSON(w, http.StatusOK, h.roomResponse(room))
}

// HandleAddParticipant registers a named participant in the room
func (h *Handler) HandleAddParticipant(w http.ResponseWriter, r *http.Request) error {
	roomID, err := httputil.URLParam(r, "roomID")
	if err != nil {
		return err
	}

	req := new(AddParticipantRequest)
	if err := httputil.DecodeJSON(r, req); err != nil {
		return err
	}

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	p, err := h.store.AddParticipant(ctx, roomID, req.Name)
	if err != nil {
		return toHTTPError(err)
	}

	h.log.Debug("participant joined",
		"room_id", roomID,
		"participant_id", p.ID,
		"name", p.Name)

	return httputil.RespondJSON(w, http.StatusCreated, p)
}

func (h *Handler) HandleCountParticipants(w http.ResponseWriter, r *http.Request) error {
	roomID, err := httputil.URLParam(r, "roomID")
	if err != nil {
		return err
	}

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	count, err := h.store.CountParticipants(ctx, roomID)
	if err != nil {
		return toHTTPError(err)
	}

	return httputil.RespondJSON(w, http.StatusOK, CountResponse{Count: count})
}

// HandleLeave posts the system leave announcement. Browsers call it
// through sendBeacon on unload, so it answers with an empty body
func (h *Handler) HandleLeave(w http.ResponseWriter, r *http.Request) error {
	roomID, err := httputil.URLParam(r, "roomID")
	if err != nil {
		return err
	}

	req := new(LeaveRequest)
	if err := httputil.DecodeJSON(r, req); err != nil {
		return err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return httputil.BadRequest(ErrNameRequired.Error())
	}

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	if _, err := h.store.AppendMessage(ctx, roomID, SystemSender, LeftMessage(name)); err != nil {
		return toHTTPError(err)
	}

	h.log.Debug("participant left",
		"room_id", roomID,
		"name", name)

	return httputil.RespondNoContent(w)
}

func (h *Handler) HandleSendMessage(w http.ResponseWriter, r *http.Request) error {
	roomID, err := httputil.URLParam(r, "roomID")
	if err != nil {
		return err
	}

	req := new(SendMessageRequest)
	if err := httputil.DecodeJSON(r, req); err != nil {
		return err
	}

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	msg, err := h.store.AppendMessage(ctx, roomID, req.SenderName, req.Message)
	if err != nil {
		return toHTTPError(err)
	}

	return httputil.RespondJSON(w, http.StatusCreated, msg)
}

// HandleGetMessages returns the latest messages, oldest first
func (h *Handler) HandleGetMessages(w http.ResponseWriter, r *http.Request) error {
	roomID, err := httputil.URLParam(r, "roomID")
	if err != nil {
		return err
	}

	limit := httputil.QueryInt(r, "limit", DefaultMessageLimit)

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	messages, err := h.store.ListMessages(ctx, roomID, limit)
	if err != nil {
		return toHTTPError(err)
	}

	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, *m)
	}

	return httputil.RespondJSON(w, http.StatusOK, GetMessagesResponse{
		Messages: out,
		Count:    len(out),
	})
}

func (h *Handler) HandleUpdateVideoState(w http.ResponseWriter, r *http.Request) error {
	roomID, err := httputil.URLParam(r, "roomID")
	if err != nil {
		return err
	}

	req := new(UpdateVideoStateRequest)
	if err := httputil.DecodeJSON(r, req); err != nil {
		return err
	}

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	vs, err := h.store.UpsertVideoState(ctx, roomID, req.Position, req.IsPlaying)
	if err != nil {
		return toHTTPError(err)
	}

	h.log.Debug("video state updated",
		"room_id", roomID,
		"position", vs.Position,
		"is_playing", vs.IsPlaying)

	return httputil.RespondJSON(w, http.StatusOK, vs)
}

func (h *Handler) HandleGetVideoState(w http.ResponseWriter, r *http.Request) error {
	roomID, err := httputil.URLParam(r, "roomID")
	if err != nil {
		return err
	}

	ctx, cancel := h.dbCtx(r)
	defer cancel()

	vs, err := h.store.GetVideoState(ctx, roomID)
	if err != nil {
		return toHTTPError(err)
	}

	return httputil.RespondJSON(w, http.StatusOK, vs)
}

func (h *Handler) roomResponse(room *Room) RoomResponse {
	videoID, _ := ExtractVideoID(room.VideoURL)
	return RoomResponse{
		Room:     *room,
		VideoID:  videoID,
		ShareURL: ShareLink(h.publicBaseURL, room.ID),
	}
}

// toHTTPError maps store errors onto status codes
func toHTTPError(err error) error {
	switch {
	case IsValidation(err):
		return httputil.BadRequest(err.Error())
	case errors.Is(err, ErrRoomNotFound):
		return httputil.NotFound(RoomNotFoundMessage)
	case errors.Is(err, ErrVideoStateNotFound):
		return httputil.NotFound(VideoStateNotFoundMessage)
	default:
		return httputil.Internal(err)
	}
}

// JoinedMessage is the system announcement posted when someone enters a room
func JoinedMessage(name string) string {
	return fmt.Sprintf("%s joined the room", name)
}

// LeftMessage is the system announcement posted when someone leaves
func LeftMessage(name string) string {
	return fmt.Sprintf("%s left the room", name)
}
