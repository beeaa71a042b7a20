package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rx3lixir/watchparty/internal/changefeed"
	"github.com/rx3lixir/watchparty/internal/room"
	"github.com/rx3lixir/watchparty/pkg/httputil"
)

// RoomLookup is the part of room.Store the handler needs
type RoomLookup interface {
	GetRoom(ctx context.Context, roomID string) (*room.Room, error)
}

type Handler struct {
	manager   *Manager
	rooms     RoomLookup
	dbTimeout time.Duration
	log       *slog.Logger
}

func NewHandler(manager *Manager, rooms RoomLookup, dbTimeout time.Duration, log *slog.Logger) *Handler {
	if dbTimeout == 0 {
		dbTimeout = 5 * time.Second
	}
	return &Handler{
		manager:   manager,
		rooms:     rooms,
		dbTimeout: dbTimeout,
		log:       log,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", httputil.Handler(h.HandleConnection, h.log))
}

// HandleConnection validates the room and table filter, then upgrades.
// Errors after the upgrade are only logged
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) error {
	roomID := r.URL.Query().Get("room_id")
	if roomID == "" {
		return httputil.BadRequest("room_id parameter required")
	}

	tables, err := changefeed.ParseTables(r.URL.Query().Get("tables"))
	if err != nil {
		return httputil.BadRequest("Invalid tables parameter", err.Error())
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.dbTimeout)
	_, err = h.rooms.GetRoom(ctx, roomID)
	cancel()
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			return httputil.NotFound(room.RoomNotFoundMessage)
		}
		return httputil.Internal(err)
	}

	h.log.Info("establishing websocket connection",
		"room_id", roomID,
		"tables", tables,
	)

	if err := h.manager.ServeWS(w, r, roomID, tables); err != nil {
		h.log.Warn("websocket session ended with error",
			"room_id", roomID,
			"error", err,
		)
	}
	return nil
}
