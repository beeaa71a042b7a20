package archive

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rx3lixir/watchparty/internal/room"
	"github.com/rx3lixir/watchparty/pkg/httputil"
)

type Handler struct {
	archiver *Archiver
	timeout  time.Duration
	log      *slog.Logger
}

func NewHandler(archiver *Archiver, timeout time.Duration, log *slog.Logger) *Handler {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Handler{archiver, timeout, log}
}

// RegisterRoutes mounts under the rooms router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/{roomID}/transcript", httputil.Handler(h.HandleExport, h.log))
}

// HandleExport uploads the room's chat transcript and returns a download link
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) error {
	roomID, err := httputil.URLParam(r, "roomID")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	export, err := h.archiver.ExportRoom(ctx, roomID)
	if err != nil {
		var uploadErr *UploadError
		switch {
		case errors.Is(err, room.ErrRoomNotFound):
			return httputil.NotFound(room.RoomNotFoundMessage)
		case errors.As(err, &uploadErr):
			return httputil.BadGateway("Transcript storage unavailable", err)
		default:
			return httputil.Internal(err)
		}
	}

	return httputil.RespondJSON(w, http.StatusCreated, export)
}
