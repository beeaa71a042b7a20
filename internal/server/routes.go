package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rx3lixir/watchparty/internal/archive"
	"github.com/rx3lixir/watchparty/internal/room"
	"github.com/rx3lixir/watchparty/internal/websocket"
	"github.com/rx3lixir/watchparty/pkg/httputil"
)

// Pinger is satisfied by *pgxpool.Pool
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	RoomHandler *room.Handler
	// ArchiveHandler is nil when transcript export is disabled
	ArchiveHandler *archive.Handler
	WSHandler      *websocket.Handler
	WSManager      *websocket.Manager

	StorageBackend string
	// DB is nil for the memory backend
	DB Pinger

	// AllowedOrigins must be the list given to websocket.NewManager
	AllowedOrigins []string
	Log            *slog.Logger
}

type HealthResponse struct {
	Status    string          `json:"status"`
	Storage   string          `json:"storage"`
	Websocket websocket.Stats `json:"websocket"`
}

func NewRouter(config RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware block
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(config.Log))
	r.Use(middleware.Recoverer)

	// no origins means same-origin only, matching the websocket handshake.
	// go-chi/cors would treat an empty list as "*"
	if len(config.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   config.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
			ExposedHeaders:   []string{"X-Request-Id"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", httputil.Handler(healthHandler(config), config.Log))

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Compress(5))

		r.Route("/rooms", func(r chi.Router) {
			config.RoomHandler.RegisterRoutes(r)
			if config.ArchiveHandler != nil {
				config.ArchiveHandler.RegisterRoutes(r)
			}
		})
	})

	// websocket upgrades stay outside the compressing group
	r.Route("/ws", config.WSHandler.RegisterRoutes)

	return r
}

func healthHandler(config RouterConfig) httputil.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		resp := HealthResponse{
			Status:  "ok",
			Storage: config.StorageBackend,
		}
		if config.WSManager != nil {
			resp.Websocket = config.WSManager.Stats()
		}

		status := http.StatusOK
		if config.DB != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := config.DB.Ping(ctx); err != nil {
				config.Log.Error("health check: database unreachable", "error", err)
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
			}
		}

		return httputil.RespondJSON(w, status, resp)
	}
}
