package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/roomdrop/roomdrop/internal/relay"
)

// NewUpgrader builds the websocket upgrader. An empty allow list accepts any
// origin, which browsers on other hosts need for the shared relay.
func NewUpgrader(allowedOrigins []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Non-browser clients such as the CLI send no Origin.
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) || strings.EqualFold(a, u.Host) {
				return true
			}
		}
		return false
	}
}

// ServeWs returns an http.HandlerFunc that upgrades the request and attaches
// a new session to the hub.
func ServeWs(hub *relay.Hub, upgrader *websocket.Upgrader, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("failed to upgrade connection", "remote", r.RemoteAddr, "error", err)
			return
		}

		session := relay.NewSession(hub, conn, logger)
		logger.Debug("session connected", "session", session.ID, "remote", r.RemoteAddr)

		go session.WritePump()
		go session.ReadPump()
	}
}

// HealthHandler answers liveness probes.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Signaling server is healthy."))
}

// StatsHandler reports room and session counts as JSON.
func StatsHandler(hub *relay.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(hub.Stats())
	}
}

// NewRouter wires the relay endpoints onto a fresh mux.
func NewRouter(hub *relay.Hub, allowedOrigins []string, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", HealthHandler)
	mux.HandleFunc("/stats", StatsHandler(hub))
	mux.HandleFunc("/ws", ServeWs(hub, NewUpgrader(allowedOrigins), logger))
	return mux
}
