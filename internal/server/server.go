// Package server wires the HTTP surface of the sanctum: the live-event
// streams, the command and presence endpoints, and the session-gated message,
// wall, and note routes.
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/bloodroom/sanctum/internal/bus"
	"github.com/bloodroom/sanctum/internal/live"
	"github.com/bloodroom/sanctum/internal/message"
	"github.com/bloodroom/sanctum/internal/metrics"
	"github.com/bloodroom/sanctum/internal/notes"
	"github.com/bloodroom/sanctum/internal/presence"
	"github.com/bloodroom/sanctum/internal/protocol"
	"github.com/bloodroom/sanctum/internal/session"
	"github.com/bloodroom/sanctum/internal/sms"
	"github.com/bloodroom/sanctum/internal/wall"
)

// SessionCookie is the name of the login cookie.
const SessionCookie = "sanctum_session"

// maxBodyBytes caps JSON request bodies; wall uploads have their own limit.
const maxBodyBytes = 1 << 20

// Config holds the server's tunable parameters.
type Config struct {
	HouseKey   string                    // shared login secret
	SMSNumbers map[message.Member]string // phone number per member, optional
	MaxUpload  int64                     // wall upload cap in bytes
}

// DefaultConfig returns production defaults (HouseKey must be set by the
// caller).
func DefaultConfig() Config {
	return Config{
		MaxUpload: 10 << 20,
	}
}

// Sessions is the session store surface the server needs. *session.Store
// implements it.
type Sessions interface {
	Create(ctx context.Context, member message.Member) (string, error)
	Get(ctx context.Context, token string) (*session.Session, error)
	Delete(ctx context.Context, token string) error
}

// Notifier is the outbound SMS surface. *sms.Queue implements it; nil
// disables SMS nudges.
type Notifier interface {
	Enqueue(job sms.Job) error
}

// Index is the optional vault mirror surface. *vaultindex.Store implements
// it; nil disables the mirror.
type Index interface {
	Insert(ctx context.Context, rec *message.Record) error
	Delete(ctx context.Context, id string) error
	History(ctx context.Context, m message.Member, limit int) ([]message.Record, error)
}

// Server holds every collaborator and exposes the combined handler.
type Server struct {
	config    Config
	bus       *bus.Bus
	tracker   *presence.Tracker
	messages  *message.Store
	walls     *wall.Store
	notes     *notes.Store
	sessions  Sessions
	notifier  Notifier
	index     Index
	sse       *live.SSEHandler
	ws        *live.WSHandler
	mux       *http.ServeMux
	startedAt time.Time
}

// New assembles a Server. notifier and index may be nil.
func New(
	config Config,
	b *bus.Bus,
	tracker *presence.Tracker,
	messages *message.Store,
	walls *wall.Store,
	notePad *notes.Store,
	sessions Sessions,
	notifier Notifier,
	index Index,
	sse *live.SSEHandler,
	wsHandler *live.WSHandler,
) *Server {
	s := &Server{
		config:    config,
		bus:       b,
		tracker:   tracker,
		messages:  messages,
		walls:     walls,
		notes:     notePad,
		sessions:  sessions,
		notifier:  notifier,
		index:     index,
		sse:       sse,
		ws:        wsHandler,
		startedAt: time.Now(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	mux := http.NewServeMux()

	mux.Handle("GET /live", s.sse)
	mux.Handle("GET /live/ws", s.ws)
	mux.HandleFunc("POST /command", s.handleCommand)
	mux.HandleFunc("POST /presence/enter", s.handleEnter)
	mux.HandleFunc("POST /presence/leave", s.handleLeave)
	mux.HandleFunc("GET /presence", s.handlePresence)

	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /logout", s.handleLogout)

	mux.Handle("POST /messages", s.requireSession(s.handleSendMessage))
	mux.Handle("GET /messages/{member}", s.requireSession(s.handleMailbox))
	mux.Handle("GET /messages/{member}/history", s.requireSession(s.handleHistory))
	mux.Handle("GET /vault", s.requireSession(s.handleVaultList))
	mux.Handle("DELETE /vault/{id}", s.requireSession(s.handleVaultDelete))

	mux.Handle("GET /walls/{room}", s.requireSession(s.handleWallList))
	mux.Handle("POST /walls/{room}", s.requireSession(s.handleWallUpload))
	mux.Handle("GET /walls/{room}/{name}", s.requireSession(s.handleWallImage))
	mux.Handle("DELETE /walls/{room}/{name}", s.requireSession(s.handleWallDelete))

	mux.Handle("GET /notes/{room}", s.requireSession(s.handleNoteRead))
	mux.Handle("PUT /notes/{room}", s.requireSession(s.handleNoteWrite))

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	s.mux = mux
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// emit pushes ev onto the bus and counts it.
func (s *Server) emit(ev protocol.Event) {
	metrics.EventsEmitted.WithLabelValues(ev.EventType()).Inc()
	s.bus.Emit(ev)
}

// handleHealth responds with the server's health status as JSON, including
// live connection counts and uptime.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
		SSE    int    `json:"sse_connections"`
		WS     int    `json:"ws_connections"`
		Uptime string `json:"uptime"`
	}{
		Status: "ok",
		SSE:    s.sse.Count(),
		WS:     s.ws.Count(),
		Uptime: time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
