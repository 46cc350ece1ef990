package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/bloodroom/sanctum/internal/metrics"
	"github.com/bloodroom/sanctum/internal/protocol"
)

// handleCommand translates a typed command request into a bus event. The
// request body carries a "type" discriminator; unknown types are rejected
// with no emission and no state change. For presence commands the shared
// tracker is updated before the event goes out.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		body = nil
	}

	ev, err := protocol.ParseCommand(body)
	if err != nil {
		metrics.CommandErrors.Inc()
		if errors.Is(err, protocol.ErrUnknownCommand) {
			writeError(w, http.StatusBadRequest, "Unknown command")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid command")
		return
	}

	if pe, ok := ev.(*protocol.PresenceEvent); ok {
		if !protocol.ValidPersona(pe.Who) {
			metrics.CommandErrors.Inc()
			writeError(w, http.StatusBadRequest, "Unknown persona")
			return
		}
		if pe.Room != "" && !protocol.ValidRoom(pe.Room) {
			metrics.CommandErrors.Inc()
			writeError(w, http.StatusBadRequest, "Unknown room")
			return
		}
		if pe.In {
			s.tracker.Enter(pe.Who, pe.Room)
		} else {
			s.tracker.Leave(pe.Who)
			pe.Room = ""
		}
	}

	s.emit(ev)
	writeJSON(w, http.StatusOK, struct {
		OK      bool           `json:"ok"`
		Emitted protocol.Event `json:"emitted"`
	}{OK: true, Emitted: ev})
}

// presenceRequest is the body of the enter and leave endpoints.
type presenceRequest struct {
	Who  protocol.Persona `json:"who"`
	Room protocol.Room    `json:"room,omitempty"`
}

// handleEnter marks a persona as present, announces it, and sends a flare as
// a greeting signal.
func (s *Server) handleEnter(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodePresence(w, r)
	if !ok {
		return
	}

	s.tracker.Enter(req.Who, req.Room)
	at := protocol.NowMillis()
	s.emit(&protocol.PresenceEvent{
		Type: protocol.TypePresence,
		Who:  req.Who,
		In:   true,
		Room: req.Room,
		At:   at,
	})
	s.emit(&protocol.FlareEvent{Type: protocol.TypeFlare, Room: req.Room, At: at})

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "presence": s.tracker.Snapshot()})
}

// handleLeave marks a persona as absent and clears the active room.
func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodePresence(w, r)
	if !ok {
		return
	}

	s.tracker.Leave(req.Who)
	s.emit(&protocol.PresenceEvent{
		Type: protocol.TypePresence,
		Who:  req.Who,
		In:   false,
		At:   protocol.NowMillis(),
	})

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "presence": s.tracker.Snapshot()})
}

// decodePresence parses the request body, applying defaults on malformed
// JSON, and validates the persona and room. It writes the error response
// itself when validation fails.
func (s *Server) decodePresence(w http.ResponseWriter, r *http.Request) (presenceRequest, bool) {
	var req presenceRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		req = presenceRequest{} // malformed body reads as empty, then fails validation
	}

	if !protocol.ValidPersona(req.Who) {
		writeError(w, http.StatusBadRequest, "Unknown persona")
		return presenceRequest{}, false
	}
	if req.Room != "" && !protocol.ValidRoom(req.Room) {
		writeError(w, http.StatusBadRequest, "Unknown room")
		return presenceRequest{}, false
	}
	return req, true
}

// handlePresence returns the current presence snapshot.
func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.Snapshot())
}
