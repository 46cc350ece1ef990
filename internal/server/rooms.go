package server

import (
	"io"
	"log"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/bloodroom/sanctum/internal/protocol"
)

// roomParam validates the {room} path segment, writing the 404 itself on
// failure.
func roomParam(w http.ResponseWriter, r *http.Request) (protocol.Room, bool) {
	room := protocol.Room(r.PathValue("room"))
	if !protocol.ValidRoom(room) {
		writeError(w, http.StatusNotFound, "Unknown room")
		return "", false
	}
	return room, true
}

// handleWallList returns a room's wall entries, newest first.
func (s *Server) handleWallList(w http.ResponseWriter, r *http.Request) {
	room, ok := roomParam(w, r)
	if !ok {
		return
	}
	entries, err := s.walls.List(room)
	if err != nil {
		log.Printf("server: list wall %s: %v", room, err)
		writeError(w, http.StatusInternalServerError, "Read failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"room": room, "images": entries})
}

// handleWallUpload accepts a multipart upload under the "image" field and
// pins it to the room's wall.
func (s *Server) handleWallUpload(w http.ResponseWriter, r *http.Request) {
	room, ok := roomParam(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(s.config.MaxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid upload")
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing image field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.config.MaxUpload))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Read failed")
		return
	}

	entry, err := s.walls.Save(room, header.Filename, data)
	if err != nil {
		log.Printf("server: wall upload %s: %v", room, err)
		writeError(w, http.StatusInternalServerError, "Write failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "image": entry})
}

// handleWallImage serves the image bytes with a content type derived from
// the stored extension.
func (s *Server) handleWallImage(w http.ResponseWriter, r *http.Request) {
	room, ok := roomParam(w, r)
	if !ok {
		return
	}
	name := r.PathValue("name")

	data, err := s.walls.Open(room, name)
	if err != nil {
		writeError(w, http.StatusNotFound, "No such image")
		return
	}

	ctype := mime.TypeByExtension(filepath.Ext(name))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Cache-Control", "private, max-age=86400")
	_, _ = w.Write(data)
}

// handleWallDelete removes an image from a wall.
func (s *Server) handleWallDelete(w http.ResponseWriter, r *http.Request) {
	room, ok := roomParam(w, r)
	if !ok {
		return
	}
	removed, err := s.walls.Delete(room, r.PathValue("name"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid name")
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "No such image")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleNoteRead returns the room's scratchpad as plain text.
func (s *Server) handleNoteRead(w http.ResponseWriter, r *http.Request) {
	room, ok := roomParam(w, r)
	if !ok {
		return
	}
	text, err := s.notes.Read(room)
	if err != nil {
		log.Printf("server: read note %s: %v", room, err)
		writeError(w, http.StatusInternalServerError, "Read failed")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, text)
}

// handleNoteWrite replaces the room's scratchpad with the request body.
func (s *Server) handleNoteWrite(w http.ResponseWriter, r *http.Request) {
	room, ok := roomParam(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Read failed")
		return
	}
	if err := s.notes.Write(room, string(body)); err != nil {
		log.Printf("server: write note %s: %v", room, err)
		writeError(w, http.StatusInternalServerError, "Write failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
