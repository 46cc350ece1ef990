package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/bloodroom/sanctum/internal/message"
	"github.com/bloodroom/sanctum/internal/session"
)

type contextKey string

const memberKey contextKey = "member"

// memberFrom returns the logged-in member attached by requireSession.
func memberFrom(r *http.Request) message.Member {
	m, _ := r.Context().Value(memberKey).(message.Member)
	return m
}

// requireSession gates a handler behind the login cookie. The resolved
// member is attached to the request context.
func (s *Server) requireSession(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookie)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		sess, err := s.sessions.Get(r.Context(), cookie.Value)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			log.Printf("server: session lookup: %v", err)
			writeError(w, http.StatusInternalServerError, "Session store unavailable")
			return
		}

		ctx := context.WithValue(r.Context(), memberKey, message.Member(sess.Member))
		next(w, r.WithContext(ctx))
	})
}

type loginRequest struct {
	Member message.Member `json:"member"`
	Key    string         `json:"key"`
}

// handleLogin checks the shared house key and starts a session for the named
// member.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		req = loginRequest{}
	}

	if !message.ValidMember(req.Member) {
		writeError(w, http.StatusBadRequest, "Unknown member")
		return
	}
	if s.config.HouseKey == "" ||
		subtle.ConstantTimeCompare([]byte(req.Key), []byte(s.config.HouseKey)) != 1 {
		writeError(w, http.StatusUnauthorized, "Wrong key")
		return
	}

	token, err := s.sessions.Create(r.Context(), req.Member)
	if err != nil {
		log.Printf("server: create session: %v", err)
		writeError(w, http.StatusInternalServerError, "Session store unavailable")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(session.SessionTTL.Seconds()),
	})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "member": req.Member})
}

// handleLogout deletes the session and clears the cookie.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		if err := s.sessions.Delete(r.Context(), cookie.Value); err != nil {
			log.Printf("server: delete session: %v", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
