package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/bloodroom/sanctum/internal/message"
	"github.com/bloodroom/sanctum/internal/metrics"
	"github.com/bloodroom/sanctum/internal/protocol"
	"github.com/bloodroom/sanctum/internal/sms"
)

type sendRequest struct {
	Recipients  []message.Member  `json:"recipients"`
	Text        string            `json:"text"`
	Attachments []string          `json:"attachments,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	SMS         bool              `json:"sms,omitempty"` // request an SMS nudge per recipient
}

// handleSendMessage persists one logical send. The author is the logged-in
// member; the idempotency key makes a repeated identical send land on the
// existing vault file instead of a duplicate.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if len(req.Recipients) == 0 {
		writeError(w, http.StatusBadRequest, "No recipients")
		return
	}
	for _, m := range req.Recipients {
		if !message.ValidMember(m) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown recipient %q", m))
			return
		}
	}
	if req.Text == "" && len(req.Attachments) == 0 {
		writeError(w, http.StatusBadRequest, "Empty message")
		return
	}

	author := memberFrom(r)
	rec, stored, err := s.messages.Send(message.SendInput{
		Author:       author,
		Recipients:   req.Recipients,
		Text:         req.Text,
		At:           protocol.NowMillis(),
		Attachments:  req.Attachments,
		Metadata:     req.Metadata,
		WriteIndexes: true,
	})
	if err != nil {
		log.Printf("server: send from %s: %v", author, err)
		writeError(w, http.StatusInternalServerError, "Write failed")
		return
	}

	if stored {
		metrics.MessagesStored.Inc()
	} else {
		metrics.MessagesDeduplicated.Inc()
	}

	// The mirror and the SMS nudge are advisory side effects; failures are
	// logged and the send still succeeds.
	if stored && s.index != nil {
		if err := s.index.Insert(r.Context(), rec); err != nil {
			log.Printf("server: vault index insert %s: %v", rec.ID, err)
		}
	}
	if stored && req.SMS && s.notifier != nil {
		s.sendNudges(rec)
	}

	writeJSON(w, http.StatusOK, struct {
		OK     bool   `json:"ok"`
		ID     string `json:"id"`
		Key    string `json:"key"`
		Stored bool   `json:"stored"`
	}{OK: true, ID: rec.ID, Key: rec.Key, Stored: stored})
}

// sendNudges enqueues one SMS job per recipient with a configured number.
func (s *Server) sendNudges(rec *message.Record) {
	body := fmt.Sprintf("%s left you a message in the Bloodroom", rec.Author)
	for _, m := range rec.Recipients {
		to := s.config.SMSNumbers[m]
		if to == "" {
			continue
		}
		if err := s.notifier.Enqueue(sms.Job{To: to, Body: body, At: rec.At}); err != nil {
			log.Printf("server: enqueue sms for %s: %v", m, err)
			continue
		}
		metrics.SMSJobsEnqueued.Inc()
	}
}

// handleMailbox lists a member's mailbox pointers, newest first.
func (s *Server) handleMailbox(w http.ResponseWriter, r *http.Request) {
	m := message.Member(r.PathValue("member"))
	if !message.ValidMember(m) {
		writeError(w, http.StatusNotFound, "Unknown member")
		return
	}

	ptrs, err := s.messages.ListMailbox(m)
	if err != nil {
		log.Printf("server: list mailbox %s: %v", m, err)
		writeError(w, http.StatusInternalServerError, "Read failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"member": m, "messages": ptrs})
}

// handleHistory returns full records sent by or to a member. It prefers the
// vault index when configured and falls back to scanning the vault files.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	m := message.Member(r.PathValue("member"))
	if !message.ValidMember(m) {
		writeError(w, http.StatusNotFound, "Unknown member")
		return
	}
	limit := queryLimit(r, 100)

	if s.index != nil {
		recs, err := s.index.History(r.Context(), m, limit)
		if err == nil {
			writeJSON(w, http.StatusOK, map[string]any{"member": m, "messages": recs})
			return
		}
		log.Printf("server: index history %s: %v (falling back to vault scan)", m, err)
	}

	all, err := s.messages.ListVault(0)
	if err != nil {
		log.Printf("server: vault scan: %v", err)
		writeError(w, http.StatusInternalServerError, "Read failed")
		return
	}
	var recs []message.Record
	for _, rec := range all {
		if len(recs) >= limit {
			break
		}
		if rec.Author == m || containsMember(rec.Recipients, m) {
			recs = append(recs, rec)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"member": m, "messages": recs})
}

// handleVaultList returns canonical records, newest first.
func (s *Server) handleVaultList(w http.ResponseWriter, r *http.Request) {
	recs, err := s.messages.ListVault(queryLimit(r, 100))
	if err != nil {
		log.Printf("server: list vault: %v", err)
		writeError(w, http.StatusInternalServerError, "Read failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": recs})
}

// handleVaultDelete removes a canonical record and its index row.
func (s *Server) handleVaultDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	removed, err := s.messages.Delete(id)
	if err != nil {
		log.Printf("server: delete %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Delete failed")
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "No such message")
		return
	}
	if s.index != nil {
		if err := s.index.Delete(r.Context(), id); err != nil {
			log.Printf("server: vault index delete %s: %v", id, err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func queryLimit(r *http.Request, def int) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func containsMember(ms []message.Member, m message.Member) bool {
	for _, x := range ms {
		if x == m {
			return true
		}
	}
	return false
}
