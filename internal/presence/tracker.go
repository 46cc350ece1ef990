// Package presence tracks which personas are currently inside the sanctum and
// which room is active. The state lives only in memory and resets on restart.
package presence

import (
	"sync"

	"github.com/bloodroom/sanctum/internal/protocol"
)

// State is a point-in-time snapshot of the presence record. Room is nil when
// no room is active.
type State struct {
	Evy  bool           `json:"Evy"`
	Lyra bool           `json:"Lyra"`
	Room *protocol.Room `json:"room"`
}

// Tracker is the process-wide presence record. All mutation goes through
// Enter and Leave under the mutex; readers take a Snapshot.
type Tracker struct {
	mu   sync.Mutex
	evy  bool
	lyra bool
	room protocol.Room // empty means no active room
}

// NewTracker returns an empty tracker: nobody in, no active room.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Enter marks who as present and records room as the active room. An empty
// room leaves the active room unchanged.
func (t *Tracker) Enter(who protocol.Persona, room protocol.Room) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.set(who, true)
	if room != "" {
		t.room = room
	}
}

// Leave marks who as absent and clears the active room.
func (t *Tracker) Leave(who protocol.Persona) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.set(who, false)
	t.room = ""
}

func (t *Tracker) set(who protocol.Persona, in bool) {
	switch who {
	case protocol.PersonaEvy:
		t.evy = in
	case protocol.PersonaLyra:
		t.lyra = in
	case protocol.PersonaBoth:
		t.evy = in
		t.lyra = in
	}
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := State{Evy: t.evy, Lyra: t.lyra}
	if t.room != "" {
		room := t.room
		s.Room = &room
	}
	return s
}
