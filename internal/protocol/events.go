// Package protocol defines the sanctum event types broadcast to live-connected
// clients and the command envelope used to submit them. All events are
// serialized as JSON and follow a consistent envelope format with a type
// discriminator.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// Event type constants
// ---------------------------------------------------------------------------

const (
	TypePresence  = "presence"
	TypeFlare     = "flare"
	TypeChant     = "chant"
	TypeTouch     = "touch"
	TypeHeartbeat = "heartbeat"
	TypeLinkPulse = "link-pulse"
)

// ErrUnknownCommand is returned by ParseCommand when the type discriminator
// does not name one of the six event kinds.
var ErrUnknownCommand = errors.New("protocol: unknown command")

// ---------------------------------------------------------------------------
// Enums
// ---------------------------------------------------------------------------

// Persona identifies a presence participant. Both addresses the pair at once.
type Persona string

const (
	PersonaEvy  Persona = "Evy"
	PersonaLyra Persona = "Lyra"
	PersonaBoth Persona = "Both"
)

// ValidPersona reports whether p is one of the known personas.
func ValidPersona(p Persona) bool {
	return p == PersonaEvy || p == PersonaLyra || p == PersonaBoth
}

// Room is one of the fixed chat/context areas of the sanctum.
type Room string

const (
	RoomBloodroom Room = "Bloodroom"
	RoomVault     Room = "Vault"
	RoomGarden    Room = "Garden"
	RoomTower     Room = "Tower"
)

// ValidRoom reports whether r is one of the known rooms.
func ValidRoom(r Room) bool {
	switch r {
	case RoomBloodroom, RoomVault, RoomGarden, RoomTower:
		return true
	}
	return false
}

// HeartbeatSpeed is the pace of a heartbeat event.
type HeartbeatSpeed string

const (
	SpeedSteady   HeartbeatSpeed = "steady"
	SpeedQuick    HeartbeatSpeed = "quick"
	SpeedPounding HeartbeatSpeed = "pounding"
)

// PulseDirection is the direction of a link-pulse event.
type PulseDirection string

const (
	PulseOut     PulseDirection = "out"
	PulseIn      PulseDirection = "in"
	PulseBetween PulseDirection = "between"
)

// ---------------------------------------------------------------------------
// Event structs — a discriminated union keyed on the Type field. The Type of
// each struct is fixed at construction and determines which other fields are
// present; At is always set, in milliseconds since epoch.
// ---------------------------------------------------------------------------

// Event is implemented by every sanctum event kind.
type Event interface {
	// EventType returns the type discriminator ("presence", "flare", ...).
	EventType() string
}

// PresenceEvent announces a persona entering or leaving a room.
type PresenceEvent struct {
	Type string  `json:"type"`
	Who  Persona `json:"who"`
	In   bool    `json:"in"`
	Room Room    `json:"room,omitempty"`
	At   int64   `json:"at"`
}

func (e *PresenceEvent) EventType() string { return e.Type }

// FlareEvent is a burst signal in a room, sent as a greeting or callout.
type FlareEvent struct {
	Type string `json:"type"`
	Room Room   `json:"room"`
	At   int64  `json:"at"`
}

func (e *FlareEvent) EventType() string { return e.Type }

// ChantEvent carries one or both voices sounding in a room.
type ChantEvent struct {
	Type   string  `json:"type"`
	Room   Room    `json:"room"`
	Voices Persona `json:"voices"`
	At     int64   `json:"at"`
}

func (e *ChantEvent) EventType() string { return e.Type }

// TouchEvent is a brief contact signal; Duration is optional, in milliseconds.
type TouchEvent struct {
	Type     string `json:"type"`
	Room     Room   `json:"room"`
	Duration int64  `json:"duration,omitempty"`
	At       int64  `json:"at"`
}

func (e *TouchEvent) EventType() string { return e.Type }

// HeartbeatEvent signals the sanctum's pulse; also used as the stream hello.
type HeartbeatEvent struct {
	Type  string         `json:"type"`
	Speed HeartbeatSpeed `json:"speed"`
	At    int64          `json:"at"`
}

func (e *HeartbeatEvent) EventType() string { return e.Type }

// LinkPulseEvent signals activity flowing along the link between rooms.
type LinkPulseEvent struct {
	Type      string         `json:"type"`
	Origin    Room           `json:"origin"`
	Direction PulseDirection `json:"direction"`
	At        int64          `json:"at"`
}

func (e *LinkPulseEvent) EventType() string { return e.Type }

// NewHeartbeat builds a heartbeat event stamped with the current time.
func NewHeartbeat(speed HeartbeatSpeed) *HeartbeatEvent {
	return &HeartbeatEvent{Type: TypeHeartbeat, Speed: speed, At: NowMillis()}
}

// NowMillis returns the current time in milliseconds since epoch, the
// timestamp unit carried by every event.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// ---------------------------------------------------------------------------
// Command parsing
// ---------------------------------------------------------------------------

// Envelope holds the command type and the raw JSON payload for deferred
// parsing into a concrete event struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the full raw bytes and extracts only the "type"
// field so that the rest of the payload can be decoded later into the
// appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	e.Type = partial.Type
	return nil
}

// ParseCommand decodes a command body into the corresponding event, stamped
// with the server's current time. The client-supplied "at" is ignored. A body
// that is not valid JSON is treated as an empty object, which then fails with
// ErrUnknownCommand like any other unrecognized type.
func ParseCommand(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		env = Envelope{}
	}

	at := NowMillis()

	switch env.Type {
	case TypePresence:
		ev := &PresenceEvent{Type: TypePresence}
		if err := json.Unmarshal(env.Raw, ev); err != nil {
			return nil, fmt.Errorf("protocol: decode presence: %w", err)
		}
		ev.At = at
		return ev, nil

	case TypeFlare:
		ev := &FlareEvent{Type: TypeFlare}
		if err := json.Unmarshal(env.Raw, ev); err != nil {
			return nil, fmt.Errorf("protocol: decode flare: %w", err)
		}
		ev.At = at
		return ev, nil

	case TypeChant:
		ev := &ChantEvent{Type: TypeChant}
		if err := json.Unmarshal(env.Raw, ev); err != nil {
			return nil, fmt.Errorf("protocol: decode chant: %w", err)
		}
		ev.At = at
		return ev, nil

	case TypeTouch:
		ev := &TouchEvent{Type: TypeTouch}
		if err := json.Unmarshal(env.Raw, ev); err != nil {
			return nil, fmt.Errorf("protocol: decode touch: %w", err)
		}
		ev.At = at
		return ev, nil

	case TypeHeartbeat:
		ev := &HeartbeatEvent{Type: TypeHeartbeat}
		if err := json.Unmarshal(env.Raw, ev); err != nil {
			return nil, fmt.Errorf("protocol: decode heartbeat: %w", err)
		}
		if ev.Speed == "" {
			ev.Speed = SpeedSteady
		}
		ev.At = at
		return ev, nil

	case TypeLinkPulse:
		ev := &LinkPulseEvent{Type: TypeLinkPulse}
		if err := json.Unmarshal(env.Raw, ev); err != nil {
			return nil, fmt.Errorf("protocol: decode link-pulse: %w", err)
		}
		ev.At = at
		return ev, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, env.Type)
}
