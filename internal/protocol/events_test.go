package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseCommand_KnownTypes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"presence", `{"type":"presence","who":"Evy","in":true,"room":"Bloodroom"}`, TypePresence},
		{"flare", `{"type":"flare","room":"Garden"}`, TypeFlare},
		{"chant", `{"type":"chant","room":"Tower","voices":"Both"}`, TypeChant},
		{"touch", `{"type":"touch","room":"Bloodroom","duration":1200}`, TypeTouch},
		{"heartbeat", `{"type":"heartbeat","speed":"quick"}`, TypeHeartbeat},
		{"link-pulse", `{"type":"link-pulse","origin":"Vault","direction":"out"}`, TypeLinkPulse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseCommand([]byte(tt.body))
			if err != nil {
				t.Fatalf("ParseCommand(%s) error: %v", tt.body, err)
			}
			if ev.EventType() != tt.want {
				t.Errorf("EventType() = %q, want %q", ev.EventType(), tt.want)
			}
		})
	}
}

func TestParseCommand_StampsServerTime(t *testing.T) {
	before := NowMillis()
	ev, err := ParseCommand([]byte(`{"type":"flare","room":"Garden","at":42}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	after := NowMillis()

	flare := ev.(*FlareEvent)
	if flare.At == 42 {
		t.Error("client-supplied at was not overridden")
	}
	if flare.At < before || flare.At > after {
		t.Errorf("at = %d, want within [%d, %d]", flare.At, before, after)
	}
}

func TestParseCommand_UnknownType(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unrecognized", `{"type":"not-a-real-type"}`},
		{"empty type", `{"type":""}`},
		{"missing type", `{"room":"Bloodroom"}`},
		{"empty object", `{}`},
		{"malformed json treated as empty", `{"type":`},
		{"empty body", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseCommand([]byte(tt.body))
			if !errors.Is(err, ErrUnknownCommand) {
				t.Fatalf("ParseCommand(%q) = (%v, %v), want ErrUnknownCommand", tt.body, ev, err)
			}
		})
	}
}

func TestParseCommand_HeartbeatDefaultSpeed(t *testing.T) {
	ev, err := ParseCommand([]byte(`{"type":"heartbeat"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hb := ev.(*HeartbeatEvent)
	if hb.Speed != SpeedSteady {
		t.Errorf("Speed = %q, want %q", hb.Speed, SpeedSteady)
	}
}

func TestEventJSON_CarriesDiscriminator(t *testing.T) {
	hb := NewHeartbeat(SpeedSteady)
	data, err := json.Marshal(hb)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["type"] != TypeHeartbeat {
		t.Errorf("type = %v, want %q", decoded["type"], TypeHeartbeat)
	}
	if decoded["speed"] != string(SpeedSteady) {
		t.Errorf("speed = %v, want %q", decoded["speed"], SpeedSteady)
	}
	if _, ok := decoded["at"]; !ok {
		t.Error("at field missing")
	}
}

func TestValidators(t *testing.T) {
	if !ValidPersona(PersonaEvy) || !ValidPersona(PersonaLyra) || !ValidPersona(PersonaBoth) {
		t.Error("known personas rejected")
	}
	if ValidPersona("King") || ValidPersona("") {
		t.Error("unknown persona accepted")
	}
	if !ValidRoom(RoomBloodroom) || !ValidRoom(RoomVault) || !ValidRoom(RoomGarden) || !ValidRoom(RoomTower) {
		t.Error("known rooms rejected")
	}
	if ValidRoom("Dungeon") || ValidRoom("") {
		t.Error("unknown room accepted")
	}
}
