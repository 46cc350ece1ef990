package message

import (
	"regexp"
	"testing"
)

var hexKey = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestKey_Deterministic(t *testing.T) {
	a := Key("Queen", []string{"King", "Princess"}, "hello", 1700000000000)
	b := Key("Queen", []string{"King", "Princess"}, "hello", 1700000000000)
	if a != b {
		t.Errorf("same inputs gave %s and %s", a, b)
	}
	if !hexKey.MatchString(a) {
		t.Errorf("key %q is not a 64-char hex digest", a)
	}
}

func TestKey_RecipientOrderIndependent(t *testing.T) {
	a := Key("Queen", []string{"King", "Princess"}, "hello", 1700000000000)
	b := Key("Queen", []string{"Princess", "King"}, "hello", 1700000000000)
	if a != b {
		t.Errorf("recipient order changed the key: %s vs %s", a, b)
	}
}

func TestKey_WhitespaceInsensitive(t *testing.T) {
	a := Key("Queen", []string{"King"}, "  hello  ", 1700000000000)
	b := Key("Queen", []string{"King"}, "hello", 1700000000000)
	if a != b {
		t.Errorf("surrounding whitespace changed the key: %s vs %s", a, b)
	}

	// Interior whitespace is significant.
	c := Key("Queen", []string{"King"}, "he llo", 1700000000000)
	if c == b {
		t.Error("interior whitespace did not change the key")
	}
}

func TestKey_Sensitivity(t *testing.T) {
	base := Key("Queen", []string{"King"}, "hello", 1700000000000)

	tests := []struct {
		name string
		got  string
	}{
		{"author", Key("King", []string{"King"}, "hello", 1700000000000)},
		{"recipients", Key("Queen", []string{"Princess"}, "hello", 1700000000000)},
		{"recipient added", Key("Queen", []string{"King", "Princess"}, "hello", 1700000000000)},
		{"text", Key("Queen", []string{"King"}, "hello!", 1700000000000)},
		{"timestamp", Key("Queen", []string{"King"}, "hello", 1700000000001)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got == base {
				t.Errorf("changing %s did not change the key", tt.name)
			}
		})
	}
}

func TestKey_NoFieldBleed(t *testing.T) {
	// Field boundaries must not collide by concatenation.
	a := Key("ab", []string{"c"}, "x", 1)
	b := Key("a", []string{"bc"}, "x", 1)
	if a == b {
		t.Error("author/recipient boundary collided")
	}
}
