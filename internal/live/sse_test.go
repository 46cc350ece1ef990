package live

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bloodroom/sanctum/internal/bus"
	"github.com/bloodroom/sanctum/internal/protocol"
)

// openStream connects to an SSE test server and returns a line reader plus a
// cancel func that drops the connection.
func openStream(t *testing.T, url string) (*bufio.Reader, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		resp.Body.Close()
	})

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q, want text/event-stream", ct)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-cache, no-transform" {
		t.Fatalf("Cache-Control = %q", cc)
	}
	return bufio.NewReader(resp.Body), cancel
}

// readEvent reads lines until it finds the next "data:" payload.
func readEvent(t *testing.T, r *bufio.Reader) map[string]any {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		return ev
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestSSE_HelloFirst(t *testing.T) {
	b := bus.New()
	h := NewSSEHandler(b, DefaultSSEConfig())
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	r, _ := openStream(t, ts.URL)

	hello := readEvent(t, r)
	if hello["type"] != protocol.TypeHeartbeat {
		t.Errorf("first event type = %v, want heartbeat", hello["type"])
	}
	if hello["speed"] != string(protocol.SpeedSteady) {
		t.Errorf("hello speed = %v, want steady", hello["speed"])
	}
	if _, ok := hello["at"].(float64); !ok {
		t.Errorf("hello at = %v, want a number", hello["at"])
	}
}

func TestSSE_ForwardsBusEvents(t *testing.T) {
	b := bus.New()
	h := NewSSEHandler(b, DefaultSSEConfig())
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	r, _ := openStream(t, ts.URL)
	readEvent(t, r) // hello

	waitFor(t, func() bool { return b.Subscribers() == 1 }, "subscription never registered")
	b.Emit(&protocol.FlareEvent{Type: protocol.TypeFlare, Room: protocol.RoomGarden, At: 1700000000000})

	ev := readEvent(t, r)
	if ev["type"] != protocol.TypeFlare {
		t.Errorf("forwarded type = %v, want flare", ev["type"])
	}
	if ev["room"] != string(protocol.RoomGarden) {
		t.Errorf("forwarded room = %v, want Garden", ev["room"])
	}
}

func TestSSE_KeepAlive(t *testing.T) {
	b := bus.New()
	config := SSEConfig{KeepAliveInterval: 20 * time.Millisecond, EventBuffer: 4}
	h := NewSSEHandler(b, config)
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	r, _ := openStream(t, ts.URL)
	readEvent(t, r) // hello

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		if strings.TrimSpace(line) == ": keep-alive" {
			return
		}
	}
	t.Fatal("no keep-alive comment within deadline")
}

func TestSSE_CleanupOnDisconnect(t *testing.T) {
	b := bus.New()
	h := NewSSEHandler(b, DefaultSSEConfig())
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	_, cancel := openStream(t, ts.URL)
	waitFor(t, func() bool { return b.Subscribers() == 1 && h.Count() == 1 }, "connection never registered")

	cancel()
	waitFor(t, func() bool { return b.Subscribers() == 0 && h.Count() == 0 },
		"cleanup did not release the subscription")

	// A second connection gets a fresh subscription, proving the registry is
	// not corrupted by repeated cleanup paths.
	_, cancel2 := openStream(t, ts.URL)
	waitFor(t, func() bool { return b.Subscribers() == 1 }, "second connection never registered")
	cancel2()
	waitFor(t, func() bool { return b.Subscribers() == 0 }, "second cleanup did not run")
}

func TestSSE_ManyClients(t *testing.T) {
	b := bus.New()
	h := NewSSEHandler(b, DefaultSSEConfig())
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	const n = 4
	readers := make([]*bufio.Reader, n)
	for i := range readers {
		r, _ := openStream(t, ts.URL)
		readEvent(t, r) // hello
		readers[i] = r
	}
	waitFor(t, func() bool { return b.Subscribers() == n }, "clients never all registered")

	b.Emit(&protocol.ChantEvent{
		Type: protocol.TypeChant, Room: protocol.RoomBloodroom,
		Voices: protocol.PersonaBoth, At: 1700000000000,
	})

	for i, r := range readers {
		ev := readEvent(t, r)
		if ev["type"] != protocol.TypeChant {
			t.Errorf("client %d got type %v, want chant", i, ev["type"])
		}
	}
}
