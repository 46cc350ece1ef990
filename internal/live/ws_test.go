package live

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/bloodroom/sanctum/internal/bus"
	"github.com/bloodroom/sanctum/internal/protocol"
)

func dialWS(t *testing.T, httpURL string) *wsClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(httpURL, "http")
	conn, br, _, err := ws.Dial(context.Background(), url)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	// ws.Dial may hand back bytes that arrived during the handshake; drain
	// them before reading from the raw connection or early frames are lost.
	if br != nil {
		conn = &bufferedConn{Conn: conn, r: io.MultiReader(br, conn)}
	}
	return &wsClient{t: t, conn: conn}
}

// bufferedConn reads through the handshake's leftover buffer first, then the
// underlying connection.
type bufferedConn struct {
	net.Conn
	r io.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) { return c.r.Read(p) }

type wsClient struct {
	t    *testing.T
	conn net.Conn
}

func (c *wsClient) readEvent() map[string]any {
	c.t.Helper()
	data, err := wsutil.ReadServerText(c.conn)
	if err != nil {
		c.t.Fatalf("read frame: %v", err)
	}
	var ev map[string]any
	if err := json.Unmarshal(data, &ev); err != nil {
		c.t.Fatalf("decode %q: %v", data, err)
	}
	return ev
}

func TestWS_HelloFirst(t *testing.T) {
	b := bus.New()
	h := NewWSHandler(b, DefaultWSConfig())
	ts := httptest.NewServer(h)
	defer ts.Close()

	c := dialWS(t, ts.URL)

	hello := c.readEvent()
	if hello["type"] != protocol.TypeHeartbeat || hello["speed"] != string(protocol.SpeedSteady) {
		t.Errorf("hello = %v, want steady heartbeat", hello)
	}
}

func TestWS_ForwardsBusEvents(t *testing.T) {
	b := bus.New()
	h := NewWSHandler(b, DefaultWSConfig())
	ts := httptest.NewServer(h)
	defer ts.Close()

	c := dialWS(t, ts.URL)
	c.readEvent() // hello

	waitFor(t, func() bool { return b.Subscribers() == 1 }, "subscription never registered")
	b.Emit(&protocol.TouchEvent{
		Type: protocol.TypeTouch, Room: protocol.RoomBloodroom, Duration: 1200, At: 1700000000000,
	})

	ev := c.readEvent()
	if ev["type"] != protocol.TypeTouch {
		t.Errorf("forwarded type = %v, want touch", ev["type"])
	}
	if ev["duration"] != float64(1200) {
		t.Errorf("duration = %v, want 1200", ev["duration"])
	}
}

func TestWS_CleanupOnClose(t *testing.T) {
	b := bus.New()
	h := NewWSHandler(b, DefaultWSConfig())
	ts := httptest.NewServer(h)
	defer ts.Close()

	c := dialWS(t, ts.URL)
	c.readEvent() // hello
	waitFor(t, func() bool { return b.Subscribers() == 1 && h.Count() == 1 }, "connection never registered")

	c.conn.Close()
	waitFor(t, func() bool { return b.Subscribers() == 0 && h.Count() == 0 },
		"cleanup did not release the subscription")
}

func TestWS_ConnectionCap(t *testing.T) {
	b := bus.New()
	config := DefaultWSConfig()
	config.MaxConnections = 1
	h := NewWSHandler(b, config)
	ts := httptest.NewServer(h)
	defer ts.Close()

	c := dialWS(t, ts.URL)
	c.readEvent() // hello
	waitFor(t, func() bool { return h.Count() == 1 }, "first connection never registered")

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	if _, _, _, err := ws.Dial(context.Background(), url); err == nil {
		t.Error("second dial succeeded over the connection cap")
	}
}
