package live

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/bloodroom/sanctum/internal/bus"
	"github.com/bloodroom/sanctum/internal/metrics"
	"github.com/bloodroom/sanctum/internal/protocol"
)

// WSConfig holds tunable parameters for the WebSocket stream.
type WSConfig struct {
	PingInterval   time.Duration // protocol-level ping cadence
	WriteTimeout   time.Duration // deadline for each outbound frame
	MaxConnections int           // hard cap on concurrent clients
	EventBuffer    int           // per-connection event queue size
}

// DefaultWSConfig returns production defaults.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		PingInterval:   30 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxConnections: 64,
		EventBuffer:    16,
	}
}

// wsConn is one upgraded client connection. The write mutex serializes
// event frames with keep-alive pings.
type wsConn struct {
	id      string
	conn    net.Conn
	writeMu sync.Mutex
}

func (c *wsConn) writeMessage(timeout time.Duration, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if timeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
		defer func() { _ = c.conn.SetWriteDeadline(time.Time{}) }()
	}
	return wsutil.WriteServerMessage(c.conn, ws.OpText, data)
}

func (c *wsConn) writePing(timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if timeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
		defer func() { _ = c.conn.SetWriteDeadline(time.Time{}) }()
	}
	return ws.WriteFrame(c.conn, ws.NewPingFrame(nil))
}

// WSHandler serves the WebSocket variant of the live stream for clients that
// cannot hold an EventSource open. It carries the same events as the SSE
// endpoint, one JSON object per text frame, starting with the steady
// heartbeat hello.
type WSHandler struct {
	bus    *bus.Bus
	config WSConfig
	count  atomic.Int64
}

// NewWSHandler creates a WSHandler bound to the given bus.
func NewWSHandler(b *bus.Bus, config WSConfig) *WSHandler {
	return &WSHandler{bus: b, config: config}
}

// Count returns the number of currently connected WebSocket clients.
func (h *WSHandler) Count() int {
	return int(h.count.Load())
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.config.MaxConnections > 0 && h.Count() >= h.config.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Printf("live: ws upgrade failed: %v", err)
		return
	}

	c := &wsConn{id: uuid.New().String(), conn: conn}
	h.count.Add(1)
	metrics.LiveConnections.WithLabelValues("ws").Inc()

	events := make(chan protocol.Event, h.config.EventBuffer)
	subID := h.bus.Subscribe(func(ev protocol.Event) {
		select {
		case events <- ev:
		default:
		}
	})

	done := make(chan struct{})
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			close(done)
			h.bus.Unsubscribe(subID)
			_ = conn.Close()
			h.count.Add(-1)
			metrics.LiveConnections.WithLabelValues("ws").Dec()
			log.Printf("live: ws closed conn=%s (total=%d)", c.id, h.Count())
		})
	}

	// Reader goroutine: clients send nothing meaningful, but reading is how
	// close frames and pongs are consumed and disconnects detected.
	go func() {
		defer cleanup()
		for {
			if _, _, err := wsutil.ReadClientData(conn); err != nil {
				return
			}
		}
	}()

	go h.writeLoop(c, events, done, cleanup)

	log.Printf("live: ws connected conn=%s (total=%d)", c.id, h.Count())
}

func (h *WSHandler) writeLoop(c *wsConn, events <-chan protocol.Event, done <-chan struct{}, cleanup func()) {
	defer cleanup()

	hello, _ := json.Marshal(protocol.NewHeartbeat(protocol.SpeedSteady))
	if err := c.writeMessage(h.config.WriteTimeout, hello); err != nil {
		return
	}

	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.writePing(h.config.WriteTimeout); err != nil {
				return
			}
		case ev := <-events:
			data, err := json.Marshal(ev)
			if err != nil {
				log.Printf("live: marshal %s event: %v", ev.EventType(), err)
				continue
			}
			if err := c.writeMessage(h.config.WriteTimeout, data); err != nil {
				return
			}
		}
	}
}
