// Package live exposes the event bus to remote clients over long-lived push
// connections: a server-sent-events stream and a WebSocket twin. Each
// connected client holds one bus subscription and one keep-alive timer, both
// released exactly once on disconnect.
package live

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bloodroom/sanctum/internal/bus"
	"github.com/bloodroom/sanctum/internal/metrics"
	"github.com/bloodroom/sanctum/internal/protocol"
)

// SSEConfig holds tunable parameters for the SSE stream.
type SSEConfig struct {
	KeepAliveInterval time.Duration // comment line cadence to defeat idle proxies
	EventBuffer       int           // per-connection event queue size
}

// DefaultSSEConfig returns production defaults.
func DefaultSSEConfig() SSEConfig {
	return SSEConfig{
		KeepAliveInterval: 15 * time.Second,
		EventBuffer:       16,
	}
}

// SSEHandler serves the GET streaming endpoint. On connect it sends one
// synthetic steady heartbeat as a hello, then forwards every bus event as a
// "data: <json>" line with an immediate flush.
type SSEHandler struct {
	bus    *bus.Bus
	config SSEConfig
	count  atomic.Int64
}

// NewSSEHandler creates an SSEHandler bound to the given bus.
func NewSSEHandler(b *bus.Bus, config SSEConfig) *SSEHandler {
	return &SSEHandler{bus: b, config: config}
}

// Count returns the number of currently connected SSE clients.
func (h *SSEHandler) Count() int {
	return int(h.count.Load())
}

func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// Forwarding goes through a buffered channel so a slow client cannot
	// stall Emit; overflow drops the event (the bus guarantees no backlog
	// anyway).
	events := make(chan protocol.Event, h.config.EventBuffer)
	subID := h.bus.Subscribe(func(ev protocol.Event) {
		select {
		case events <- ev:
		default:
		}
	})

	ticker := time.NewTicker(h.config.KeepAliveInterval)

	// Cleanup must run exactly once no matter how many signals race in:
	// context cancellation, a failed write, or both.
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			ticker.Stop()
			h.bus.Unsubscribe(subID)
			h.count.Add(-1)
			metrics.LiveConnections.WithLabelValues("sse").Dec()
		})
	}
	defer cleanup()

	h.count.Add(1)
	metrics.LiveConnections.WithLabelValues("sse").Inc()

	if err := writeEvent(w, flusher, protocol.NewHeartbeat(protocol.SpeedSteady)); err != nil {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				// Client is gone; not an application error.
				return
			}
			flusher.Flush()
		case ev := <-events:
			if err := writeEvent(w, flusher, ev); err != nil {
				return
			}
		}
	}
}

// writeEvent serializes ev as one SSE data line and flushes it. Write errors
// mean the client disconnected and are returned for the caller to bail out
// on, never logged as failures.
func writeEvent(w http.ResponseWriter, flusher http.Flusher, ev protocol.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("live: marshal %s event: %v", ev.EventType(), err)
		return nil // malformed event is dropped, connection stays up
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
