package sms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDeliver(t *testing.T) {
	var got Job
	var auth string
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("gateway decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	b := NewBridge(BridgeConfig{
		GatewayURL:   gateway.URL,
		GatewayToken: "secret",
		Timeout:      2 * time.Second,
	})

	job := Job{To: "+15550001111", Body: "Queen left you a message", At: 1700000000000}
	if err := b.Deliver(context.Background(), job); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if got != job {
		t.Errorf("gateway received %+v, want %+v", got, job)
	}
	if auth != "Bearer secret" {
		t.Errorf("Authorization = %q", auth)
	}
}

func TestDeliver_GatewayError(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer gateway.Close()

	b := NewBridge(BridgeConfig{GatewayURL: gateway.URL, Timeout: 2 * time.Second})
	if err := b.Deliver(context.Background(), Job{To: "+15550001111"}); err == nil {
		t.Error("expected error on gateway 502")
	}
}

func TestBridge_EndToEnd(t *testing.T) {
	queue, err := Connect(DefaultConfig())
	if err != nil {
		t.Skipf("nats not available: %v", err)
	}
	defer queue.Close()

	delivered := make(chan Job, 1)
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var job Job
		_ = json.NewDecoder(r.Body).Decode(&job)
		delivered <- job
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewBridge(BridgeConfig{GatewayURL: gateway.URL, Timeout: 2 * time.Second})
	go func() {
		if err := b.Run(ctx, queue.Conn()); err != nil {
			t.Logf("bridge run: %v", err)
		}
	}()
	time.Sleep(100 * time.Millisecond) // let the subscription register

	want := Job{To: "+15550002222", Body: "ping", At: 1700000000000}
	if err := queue.Enqueue(want); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	select {
	case got := <-delivered:
		if got != want {
			t.Errorf("delivered %+v, want %+v", got, want)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("job never delivered")
	}
}
