package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
)

// BridgeConfig holds delivery settings for the bridge worker.
type BridgeConfig struct {
	GatewayURL   string        // SMS gateway endpoint, POSTed one job per request
	GatewayToken string        // bearer token, optional
	Timeout      time.Duration // per-delivery HTTP timeout
}

// DefaultBridgeConfig returns sensible defaults (gateway URL must be set by
// the caller).
func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		Timeout: 10 * time.Second,
	}
}

// Bridge consumes outbound jobs from NATS and delivers them to the HTTP SMS
// gateway. Delivery is best effort: a failed POST is logged and the job
// dropped, matching the rest of the system's no-durability stance.
type Bridge struct {
	config BridgeConfig
	client *http.Client
}

// NewBridge creates a Bridge with the given delivery config.
func NewBridge(config BridgeConfig) *Bridge {
	return &Bridge{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// Run subscribes to the outbound subject on nc and delivers jobs until ctx is
// cancelled.
func (b *Bridge) Run(ctx context.Context, nc *nats.Conn) error {
	sub, err := nc.QueueSubscribe(SubjectOutbound, QueueGroup, func(msg *nats.Msg) {
		var job Job
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			log.Printf("sms: bad job payload: %v", err)
			return
		}
		if err := b.Deliver(ctx, job); err != nil {
			log.Printf("sms: deliver to %s failed: %v", job.To, err)
			return
		}
		log.Printf("sms: delivered to %s (%d chars)", job.To, len(job.Body))
	})
	if err != nil {
		return fmt.Errorf("sms: subscribe %s: %w", SubjectOutbound, err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("sms: drain subscription: %w", err)
	}
	return nil
}

// Deliver POSTs one job to the gateway as JSON.
func (b *Bridge) Deliver(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("sms: marshal delivery: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.config.GatewayURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("sms: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.config.GatewayToken != "" {
		req.Header.Set("Authorization", "Bearer "+b.config.GatewayToken)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms: post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("sms: gateway returned %s", resp.Status)
	}
	return nil
}
