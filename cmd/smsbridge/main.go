package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bloodroom/sanctum/internal/sms"
)

func main() {
	natsConfig := sms.DefaultConfig()
	natsConfig.Name = "sanctum-smsbridge"
	if v := os.Getenv("NATS_URL"); v != "" {
		natsConfig.URL = v
	}

	bridgeConfig := sms.DefaultBridgeConfig()
	bridgeConfig.GatewayURL = os.Getenv("SMS_GATEWAY_URL")
	if bridgeConfig.GatewayURL == "" {
		log.Fatal("SMS_GATEWAY_URL must be set")
	}
	bridgeConfig.GatewayToken = os.Getenv("SMS_GATEWAY_TOKEN")
	if v := os.Getenv("SMS_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			bridgeConfig.Timeout = d
		}
	}

	queue, err := sms.Connect(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}
	defer queue.Close()

	log.Printf("sms bridge starting")
	log.Printf("  nats_url:    %s", natsConfig.URL)
	log.Printf("  gateway_url: %s", bridgeConfig.GatewayURL)
	log.Printf("  timeout:     %s", bridgeConfig.Timeout)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bridge := sms.NewBridge(bridgeConfig)
	if err := bridge.Run(ctx, queue.Conn()); err != nil {
		log.Fatalf("bridge stopped: %v", err)
	}
	log.Printf("sms bridge stopped")
}
