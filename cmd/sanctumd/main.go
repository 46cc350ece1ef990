package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/bloodroom/sanctum/internal/bus"
	"github.com/bloodroom/sanctum/internal/live"
	"github.com/bloodroom/sanctum/internal/message"
	"github.com/bloodroom/sanctum/internal/notes"
	"github.com/bloodroom/sanctum/internal/presence"
	"github.com/bloodroom/sanctum/internal/server"
	"github.com/bloodroom/sanctum/internal/session"
	"github.com/bloodroom/sanctum/internal/sms"
	"github.com/bloodroom/sanctum/internal/vaultindex"
	"github.com/bloodroom/sanctum/internal/wall"
)

func main() {
	listenAddr := ":8080"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		listenAddr = v
	}
	dataDir := "./data"
	if v := os.Getenv("DATA_DIR"); v != "" {
		dataDir = v
	}

	config := server.DefaultConfig()
	config.HouseKey = os.Getenv("SANCTUM_HOUSE_KEY")
	if config.HouseKey == "" {
		log.Fatal("SANCTUM_HOUSE_KEY must be set")
	}
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			config.MaxUpload = n
		}
	}
	config.SMSNumbers = map[message.Member]string{}
	for member, envKey := range map[message.Member]string{
		message.MemberKing:     "SMS_PHONE_KING",
		message.MemberQueen:    "SMS_PHONE_QUEEN",
		message.MemberPrincess: "SMS_PHONE_PRINCESS",
	} {
		if v := os.Getenv(envKey); v != "" {
			config.SMSNumbers[member] = v
		}
	}

	sseConfig := live.DefaultSSEConfig()
	if v := os.Getenv("KEEPALIVE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			sseConfig.KeepAliveInterval = d
		}
	}
	wsConfig := live.DefaultWSConfig()
	if v := os.Getenv("MAX_WS_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			wsConfig.MaxConnections = n
		}
	}

	// --- Redis sessions ---
	redisAddr := "localhost:6379"
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		redisAddr = v
	}
	sessions, err := session.NewStore(redisAddr)
	if err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	defer sessions.Close()

	// --- File stores ---
	messages, err := message.NewStore(dataDir)
	if err != nil {
		log.Fatalf("failed to open message store: %v", err)
	}
	walls, err := wall.NewStore(filepath.Join(dataDir, "walls"))
	if err != nil {
		log.Fatalf("failed to open wall store: %v", err)
	}
	notePad, err := notes.NewStore(filepath.Join(dataDir, "notes"))
	if err != nil {
		log.Fatalf("failed to open notes store: %v", err)
	}

	// --- Optional SMS queue (NATS) ---
	var notifier server.Notifier
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		smsConfig := sms.DefaultConfig()
		smsConfig.URL = natsURL
		queue, err := sms.Connect(smsConfig)
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
		defer queue.Close()
		notifier = queue
	} else {
		log.Printf("NATS_URL not set, SMS nudges disabled")
	}

	// --- Optional vault index (PostgreSQL) ---
	var index server.Index
	if dsn := os.Getenv("VAULT_INDEX_DSN"); dsn != "" {
		idx, err := vaultindex.Open(dsn)
		if err != nil {
			log.Fatalf("failed to open vault index: %v", err)
		}
		defer idx.Close()
		index = idx
	} else {
		log.Printf("VAULT_INDEX_DSN not set, vault index disabled")
	}

	eventBus := bus.New()
	tracker := presence.NewTracker()
	sse := live.NewSSEHandler(eventBus, sseConfig)
	wsHandler := live.NewWSHandler(eventBus, wsConfig)

	srv := server.New(config, eventBus, tracker, messages, walls, notePad,
		sessions, notifier, index, sse, wsHandler)

	log.Printf("sanctum server starting")
	log.Printf("  listen_addr:   %s", listenAddr)
	log.Printf("  data_dir:      %s", dataDir)
	log.Printf("  redis_addr:    %s", redisAddr)
	log.Printf("  keepalive:     %s", sseConfig.KeepAliveInterval)
	log.Printf("  sms:           %v", notifier != nil)
	log.Printf("  vault_index:   %v", index != nil)

	httpServer := &http.Server{
		Addr:    listenAddr,
		Handler: srv.Handler(),
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Printf("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
	log.Printf("server stopped")
}
