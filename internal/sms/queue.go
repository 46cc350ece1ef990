// Package sms bridges message sends to outbound text notifications. The
// server publishes jobs to a NATS subject; the bridge worker consumes them
// and delivers through an HTTP SMS gateway.
package sms

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectOutbound is the NATS subject carrying outbound SMS jobs.
const SubjectOutbound = "sms.outbound"

// QueueGroup makes bridge workers share the subscription so each job is
// delivered once even with several bridges running.
const QueueGroup = "smsbridge"

// Job is one outbound text notification.
type Job struct {
	To   string `json:"to"`   // E.164 phone number
	Body string `json:"body"` // message text
	At   int64  `json:"at"`   // enqueue time, milliseconds since epoch
}

// Config holds NATS connection settings.
type Config struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           "nats://localhost:4222",
		Name:          "sanctum",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// Queue is the publishing side of the SMS bridge.
type Queue struct {
	conn *nats.Conn
}

// Connect dials NATS with the given config and returns a ready Queue. It
// returns an error if the initial connection fails.
func Connect(config Config) (*Queue, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("sms: nats disconnected: %v", err)
			} else {
				log.Printf("sms: nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("sms: nats reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("sms: nats connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("sms: nats connect: %w", err)
	}

	log.Printf("sms: connected to %s", nc.ConnectedUrl())
	return &Queue{conn: nc}, nil
}

// Enqueue publishes one job to the outbound subject.
func (q *Queue) Enqueue(job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("sms: marshal job: %w", err)
	}
	if err := q.conn.Publish(SubjectOutbound, data); err != nil {
		return fmt.Errorf("sms: publish: %w", err)
	}
	return nil
}

// Conn exposes the underlying NATS connection for the bridge worker.
func (q *Queue) Conn() *nats.Conn {
	return q.conn
}

// Close drains and closes the NATS connection.
func (q *Queue) Close() {
	if err := q.conn.Drain(); err != nil {
		q.conn.Close()
	}
}
