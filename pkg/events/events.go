// Package events publishes lockout transitions to an MQTT broker so other
// devices (a desk lamp, a dashboard) can react to them.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/teslashibe/go-posture/pkg/camera"
	"github.com/teslashibe/go-posture/pkg/lockout"
)

// DefaultTopic is the topic pattern; {session_id} is replaced with the
// capture session ID.
const DefaultTopic = "posture/{session_id}/lockout"

// ErrNotConnected is returned when publishing while the broker is down.
var ErrNotConnected = errors.New("events: mqtt not connected")

// Client is the part of mqtt.Client the emitter uses.
type Client interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Config holds broker and topic settings.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string

	// Topic pattern, see DefaultTopic.
	Topic string

	QoS            byte
	PublishTimeout time.Duration
	ConnectTimeout time.Duration

	// Queue is how many events may wait for the publisher.
	Queue int
}

// DefaultConfig returns QoS 1 publishing to DefaultTopic.
func DefaultConfig() Config {
	return Config{
		ClientID:       "go-posture",
		Topic:          DefaultTopic,
		QoS:            1,
		PublishTimeout: 2 * time.Second,
		ConnectTimeout: 5 * time.Second,
		Queue:          32,
	}
}

// Payload is the JSON body of one lockout event.
type Payload struct {
	SessionID  string        `json:"session_id"`
	State      lockout.State `json:"state"`
	Transition string        `json:"transition"`
	BadSince   time.Time     `json:"bad_since,omitzero"`
	LockedAt   time.Time     `json:"locked_at,omitzero"`
	At         time.Time     `json:"at"`
}

// Emitter queues lockout events and publishes them from Start.
type Emitter struct {
	client Client
	cfg    Config
	logger *slog.Logger

	queue chan Payload

	mu      sync.RWMutex
	session string

	published atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// New wraps an existing client.
func New(client Client, cfg Config, logger *slog.Logger) *Emitter {
	def := DefaultConfig()
	if cfg.Topic == "" {
		cfg.Topic = def.Topic
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = def.PublishTimeout
	}
	if cfg.Queue <= 0 {
		cfg.Queue = def.Queue
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{
		client:  client,
		cfg:     cfg,
		logger:  logger.With("component", "events"),
		queue:   make(chan Payload, cfg.Queue),
		session: "unknown",
	}
}

// Connect dials the broker and returns an emitter over the connection.
// Reconnects happen in the background.
func Connect(cfg Config, logger *slog.Logger) (*Emitter, error) {
	if cfg.Broker == "" {
		return nil, errors.New("events: broker is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConfig().ConnectTimeout
	}
	log := logger.With("component", "events")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info("mqtt connection established", "broker", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost, will auto-reconnect", "error", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("events: connect to %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("events: connect to %s: %w", cfg.Broker, err)
	}

	return New(client, cfg, logger), nil
}

// SetSession sets the session ID used in topics. Register it with
// camera.Manager.OnSessionChange.
func (e *Emitter) SetSession(s *camera.Session) {
	if s == nil {
		return
	}
	e.mu.Lock()
	e.session = s.ID
	e.mu.Unlock()
}

// Observe queues a lockout event. Register it with
// lockout.Controller.OnTransition. Never blocks; events are dropped when
// the queue is full.
func (e *Emitter) Observe(ev lockout.Event) {
	e.mu.RLock()
	session := e.session
	e.mu.RUnlock()

	p := Payload{
		SessionID:  session,
		State:      ev.Snapshot.State,
		Transition: ev.Transition.String(),
		BadSince:   ev.Snapshot.BadSince,
		LockedAt:   ev.Snapshot.LockedAt,
		At:         ev.At,
	}

	select {
	case e.queue <- p:
	default:
		e.dropped.Add(1)
		e.logger.Warn("event queue full, dropping", "transition", p.Transition)
	}
}

// Start publishes queued events until ctx is done, then drains what is
// left.
func (e *Emitter) Start(ctx context.Context) {
	e.logger.Info("publisher started", "topic", e.cfg.Topic)
	for {
		select {
		case <-ctx.Done():
			e.drain()
			e.logger.Info("publisher stopped")
			return
		case p := <-e.queue:
			if err := e.Publish(p); err != nil {
				e.logger.Warn("publish lockout event", "error", err)
			}
		}
	}
}

func (e *Emitter) drain() {
	for {
		select {
		case p := <-e.queue:
			if err := e.Publish(p); err != nil {
				e.logger.Warn("publish lockout event", "error", err)
			}
		default:
			return
		}
	}
}

// Publish sends one payload and waits for the broker acknowledgement.
func (e *Emitter) Publish(p Payload) error {
	if !e.client.IsConnected() {
		e.failed.Add(1)
		return ErrNotConnected
	}

	data, err := json.Marshal(p)
	if err != nil {
		e.failed.Add(1)
		return fmt.Errorf("events: marshal: %w", err)
	}

	topic := FormatTopic(e.cfg.Topic, p.SessionID)
	token := e.client.Publish(topic, e.cfg.QoS, false, data)
	if !token.WaitTimeout(e.cfg.PublishTimeout) {
		e.failed.Add(1)
		return fmt.Errorf("events: publish to %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		e.failed.Add(1)
		return fmt.Errorf("events: publish to %s: %w", topic, err)
	}

	e.published.Add(1)
	e.logger.Debug("published lockout event", "topic", topic, "state", p.State)
	return nil
}

// Stats reports publish counters.
func (e *Emitter) Stats() (published, failed, dropped uint64) {
	return e.published.Load(), e.failed.Load(), e.dropped.Load()
}

// Close publishes anything still queued, such as the disengage raised
// during shutdown, then disconnects from the broker.
func (e *Emitter) Close() {
	e.drain()
	e.client.Disconnect(250)
}

// FormatTopic replaces the {session_id} placeholder.
func FormatTopic(pattern, sessionID string) string {
	return strings.ReplaceAll(pattern, "{session_id}", sessionID)
}
