package emitter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/chdown/preload"
	"github.com/chdown/preload/internal/config"
)

const queueSize = 256

// Publisher is the subset of mqtt.Client the emitter publishes through.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTEmitter publishes manager events to an MQTT broker.
//
// Emit never blocks: events are queued and published by Run. When the
// queue is full the event is dropped and counted.
type MQTTEmitter struct {
	cfg    *config.Config
	Client mqtt.Client // Exported for control plane

	pub   Publisher
	queue chan preload.Event

	mu        sync.RWMutex
	published map[string]uint64 // count per topic
	errors    uint64
	dropped   uint64
	connected bool
}

// NewMQTTEmitter creates a new MQTT emitter
func NewMQTTEmitter(cfg *config.Config) *MQTTEmitter {
	return &MQTTEmitter{
		cfg:       cfg,
		queue:     make(chan preload.Event, queueSize),
		published: make(map[string]uint64),
	}
}

// Connect establishes connection to MQTT broker
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	broker := e.cfg.MQTT.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(e.cfg.MQTT.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.setConnected(true)
		slog.Info("mqtt connection established",
			"broker", broker,
			"client_id", e.cfg.MQTT.ClientID)
	}

	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.setConnected(false)
		slog.Warn("mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", broker)
	}

	e.Client = mqtt.NewClient(opts)
	e.pub = e.Client

	slog.Info("connecting to mqtt broker", "broker", broker)

	token := e.Client.Connect()
	select {
	case <-token.Done():
	case <-time.After(5 * time.Second):
		return fmt.Errorf("mqtt connection timeout")
	case <-ctx.Done():
		return fmt.Errorf("mqtt connection cancelled: %w", ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.setConnected(true)
	return nil
}

// Emit queues an event for publication. Implements preload.EventSink.
func (e *MQTTEmitter) Emit(ev preload.Event) {
	select {
	case e.queue <- ev:
	default:
		e.mu.Lock()
		e.dropped++
		e.mu.Unlock()
	}
}

// Queue returns the channel Emit feeds, for fan-out buses that deliver
// without blocking themselves.
func (e *MQTTEmitter) Queue() chan<- preload.Event {
	return e.queue
}

// Run publishes queued events until ctx is cancelled, then flushes what
// is left in the queue.
func (e *MQTTEmitter) Run(ctx context.Context) {
	for {
		select {
		case ev := <-e.queue:
			e.publishEvent(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-e.queue:
					e.publishEvent(ev)
				default:
					return
				}
			}
		}
	}
}

func (e *MQTTEmitter) publishEvent(ev preload.Event) {
	if err := e.Publish(ev); err != nil {
		slog.Debug("event publish failed", "kind", ev.Kind, "error", err)
	}
}

// Publish publishes one event to {events topic}/{kind}.
func (e *MQTTEmitter) Publish(ev preload.Event) error {
	payload, err := Encode(e.cfg.Feed.ID, ev)
	if err != nil {
		e.countError()
		return err
	}

	topic := fmt.Sprintf("%s/%s", e.cfg.MQTT.Topics.Events, ev.Kind)
	return e.publish(topic, e.cfg.MQTT.QoS["events"], payload)
}

// PublishStatus publishes a status payload
func (e *MQTTEmitter) PublishStatus(payload []byte) error {
	return e.publish(e.cfg.MQTT.Topics.Status, e.cfg.MQTT.QoS["status"], payload)
}

func (e *MQTTEmitter) publish(topic string, qos byte, payload []byte) error {
	if !e.isConnected() {
		e.countError()
		return fmt.Errorf("mqtt not connected")
	}

	token := e.pub.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		e.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()

	slog.Debug("mqtt message published",
		"topic", topic,
		"qos", qos,
		"size", len(payload),
	)
	return nil
}

// Disconnect closes the MQTT connection
func (e *MQTTEmitter) Disconnect() error {
	if e.Client != nil && e.Client.IsConnected() {
		e.Client.Disconnect(250) // 250ms grace period
		slog.Info("mqtt disconnected")
	}

	e.setConnected(false)
	return nil
}

// Stats returns emitter statistics
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}

	return Stats{
		Connected: e.connected,
		Published: published,
		Errors:    e.errors,
		Dropped:   e.dropped,
	}
}

// Stats contains emitter statistics
type Stats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
	Dropped   uint64 // events lost to a full queue
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
