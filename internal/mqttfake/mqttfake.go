// Package mqttfake is an in-memory stand-in for the parts of an MQTT
// client the feed daemon uses. Publishes are recorded; Deliver routes a
// payload to the handler subscribed on a topic.
package mqttfake

import (
	"errors"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ErrNotSubscribed is returned by Deliver when no handler owns the topic.
var ErrNotSubscribed = errors.New("mqttfake: topic not subscribed")

// Published is one recorded publish.
type Published struct {
	Topic   string
	QoS     byte
	Payload []byte
}

// Client records publishes and routes deliveries.
type Client struct {
	mu         sync.Mutex
	published  []Published
	handlers   map[string]mqtt.MessageHandler
	publishErr error
	connected  bool
}

// NewClient returns a connected client.
func NewClient() *Client {
	return &Client{handlers: make(map[string]mqtt.MessageHandler), connected: true}
}

// FailPublishes makes every following Publish complete with err.
func (c *Client) FailPublishes(err error) {
	c.mu.Lock()
	c.publishErr = err
	c.mu.Unlock()
}

// IsConnected reports the simulated connection state.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Publish records the payload. Non-byte payloads are recorded as nil.
func (c *Client) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return doneToken(c.publishErr)
	}
	b, _ := payload.([]byte)
	c.published = append(c.published, Published{Topic: topic, QoS: qos, Payload: append([]byte(nil), b...)})
	return doneToken(nil)
}

// Subscribe registers callback for topic.
func (c *Client) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	c.handlers[topic] = callback
	c.mu.Unlock()
	return doneToken(nil)
}

// Unsubscribe removes the handlers for topics.
func (c *Client) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	for _, t := range topics {
		delete(c.handlers, t)
	}
	c.mu.Unlock()
	return doneToken(nil)
}

// Deliver calls the handler subscribed on topic with payload.
func (c *Client) Deliver(topic string, payload []byte) error {
	c.mu.Lock()
	h, ok := c.handlers[topic]
	c.mu.Unlock()
	if !ok {
		return ErrNotSubscribed
	}
	h(nil, &message{topic: topic, payload: payload})
	return nil
}

// Published returns a copy of the recorded publishes.
func (c *Client) Published() []Published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Published(nil), c.published...)
}

// OnTopic returns the recorded publishes for topic.
func (c *Client) OnTopic(topic string) []Published {
	var out []Published
	for _, p := range c.Published() {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

type token struct {
	err  error
	done chan struct{}
}

func doneToken(err error) *token {
	t := &token{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *token) Wait() bool                     { return true }
func (t *token) WaitTimeout(time.Duration) bool { return true }
func (t *token) Done() <-chan struct{}          { return t.done }
func (t *token) Error() error                   { return t.err }

// NewMessage returns a message as the broker would deliver it on topic.
func NewMessage(topic string, payload []byte) mqtt.Message {
	return &message{topic: topic, payload: payload}
}

type message struct {
	topic   string
	payload []byte
}

func (m *message) Duplicate() bool   { return false }
func (m *message) Qos() byte         { return 1 }
func (m *message) Retained() bool    { return false }
func (m *message) Topic() string     { return m.topic }
func (m *message) MessageID() uint16 { return 0 }
func (m *message) Payload() []byte   { return m.payload }
func (m *message) Ack()              {}
