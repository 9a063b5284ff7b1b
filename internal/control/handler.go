// Package control drives a feed over MQTT: JSON commands arrive on the
// control topic and responses are published on the status topic.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/chdown/preload/internal/config"
)

// Command represents a control plane command
type Command struct {
	Command string                 `json:"command"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// Response represents a command response
type Response struct {
	CommandAck string                 `json:"command_ack"`
	Status     string                 `json:"status"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Timestamp  string                 `json:"timestamp"`
}

// Client is the subset of mqtt.Client the handler uses.
type Client interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
}

// CommandCallbacks contains callback functions for commands.
// A nil callback makes its command answer "not implemented".
type CommandCallbacks struct {
	OnScroll        func(index int) error
	OnToggle        func() (playing bool, err error)
	OnForceAutoplay func(index int) error
	OnInsert        func(at int, uris []string) error
	OnRemove        func(at int) error
	OnReset         func(index int, autoplay bool) error
	OnGetStatus     func() map[string]interface{}
	OnShutdown      func() error
}

// Handler handles control plane commands
type Handler struct {
	cfg       *config.Config
	client    Client
	commands  chan Command
	callbacks CommandCallbacks

	// done is closed by Stop. commands is never closed: paho may still
	// deliver a message after Unsubscribe returns.
	done     chan struct{}
	stopOnce sync.Once
}

// NewHandler creates a new control plane handler
func NewHandler(cfg *config.Config, client Client, callbacks CommandCallbacks) *Handler {
	return &Handler{
		cfg:       cfg,
		client:    client,
		commands:  make(chan Command, 10),
		callbacks: callbacks,
		done:      make(chan struct{}),
	}
}

// Start subscribes to the control topic and processes commands until ctx
// is cancelled or Stop is called.
func (h *Handler) Start(ctx context.Context) error {
	topic := h.cfg.MQTT.Topics.Control
	qos := h.cfg.MQTT.QoS["control"]

	slog.Info("subscribing to control plane", "topic", topic, "qos", qos)

	token := h.client.Subscribe(topic, qos, h.messageHandler)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("control plane subscription timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("control plane subscription failed: %w", err)
	}

	slog.Info("control plane handler started")

	go h.processCommands(ctx)

	return nil
}

// Stop stops the control plane handler. Safe to call more than once.
func (h *Handler) Stop() error {
	h.stopOnce.Do(func() {
		if h.client != nil && h.client.IsConnected() {
			token := h.client.Unsubscribe(h.cfg.MQTT.Topics.Control)
			token.WaitTimeout(2 * time.Second)
		}

		close(h.done)

		slog.Info("control plane handler stopped")
	})
	return nil
}

func (h *Handler) messageHandler(_ mqtt.Client, msg mqtt.Message) {
	select {
	case <-h.done:
		slog.Debug("control plane stopped, dropping message", "topic", msg.Topic())
		return
	default:
	}

	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		slog.Error("failed to parse control command", "error", err)
		h.sendResponse(Response{
			CommandAck: "unknown",
			Status:     "error",
			Error:      "invalid JSON",
		})
		return
	}

	slog.Info("control command received", "command", cmd.Command)

	select {
	case h.commands <- cmd:
	default:
		slog.Warn("command queue full, dropping command", "command", cmd.Command)
	}
}

func (h *Handler) processCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case cmd := <-h.commands:
			h.handleCommand(cmd)
		}
	}
}

// handleCommand executes a command and publishes its response.
func (h *Handler) handleCommand(cmd Command) {
	resp := h.execute(cmd)
	h.sendResponse(resp)

	if cmd.Command == "shutdown" && resp.Status == "success" {
		// Response goes out before the process starts tearing down.
		go func() {
			time.Sleep(500 * time.Millisecond)
			if err := h.callbacks.OnShutdown(); err != nil {
				slog.Error("shutdown callback failed", "error", err)
			}
		}()
	}
}

func (h *Handler) execute(cmd Command) Response {
	resp := Response{CommandAck: cmd.Command}
	fail := func(format string, args ...interface{}) Response {
		resp.Status = "error"
		resp.Error = fmt.Sprintf(format, args...)
		return resp
	}

	switch cmd.Command {
	case "get_status":
		if h.callbacks.OnGetStatus == nil {
			return fail("get_status not implemented")
		}
		resp.Status = "success"
		resp.Data = h.callbacks.OnGetStatus()

	case "scroll":
		if h.callbacks.OnScroll == nil {
			return fail("scroll not implemented")
		}
		index, ok := intParam(cmd.Params, "index")
		if !ok {
			return fail("missing or invalid 'index' parameter (expected integer)")
		}
		if err := h.callbacks.OnScroll(index); err != nil {
			return fail("%s", err)
		}
		resp.Status = "success"
		resp.Data = map[string]interface{}{"index": index}

	case "toggle":
		if h.callbacks.OnToggle == nil {
			return fail("toggle not implemented")
		}
		playing, err := h.callbacks.OnToggle()
		if err != nil {
			return fail("%s", err)
		}
		resp.Status = "success"
		resp.Data = map[string]interface{}{"playing": playing}

	case "force_autoplay":
		if h.callbacks.OnForceAutoplay == nil {
			return fail("force_autoplay not implemented")
		}
		index, ok := intParam(cmd.Params, "index")
		if !ok {
			return fail("missing or invalid 'index' parameter (expected integer)")
		}
		if err := h.callbacks.OnForceAutoplay(index); err != nil {
			return fail("%s", err)
		}
		resp.Status = "success"
		resp.Data = map[string]interface{}{"index": index}

	case "insert":
		if h.callbacks.OnInsert == nil {
			return fail("insert not implemented")
		}
		at, ok := intParam(cmd.Params, "at")
		if !ok {
			return fail("missing or invalid 'at' parameter (expected integer)")
		}
		raw, ok := cmd.Params["uris"].([]interface{})
		if !ok || len(raw) == 0 {
			return fail("missing or invalid 'uris' parameter (expected non-empty array of strings)")
		}
		uris := make([]string, len(raw))
		for i, v := range raw {
			s, ok := v.(string)
			if !ok || s == "" {
				return fail("uris[%d] is not a non-empty string", i)
			}
			uris[i] = s
		}
		if err := h.callbacks.OnInsert(at, uris); err != nil {
			return fail("%s", err)
		}
		resp.Status = "success"
		resp.Data = map[string]interface{}{"at": at, "inserted": len(uris)}

	case "remove":
		if h.callbacks.OnRemove == nil {
			return fail("remove not implemented")
		}
		at, ok := intParam(cmd.Params, "at")
		if !ok {
			return fail("missing or invalid 'at' parameter (expected integer)")
		}
		if err := h.callbacks.OnRemove(at); err != nil {
			return fail("%s", err)
		}
		resp.Status = "success"
		resp.Data = map[string]interface{}{"at": at}

	case "reset":
		if h.callbacks.OnReset == nil {
			return fail("reset not implemented")
		}
		index := 0
		if _, present := cmd.Params["index"]; present {
			var ok bool
			if index, ok = intParam(cmd.Params, "index"); !ok {
				return fail("invalid 'index' parameter (expected integer)")
			}
		}
		autoplay, _ := cmd.Params["autoplay"].(bool)
		if err := h.callbacks.OnReset(index, autoplay); err != nil {
			return fail("%s", err)
		}
		resp.Status = "success"
		resp.Data = map[string]interface{}{"index": index, "autoplay": autoplay}

	case "shutdown":
		if h.callbacks.OnShutdown == nil {
			return fail("shutdown not implemented")
		}
		slog.Warn("shutdown command received via MQTT control plane")
		resp.Status = "success"
		resp.Data = map[string]interface{}{
			"shutdown_initiated": true,
			"message":            "graceful shutdown in progress",
		}

	default:
		return fail("unknown command: %s", cmd.Command)
	}

	return resp
}

// intParam reads a whole number from JSON params (decoded as float64).
func intParam(params map[string]interface{}, name string) (int, bool) {
	f, ok := params[name].(float64)
	if !ok || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

// sendResponse publishes a response to the status topic
func (h *Handler) sendResponse(resp Response) {
	resp.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)

	payload, err := json.Marshal(resp)
	if err != nil {
		slog.Error("failed to marshal response", "error", err)
		return
	}

	topic := h.cfg.MQTT.Topics.Status
	qos := h.cfg.MQTT.QoS["status"]

	token := h.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		slog.Error("response publish timeout")
		return
	}
	if err := token.Error(); err != nil {
		slog.Error("failed to publish response", "error", err)
		return
	}

	slog.Debug("response sent", "command_ack", resp.CommandAck, "status", resp.Status)
}
