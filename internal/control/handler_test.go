package control

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/chdown/preload"
	"github.com/chdown/preload/internal/config"
	"github.com/chdown/preload/internal/mqttfake"
	"github.com/chdown/preload/internal/simplayer"
)

const (
	controlTopic = "feed/control/test"
	statusTopic  = "feed/status/test"
)

func testConfig() *config.Config {
	return &config.Config{
		InstanceID: "test",
		MQTT: config.MQTTConfig{
			Topics: config.MQTTTopics{Control: controlTopic, Status: statusTopic},
			QoS:    map[string]byte{"control": 1, "status": 1},
		},
	}
}

type harness struct {
	m      *preload.Manager[string]
	fleet  *simplayer.Fleet
	client *mqttfake.Client
	h      *Handler
}

func newHarness(t *testing.T, n int) *harness {
	t.Helper()

	items := make([]string, n)
	for i := range items {
		items[i] = fmt.Sprintf("item-%d", i)
	}
	fleet := simplayer.NewFleet(simplayer.Options{})
	m, err := preload.New(items, func(uri string) preload.Player { return fleet.New(uri) },
		preload.Config[string]{Backward: 1, Forward: 1})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		m.Dispose(context.Background())
	})

	client := mqttfake.NewClient()
	b := Binding[string]{
		Manager: m,
		NewItem: func(uri string) string { return uri },
	}
	h := NewHandler(testConfig(), client, b.Callbacks(ctx))
	if err := h.Start(ctx); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	return &harness{m: m, fleet: fleet, client: client, h: h}
}

// send delivers a command and waits for its response.
func (hs *harness) send(t *testing.T, payload string) Response {
	t.Helper()

	before := len(hs.client.OnTopic(statusTopic))
	if err := hs.client.Deliver(controlTopic, []byte(payload)); err != nil {
		t.Fatalf("Deliver() failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		got := hs.client.OnTopic(statusTopic)
		if len(got) > before {
			var resp Response
			if err := json.Unmarshal(got[before].Payload, &resp); err != nil {
				t.Fatalf("response is not JSON: %v", err)
			}
			return resp
		}
		if time.Now().After(deadline) {
			t.Fatalf("no response to %s", payload)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestScrollCommand(t *testing.T) {
	hs := newHarness(t, 6)

	resp := hs.send(t, `{"command":"scroll","params":{"index":3}}`)
	if resp.Status != "success" || resp.CommandAck != "scroll" {
		t.Fatalf("response = %+v, want scroll success", resp)
	}
	if hs.m.ActiveIndex() != 3 {
		t.Errorf("ActiveIndex() = %d, want 3", hs.m.ActiveIndex())
	}
	if w := hs.m.Window(); w != (preload.Window{Start: 2, End: 5}) {
		t.Errorf("Window() = %+v, want [2,5)", w)
	}
	if resp.Timestamp == "" {
		t.Error("response has no timestamp")
	}
}

func TestCommandErrors(t *testing.T) {
	hs := newHarness(t, 3)

	tests := []struct {
		name    string
		payload string
		ack     string
		want    string
	}{
		{"invalid json", `{"command":`, "unknown", "invalid JSON"},
		{"unknown command", `{"command":"rewind"}`, "rewind", "unknown command: rewind"},
		{"missing index", `{"command":"scroll"}`, "scroll", "missing or invalid 'index'"},
		{"fractional index", `{"command":"scroll","params":{"index":1.5}}`, "scroll", "missing or invalid 'index'"},
		{"out of range", `{"command":"scroll","params":{"index":9}}`, "scroll", "index 9 out of range"},
		{"empty uris", `{"command":"insert","params":{"at":0,"uris":[]}}`, "insert", "'uris'"},
		{"bad uri", `{"command":"insert","params":{"at":0,"uris":["a",3]}}`, "insert", "uris[1]"},
		{"remove out of range", `{"command":"remove","params":{"at":3}}`, "remove", "out of range"},
		{"shutdown unbound", `{"command":"shutdown"}`, "shutdown", "shutdown not implemented"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := hs.send(t, tt.payload)
			if resp.Status != "error" || resp.CommandAck != tt.ack {
				t.Fatalf("response = %+v, want error ack %q", resp, tt.ack)
			}
			if !strings.Contains(resp.Error, tt.want) {
				t.Errorf("Error = %q, want it to contain %q", resp.Error, tt.want)
			}
		})
	}
}

func TestInsertRemoveCommands(t *testing.T) {
	hs := newHarness(t, 4)
	hs.send(t, `{"command":"scroll","params":{"index":2}}`)

	resp := hs.send(t, `{"command":"insert","params":{"at":0,"uris":["new-a","new-b"]}}`)
	if resp.Status != "success" {
		t.Fatalf("insert response = %+v", resp)
	}
	if hs.m.Len() != 6 || hs.m.ActiveIndex() != 4 {
		t.Errorf("after insert Len() = %d ActiveIndex() = %d, want 6 and 4", hs.m.Len(), hs.m.ActiveIndex())
	}
	if items := hs.m.Items(); items[0] != "new-a" || items[1] != "new-b" {
		t.Errorf("Items() = %v, want inserted URIs first", items)
	}

	resp = hs.send(t, `{"command":"remove","params":{"at":0}}`)
	if resp.Status != "success" {
		t.Fatalf("remove response = %+v", resp)
	}
	if hs.m.Len() != 5 || hs.m.ActiveIndex() != 3 {
		t.Errorf("after remove Len() = %d ActiveIndex() = %d, want 5 and 3", hs.m.Len(), hs.m.ActiveIndex())
	}
}

func TestToggleAndStatus(t *testing.T) {
	hs := newHarness(t, 3)
	hs.send(t, `{"command":"scroll","params":{"index":1}}`)

	resp := hs.send(t, `{"command":"toggle"}`)
	if resp.Status != "success" || resp.Data["playing"] != false {
		t.Fatalf("first toggle = %+v, want paused", resp)
	}
	resp = hs.send(t, `{"command":"toggle"}`)
	if resp.Data["playing"] != true {
		t.Fatalf("second toggle = %+v, want playing", resp)
	}

	resp = hs.send(t, `{"command":"get_status"}`)
	if resp.Status != "success" {
		t.Fatalf("get_status = %+v", resp)
	}
	// JSON numbers decode as float64.
	if resp.Data["active_index"] != float64(1) || resp.Data["playing"] != float64(1) {
		t.Errorf("status data = %v, want active 1 with 1 playing", resp.Data)
	}
}

func TestResetAndForceAutoplay(t *testing.T) {
	hs := newHarness(t, 5)

	resp := hs.send(t, `{"command":"reset","params":{"index":4,"autoplay":true}}`)
	if resp.Status != "success" {
		t.Fatalf("reset = %+v", resp)
	}
	if hs.m.ActiveIndex() != 4 {
		t.Errorf("ActiveIndex() after reset = %d, want 4", hs.m.ActiveIndex())
	}

	resp = hs.send(t, `{"command":"force_autoplay","params":{"index":0}}`)
	if resp.Status != "success" {
		t.Fatalf("force_autoplay = %+v", resp)
	}
	if hs.m.ActiveIndex() != 0 {
		t.Errorf("ActiveIndex() = %d, want 0", hs.m.ActiveIndex())
	}
	if playing := hs.fleet.Playing(); len(playing) != 1 || playing[0].URI() != "item-0" {
		t.Errorf("playing = %v, want only item-0", playing)
	}
}

func TestStop(t *testing.T) {
	hs := newHarness(t, 1)
	if err := hs.h.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if err := hs.client.Deliver(controlTopic, []byte(`{}`)); err != mqttfake.ErrNotSubscribed {
		t.Errorf("Deliver() after Stop = %v, want ErrNotSubscribed", err)
	}
}

// TestMessageAfterStop covers a message the client dispatches after the
// handler unsubscribed, and a repeated Stop.
func TestMessageAfterStop(t *testing.T) {
	hs := newHarness(t, 2)
	before := len(hs.client.OnTopic(statusTopic))

	if err := hs.h.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if err := hs.h.Stop(); err != nil {
		t.Fatalf("second Stop() failed: %v", err)
	}

	hs.h.messageHandler(nil, mqttfake.NewMessage(controlTopic, []byte(`{"command":"scroll","params":{"index":1}}`)))
	hs.h.messageHandler(nil, mqttfake.NewMessage(controlTopic, []byte(`not json`)))

	time.Sleep(20 * time.Millisecond)
	if got := len(hs.client.OnTopic(statusTopic)); got != before {
		t.Errorf("responses after Stop = %d, want %d", got-before, 0)
	}
	if got := hs.m.ActiveIndex(); got != -1 {
		t.Errorf("ActiveIndex() = %d, want -1 (command after Stop executed)", got)
	}
}
