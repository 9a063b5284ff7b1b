package emitter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chdown/preload"
	"github.com/chdown/preload/internal/config"
	"github.com/chdown/preload/internal/mqttfake"
)

func testConfig() *config.Config {
	return &config.Config{
		InstanceID: "test",
		Feed:       config.FeedConfig{ID: "home"},
		MQTT: config.MQTTConfig{
			Broker: "localhost:1883",
			Topics: config.MQTTTopics{Events: "feed/events/test", Status: "feed/status/test"},
			QoS:    map[string]byte{"events": 0, "status": 1},
		},
	}
}

func connectedEmitter(t *testing.T) (*MQTTEmitter, *mqttfake.Client) {
	t.Helper()
	client := mqttfake.NewClient()
	e := NewMQTTEmitter(testConfig())
	e.pub = client
	e.setConnected(true)
	return e, client
}

func TestEncodeDecode(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_123)
	ev := preload.Event{
		Kind:         preload.EventPlaybackFailed,
		Index:        4,
		ControllerID: "c-1",
		Source:       "file:///a.mp4",
		Window:       preload.Window{Start: 3, End: 6},
		Err:          errors.New("codec not found"),
		At:           at,
	}

	payload, err := Encode("home", ev)
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	r, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}

	want := Record{
		Feed:         "home",
		Kind:         "playback_failed",
		Index:        4,
		ControllerID: "c-1",
		Source:       "file:///a.mp4",
		WindowStart:  3,
		WindowEnd:    6,
		Error:        "codec not found",
		AtUnixMs:     at.UnixMilli(),
	}
	if r != want {
		t.Errorf("Decode() = %+v, want %+v", r, want)
	}
}

func TestDecodeGarbage(t *testing.T) {
	if _, err := Decode([]byte{0xc1}); err == nil {
		t.Error("Decode() of an invalid payload succeeded")
	}
}

func TestPublishTopicPerKind(t *testing.T) {
	e, client := connectedEmitter(t)

	if err := e.Publish(preload.Event{Kind: preload.EventActiveChanged, Index: 2}); err != nil {
		t.Fatalf("Publish() failed: %v", err)
	}

	got := client.OnTopic("feed/events/test/active_changed")
	if len(got) != 1 {
		t.Fatalf("published %d messages on the kind topic, want 1 (all: %+v)", len(got), client.Published())
	}
	r, err := Decode(got[0].Payload)
	if err != nil {
		t.Fatal(err)
	}
	if r.Index != 2 || r.Feed != "home" {
		t.Errorf("record = %+v, want index 2 feed home", r)
	}
	if e.Stats().Published["feed/events/test/active_changed"] != 1 {
		t.Errorf("Stats().Published = %v", e.Stats().Published)
	}
}

func TestPublishErrors(t *testing.T) {
	e := NewMQTTEmitter(testConfig())
	if err := e.Publish(preload.Event{Kind: preload.EventReset}); err == nil {
		t.Error("Publish() while disconnected succeeded")
	}

	e, client := connectedEmitter(t)
	client.FailPublishes(errors.New("broker gone"))
	if err := e.PublishStatus([]byte("{}")); err == nil {
		t.Error("PublishStatus() succeeded with a failing broker")
	}
	if e.Stats().Errors != 1 {
		t.Errorf("Stats().Errors = %d, want 1", e.Stats().Errors)
	}
}

func TestRunFlushesQueue(t *testing.T) {
	e, client := connectedEmitter(t)

	for i := 0; i < 5; i++ {
		e.Emit(preload.Event{Kind: preload.EventControllerCreated, Index: i})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e.Run(ctx)

	if n := len(client.OnTopic("feed/events/test/controller_created")); n != 5 {
		t.Errorf("published %d events after Run, want 5", n)
	}
}

func TestEmitDropsWhenFull(t *testing.T) {
	e, _ := connectedEmitter(t)

	for i := 0; i < queueSize+3; i++ {
		e.Emit(preload.Event{Kind: preload.EventControllerReady, Index: i})
	}

	if got := e.Stats().Dropped; got != 3 {
		t.Errorf("Stats().Dropped = %d, want 3", got)
	}
}
