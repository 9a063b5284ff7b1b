package emitter

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/chdown/preload"
)

// Record is the wire form of a manager event.
type Record struct {
	Feed         string `msgpack:"feed"`
	Kind         string `msgpack:"kind"`
	Index        int    `msgpack:"index"`
	ControllerID string `msgpack:"controller_id,omitempty"`
	Source       string `msgpack:"source,omitempty"`
	WindowStart  int    `msgpack:"window_start"`
	WindowEnd    int    `msgpack:"window_end"`
	Count        int    `msgpack:"count,omitempty"`
	Error        string `msgpack:"error,omitempty"`
	AtUnixMs     int64  `msgpack:"at_ms"`
}

// NewRecord converts an event for feed into its wire form.
func NewRecord(feed string, e preload.Event) Record {
	r := Record{
		Feed:         feed,
		Kind:         e.Kind.String(),
		Index:        e.Index,
		ControllerID: e.ControllerID,
		Source:       e.Source,
		WindowStart:  e.Window.Start,
		WindowEnd:    e.Window.End,
		Count:        e.Count,
		AtUnixMs:     e.At.UnixMilli(),
	}
	if e.Err != nil {
		r.Error = e.Err.Error()
	}
	return r
}

// Encode marshals an event for feed with msgpack.
func Encode(feed string, e preload.Event) ([]byte, error) {
	payload, err := msgpack.Marshal(NewRecord(feed, e))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return payload, nil
}

// Decode unmarshals a payload produced by Encode.
func Decode(payload []byte) (Record, error) {
	var r Record
	if err := msgpack.Unmarshal(payload, &r); err != nil {
		return Record{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return r, nil
}
