package preload

import (
	"time"

	"github.com/chdown/preload/internal/window"
)

// Window is a half-open index range [Start, End).
type Window = window.Bounds

// EventKind identifies a lifecycle event.
type EventKind int

const (
	EventControllerCreated EventKind = iota + 1
	EventControllerReady
	EventControllerInitFailed
	EventControllerDisposed
	EventControllerDisposeFailed
	EventPlaybackStarted
	EventPlaybackFailed
	EventActiveChanged
	EventRebuildCompleted
	EventRebuildDropped
	EventPaginationStarted
	EventPaginationCompleted
	EventPaginationFailed
	EventReset
	EventDisposed
)

var eventKindNames = map[EventKind]string{
	EventControllerCreated:       "controller_created",
	EventControllerReady:         "controller_ready",
	EventControllerInitFailed:    "controller_init_failed",
	EventControllerDisposed:      "controller_disposed",
	EventControllerDisposeFailed: "controller_dispose_failed",
	EventPlaybackStarted:         "playback_started",
	EventPlaybackFailed:          "playback_failed",
	EventActiveChanged:           "active_changed",
	EventRebuildCompleted:        "rebuild_completed",
	EventRebuildDropped:          "rebuild_dropped",
	EventPaginationStarted:       "pagination_started",
	EventPaginationCompleted:     "pagination_completed",
	EventPaginationFailed:        "pagination_failed",
	EventReset:                   "reset",
	EventDisposed:                "disposed",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event is a structured lifecycle record.
//
// Index is -1 when the event does not refer to an item. ControllerID and
// Source are empty for manager-level events.
type Event struct {
	Kind         EventKind
	Index        int
	ControllerID string
	Source       string
	Window       Window
	Count        int
	Err          error
	At           time.Time
}

// EventSink receives events. Emit is called without the manager lock held,
// possibly from several goroutines; implementations must not block for long.
type EventSink interface {
	Emit(e Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(e Event)

// Emit calls f(e).
func (f EventSinkFunc) Emit(e Event) { f(e) }
