package gstplayer

import (
	"context"
	"errors"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		message string
		debug   string
		want    ErrorCategory
	}{
		{"Unauthorized", "souphttpsrc: 401", ErrCategoryAuth},
		{"Resource not found.", "gstfilesrc.c: No such file \"/clips/a.mp4\"", ErrCategoryResource},
		{"Internal data stream error.", "streaming stopped, reason not-negotiated (not negotiated)", ErrCategoryCodec},
		{"Your GStreamer installation is missing a plug-in.", "missing plugin: vp9", ErrCategoryCodec},
		{"Could not connect to server", "", ErrCategoryNetwork},
		{"Not Found (404), URL: https://cdn/clip.mp4", "", ErrCategoryNetwork},
		{"Something odd happened", "", ErrCategoryUnknown},
	}

	for _, tt := range tests {
		if got := ClassifyError(tt.message, tt.debug); got != tt.want {
			t.Errorf("ClassifyError(%q, %q) = %v, want %v", tt.message, tt.debug, got, tt.want)
		}
	}
}

func TestErrorCategoryRetryable(t *testing.T) {
	if !ErrCategoryNetwork.Retryable() {
		t.Error("network errors should be retryable")
	}
	if ErrCategoryCodec.Retryable() || ErrCategoryAuth.Retryable() {
		t.Error("codec and auth errors should not be retryable")
	}
}

func TestLaunchString(t *testing.T) {
	p := New(Config{URI: "file:///clips/a.mp4", VideoSink: "fakesink", AudioSink: "fakesink"})
	want := `playbin uri="file:///clips/a.mp4" video-sink="fakesink" audio-sink="fakesink"`
	if got := p.launchString(); got != want {
		t.Errorf("launchString() = %s, want %s", got, want)
	}
}

// TestPlayerGuards covers the state guards that run before any GStreamer
// call is made.
func TestPlayerGuards(t *testing.T) {
	ctx := context.Background()

	if err := New(Config{}).Initialize(ctx); !errors.Is(err, ErrEmptyURI) {
		t.Errorf("Initialize() without URI = %v, want ErrEmptyURI", err)
	}

	p := New(Config{URI: "file:///clips/a.mp4"})
	if err := p.Play(ctx); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Play() before Initialize = %v, want ErrNotInitialized", err)
	}
	if err := p.Dispose(ctx); err != nil {
		t.Errorf("Dispose() before Initialize = %v", err)
	}
	if err := p.Dispose(ctx); err != nil {
		t.Errorf("second Dispose() = %v", err)
	}
	if err := p.Initialize(ctx); !errors.Is(err, ErrDisposed) {
		t.Errorf("Initialize() after Dispose = %v, want ErrDisposed", err)
	}
	if got := p.Stats().State; got != "disposed" {
		t.Errorf("Stats().State = %q, want disposed", got)
	}
}
