// Package lifecycle owns the per-item controller state machine used by the
// preload manager: initialization (with optional retry and backoff), play and
// pause transitions, the initialization barrier and isolated disposal.
//
// This package is INTERNAL - clients use the public API in the parent package.
package lifecycle

import "context"

// Player is the capability the manager drives for one item.
//
// Implementations own an expensive media resource (decoder, network buffers,
// render surface). Every method may block; ctx bounds the wait. Dispose must be
// safe to call once after any other method, including a failed Initialize.
type Player interface {
	// Initialize acquires and prepares the resource.
	Initialize(ctx context.Context) error

	// Play starts (or resumes) playback. Only called after Initialize succeeded.
	Play(ctx context.Context) error

	// Pause stops playback without releasing the resource.
	Pause(ctx context.Context) error

	// Dispose releases the resource.
	Dispose(ctx context.Context) error

	// IsPlaying reports whether playback is currently running.
	IsPlaying() bool

	// IsInitialized reports whether Initialize completed successfully.
	IsInitialized() bool

	// SourceID identifies the media source (used for logs and events).
	SourceID() string
}
