package gstplayer

import (
	"strings"

	"github.com/tinyzimmer/go-gst/gst"
)

// ErrorCategory classifies GStreamer playback errors for telemetry.
type ErrorCategory int

const (
	// ErrCategoryNetwork indicates fetch failures (connection, timeout, DNS, HTTP)
	ErrCategoryNetwork ErrorCategory = iota
	// ErrCategoryCodec indicates decode or caps negotiation failures
	ErrCategoryCodec
	// ErrCategoryAuth indicates authorization failures on the media URI
	ErrCategoryAuth
	// ErrCategoryResource indicates a missing or unreadable local resource
	ErrCategoryResource
	// ErrCategoryUnknown indicates unclassified errors
	ErrCategoryUnknown
)

func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryNetwork:
		return "network"
	case ErrCategoryCodec:
		return "codec"
	case ErrCategoryAuth:
		return "auth"
	case ErrCategoryResource:
		return "resource"
	default:
		return "unknown"
	}
}

// Retryable reports whether initializing again could help.
func (e ErrorCategory) Retryable() bool {
	return e == ErrCategoryNetwork || e == ErrCategoryUnknown
}

var (
	authKeywords = []string{
		"unauthorized", "401", "403", "forbidden", "authentication", "credentials",
	}
	codecKeywords = []string{
		"codec", "decode", "demux", "format", "negotiation", "caps", "not negotiated",
		"no decoder", "missing plugin", "h264", "h265", "vp9", "av1", "aac",
	}
	resourceKeywords = []string{
		"no such file", "could not open file", "resource not found", "permission denied",
	}
	networkKeywords = []string{
		"connection", "timeout", "timed out", "unreachable", "network", "dns",
		"resolve", "socket", "http", "could not connect", "failed to connect", "404", "5xx",
	}
)

// ClassifyError categorizes a GStreamer error from its message and debug
// string. go-gst's GError does not expose the error domain, so the
// classification relies on keywords, most specific category first.
func ClassifyError(message, debug string) ErrorCategory {
	combined := strings.ToLower(message + " " + debug)

	switch {
	case containsAny(combined, authKeywords):
		return ErrCategoryAuth
	case containsAny(combined, resourceKeywords):
		return ErrCategoryResource
	case containsAny(combined, codecKeywords):
		return ErrCategoryCodec
	case containsAny(combined, networkKeywords):
		return ErrCategoryNetwork
	default:
		return ErrCategoryUnknown
	}
}

func classifyGError(gerr *gst.GError) ErrorCategory {
	if gerr == nil {
		return ErrCategoryUnknown
	}
	return ClassifyError(gerr.Error(), gerr.DebugString())
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
