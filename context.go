package sazed

import (
	"context"
	"net/http"
)

type contextKey string

const (
	// SkipCaptureKey is the context key for the flag (bool) that excludes a
	// request from network capture
	SkipCaptureKey contextKey = "SkipCapture"
)

// ContextWithSkipCapture returns a new request that a capture transport will
// pass through without emitting a network event. Use it for requests that
// must never show up in the log view, such as health checks or the host's
// own traffic.
func ContextWithSkipCapture(req *http.Request) *http.Request {
	ctx := context.WithValue(req.Context(), SkipCaptureKey, true)
	return req.WithContext(ctx)
}

// SkipCaptureFromContext returns the skip-capture flag from the context if it
// exists.
func SkipCaptureFromContext(ctx context.Context) (bool, bool) {
	skip, ok := ctx.Value(SkipCaptureKey).(bool)
	return skip, ok
}

// skipCapture reports whether the request opted out of network capture.
func skipCapture(req *http.Request) bool {
	skip, ok := SkipCaptureFromContext(req.Context())
	return ok && skip
}
