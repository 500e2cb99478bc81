package sazed

import (
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/tfkr-ae/sazed/domain"
	"github.com/tfkr-ae/sazed/serialize"
)

// modulePath identifies capture-machinery frames to skip when locating the
// call site.
const modulePath = "github.com/tfkr-ae/sazed"

// defaultTimerLabel keys timer calls that supply no label.
const defaultTimerLabel = "default"

// Intercept composes hook around an original function value. The hook runs
// first and its panics are swallowed; the original is always invoked and its
// result or panic passes through unchanged. Capture must be transparent:
// wrapping a function never changes its observable behavior.
func Intercept(fn func(args ...any), hook func(args []any)) func(args ...any) {
	return func(args ...any) {
		func() {
			defer func() {
				_ = recover()
			}()
			hook(args)
		}()
		fn(args...)
	}
}

// Log captures a log-level console call.
func (client *Client) Log(args ...any) { client.capture(domain.LevelLog, args) }

// Info captures an info-level console call.
func (client *Client) Info(args ...any) { client.capture(domain.LevelInfo, args) }

// Warn captures a warn-level console call.
func (client *Client) Warn(args ...any) { client.capture(domain.LevelWarn, args) }

// Error captures an error-level console call.
func (client *Client) Error(args ...any) { client.capture(domain.LevelError, args) }

// Debug captures a debug-level console call.
func (client *Client) Debug(args ...any) { client.capture(domain.LevelDebug, args) }

// Trace captures a trace-level console call with the current stack.
func (client *Client) Trace(args ...any) {
	payload := client.encode(domain.LevelTrace, args)
	payload.Stack = string(debug.Stack())
	client.emit(payload)
}

func (client *Client) capture(level domain.Level, args []any) {
	client.emit(client.encode(level, args))
}

// encode builds an event payload from raw capture arguments: serialized
// values, a best-effort preview line, and the call-site location.
func (client *Client) encode(level domain.Level, args []any) EventPayload {
	opts := client.options()
	values := make([]any, len(args))
	for i := range args {
		values[i] = serialize.Value(args[i], opts)
	}

	payload := EventPayload{
		Level:     string(level),
		Text:      serialize.Preview(args, opts),
		Values:    values,
		Timestamp: time.Now().UnixMilli(),
	}
	if file, line, ok := callSite(); ok {
		payload.File = file
		payload.Line = line
	}
	return payload
}

// Time starts (or restarts) the timer for the given label. An empty label
// keys the "default" timer. Starting a timer emits no event.
func (client *Client) Time(label string) {
	if label == "" {
		label = defaultTimerLabel
	}
	client.captureMu.Lock()
	client.timers[label] = time.Now()
	client.captureMu.Unlock()
}

// TimeLog emits a time event with the elapsed duration for a running timer.
// An unknown label produces no event.
func (client *Client) TimeLog(label string, args ...any) {
	if label == "" {
		label = defaultTimerLabel
	}
	client.captureMu.Lock()
	started, ok := client.timers[label]
	client.captureMu.Unlock()
	if !ok {
		return
	}
	client.emitTimer(label, time.Since(started), args)
}

// TimeEnd stops a running timer and emits its final time event. An unknown
// label produces no event.
func (client *Client) TimeEnd(label string) {
	if label == "" {
		label = defaultTimerLabel
	}
	client.captureMu.Lock()
	started, ok := client.timers[label]
	if ok {
		delete(client.timers, label)
	}
	client.captureMu.Unlock()
	if !ok {
		return
	}
	client.emitTimer(label, time.Since(started), nil)
}

func (client *Client) emitTimer(label string, elapsed time.Duration, args []any) {
	payload := client.encode(domain.LevelTime, args)
	payload.Kind = string(domain.LevelTime)
	payload.Label = label
	payload.DurationMs = float64(elapsed) / float64(time.Millisecond)
	client.emit(payload)
}

// CaptureError records an error event. It is a no-op when error capture is
// disabled by configuration or err is nil.
func (client *Client) CaptureError(err error) {
	if err == nil || !client.errorsEnabled() {
		return
	}
	payload := client.encode(domain.LevelError, []any{err})
	payload.Stack = string(debug.Stack())
	client.emit(payload)
}

// CapturePanic records an in-flight panic and re-raises it unchanged. Use it
// in a defer at the top of instrumented goroutines:
//
//	defer client.CapturePanic()
//
// Capture never masks or alters the panic itself.
func (client *Client) CapturePanic() {
	r := recover()
	if r == nil {
		return
	}
	if client.errorsEnabled() {
		payload := client.encode(domain.LevelError, []any{r})
		payload.Kind = "panic"
		payload.Stack = string(debug.Stack())
		client.emit(payload)
	}
	panic(r)
}

func (client *Client) errorsEnabled() bool {
	client.captureMu.Lock()
	defer client.captureMu.Unlock()
	return client.captureErrors
}

// callSite walks the synthetically captured stack and returns the first
// frame that does not belong to the capture machinery or one of the extra
// skip prefixes. Test files inside the module count as caller code. Returns
// ok=false when no frame survives the filter.
func callSite(skipPrefixes ...string) (file string, line int, ok bool) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(2, pcs)
	if n == 0 {
		return "", 0, false
	}

	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		machinery := strings.HasPrefix(frame.Function, modulePath) &&
			!strings.HasSuffix(frame.File, "_test.go")
		for _, prefix := range skipPrefixes {
			if strings.HasPrefix(frame.Function, prefix) {
				machinery = true
				break
			}
		}
		if frame.Function != "" && !machinery {
			return frame.File, frame.Line, true
		}
		if !more {
			return "", 0, false
		}
	}
}
