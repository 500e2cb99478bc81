package sazed

import (
	"encoding/json"

	"github.com/tfkr-ae/sazed/domain"
	"github.com/tfkr-ae/sazed/serialize"
	"github.com/valyala/fastjson"
)

// Frame types exchanged over the stream. Everything is a JSON text frame;
// unknown or malformed frames are discarded silently at the server boundary
// so a misbehaving client can never feed errors back into the event stream.
const (
	frameHello  = "hello"
	frameLog    = "log"
	frameConfig = "config"
)

// EventPayload is the wire shape of a single captured event. Every field is
// optional; absent fields default on ingestion (unknown levels coerce to
// "log", a zero timestamp defaults to ingestion time).
type EventPayload struct {
	Level      string  `json:"level,omitempty"`
	Kind       string  `json:"kind,omitempty"`
	Text       string  `json:"text,omitempty"`
	Values     []any   `json:"values,omitempty"`
	Timestamp  int64   `json:"timestamp,omitempty"` // Milliseconds since epoch
	File       string  `json:"file,omitempty"`
	Line       int     `json:"line,omitempty"`
	Column     int     `json:"column,omitempty"`
	Stack      string  `json:"stack,omitempty"`
	URL        string  `json:"url,omitempty"`
	Method     string  `json:"method,omitempty"`
	Status     int     `json:"status,omitempty"`
	DurationMs float64 `json:"durationMs,omitempty"`
	Label      string  `json:"label,omitempty"`
	Source     string  `json:"source,omitempty"`
}

type logFrame struct {
	Type string `json:"type"`
	EventPayload
}

type helloFrame struct {
	Type   string          `json:"type"`
	Client domain.Metadata `json:"client"`
}

// ConfigPayload carries the capture configuration broadcast from the host to
// every live session. Pointer fields make the client-side merge shallow:
// received keys override, absent keys are retained.
type ConfigPayload struct {
	NetworkEnabled    *bool              `json:"networkEnabled,omitempty"`
	CaptureErrors     *bool              `json:"captureErrors,omitempty"`
	LogCaptureOptions *serialize.Options `json:"logCaptureOptions,omitempty"`
}

type configFrame struct {
	Type   string        `json:"type"`
	Config ConfigPayload `json:"config"`
}

// sniffFrameType extracts the type discriminator without decoding the whole
// frame. It returns an empty string for non-JSON input or a missing type.
func sniffFrameType(data []byte) string {
	parsed, err := fastjson.ParseBytes(data)
	if err != nil {
		return ""
	}
	return string(parsed.GetStringBytes("type"))
}

func decodeLogFrame(data []byte) (EventPayload, error) {
	var frame logFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return EventPayload{}, err
	}
	return frame.EventPayload, nil
}

func decodeHelloFrame(data []byte) (domain.Metadata, error) {
	var frame helloFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, err
	}
	return frame.Client, nil
}

func decodeConfigFrame(data []byte) (ConfigPayload, error) {
	var frame configFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return ConfigPayload{}, err
	}
	return frame.Config, nil
}
