package sazed

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gabriel-vasile/mimetype"
	"github.com/tfkr-ae/sazed/domain"
	"github.com/tfkr-ae/sazed/serialize"
)

// previewLimit bounds how many raw response bytes are read for the body
// preview before the body is handed back to the caller.
const previewLimit = 4096

// captureTransport decorates an http.RoundTripper and emits a network event
// per round trip. The underlying round trip's response and error always pass
// through unchanged.
type captureTransport struct {
	client *Client
	base   http.RoundTripper
}

// WrapTransport returns a RoundTripper that captures outbound network calls.
// When the client's capabilities do not include network interception the base
// transport is returned unmodified. A nil base wraps http.DefaultTransport.
func (client *Client) WrapTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if !client.Capabilities.SupportsNetworkInterception {
		return base
	}
	return &captureTransport{client: client, base: base}
}

// RoundTrip satisfies http.RoundTripper. Capture failures never alter the
// wrapped call: the original response or error is returned as-is.
func (t *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.client.networkCaptureEnabled() || skipCapture(req) {
		return t.base.RoundTrip(req)
	}

	started := time.Now()
	res, err := t.base.RoundTrip(req)
	elapsed := float64(time.Since(started)) / float64(time.Millisecond)

	payload := EventPayload{
		Level:      string(domain.LevelNetwork),
		Kind:       string(domain.LevelNetwork),
		URL:        req.URL.String(),
		Method:     req.Method,
		Timestamp:  time.Now().UnixMilli(),
		DurationMs: elapsed,
	}
	if file, line, ok := callSite("net/http"); ok {
		payload.File = file
		payload.Line = line
	}

	if err != nil {
		payload.Text = fmt.Sprintf("%s %s failed: %v", req.Method, req.URL, err)
		t.client.emit(payload)
		return res, err
	}

	payload.Status = res.StatusCode
	payload.Text = fmt.Sprintf("%s %s %d", req.Method, req.URL, res.StatusCode)
	if contentType, preview, ok := previewResponse(res, t.client.options()); ok {
		payload.Values = []any{map[string]any{
			"contentType": contentType,
			"body":        preview,
		}}
	}

	t.client.emit(payload)
	return res, nil
}

// previewResponse peeks at the response body for the event preview and hands
// the body back to the caller byte-for-byte. br and gzip encoded bodies are
// decoded for the preview only; the caller still receives the encoded stream.
func previewResponse(res *http.Response, opts serialize.Options) (string, string, bool) {
	if res.Body == nil {
		return "", "", false
	}

	raw := make([]byte, previewLimit)
	n, readErr := io.ReadFull(res.Body, raw)
	if readErr != nil && readErr != io.EOF && readErr != io.ErrUnexpectedEOF {
		res.Body = replayBody(raw[:n], res.Body)
		return "", "", false
	}
	res.Body = replayBody(raw[:n], res.Body)
	if n == 0 {
		return "", "", false
	}

	decoded := decodeBody(raw[:n], res.Header.Get("Content-Encoding"))
	contentType := mimetype.Detect(decoded).String()
	preview := string(decoded)
	if limit := opts.MaxStringLength; limit > 0 && len(preview) > limit {
		preview = preview[:limit] + serialize.TruncationSuffix
	}
	return contentType, preview, true
}

// replayBody stitches the peeked prefix back in front of the unread
// remainder so the caller observes the original body.
func replayBody(prefix []byte, rest io.ReadCloser) io.ReadCloser {
	return &replayReadCloser{
		Reader: io.MultiReader(bytes.NewReader(prefix), rest),
		closer: rest,
	}
}

type replayReadCloser struct {
	io.Reader
	closer io.Closer
}

func (r *replayReadCloser) Close() error {
	return r.closer.Close()
}

// decodeBody best-effort decodes a possibly truncated compressed prefix.
// Decode errors fall back to the raw bytes.
func decodeBody(raw []byte, encoding string) []byte {
	var reader io.Reader
	switch encoding {
	case "br":
		reader = brotli.NewReader(bytes.NewReader(raw))
	case "gzip":
		gz, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return raw
		}
		defer gz.Close()
		reader = gz
	default:
		return raw
	}

	decoded, err := io.ReadAll(reader)
	if err != nil && len(decoded) == 0 {
		return raw
	}
	return decoded
}

func (client *Client) networkCaptureEnabled() bool {
	client.captureMu.Lock()
	defer client.captureMu.Unlock()
	return client.networkEnabled
}
