package sazed

import (
	"bytes"
	"compress/gzip"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
)

func TestWrapTransport(t *testing.T) {
	t.Run("should return the base unmodified without interception capability", func(t *testing.T) {
		client := testClient(t)
		client.Capabilities.SupportsNetworkInterception = false

		base := http.DefaultTransport
		if got := client.WrapTransport(base); got != base {
			t.Fatalf("\nwanted:\nthe base transport\ngot:\n%T", got)
		}
	})

	t.Run("should capture a round trip with method, status and duration", func(t *testing.T) {
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			io.WriteString(w, `{"ok":true}`)
		}))
		defer backend.Close()

		client := testClient(t)
		httpClient := &http.Client{Transport: client.WrapTransport(nil)}

		res, err := httpClient.Get(backend.URL)
		if err != nil {
			t.Fatalf("\nwanted:\nno error\ngot:\n%v", err)
		}
		body, _ := io.ReadAll(res.Body)
		res.Body.Close()

		if string(body) != `{"ok":true}` {
			t.Fatalf("\nwanted:\nthe original body\ngot:\n%s", body)
		}

		payloads := queuedPayloads(t, client)
		if len(payloads) != 1 {
			t.Fatalf("\nwanted:\n1 payload\ngot:\n%d", len(payloads))
		}
		payload := payloads[0]
		if payload.Level != "network" || payload.Method != "GET" || payload.Status != http.StatusCreated {
			t.Fatalf("\nwanted:\na GET 201 network event\ngot:\n%+v", payload)
		}
		if payload.URL != backend.URL {
			t.Fatalf("\nwanted:\n%s\ngot:\n%s", backend.URL, payload.URL)
		}
		if payload.DurationMs < 0 {
			t.Fatalf("\nwanted:\na non-negative duration\ngot:\n%f", payload.DurationMs)
		}
		if !strings.HasSuffix(payload.File, "network_test.go") {
			t.Fatalf("\nwanted:\na network_test.go call site\ngot:\n%s", payload.File)
		}
	})

	t.Run("should include a body preview with the detected content type", func(t *testing.T) {
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"users":[]}`)
		}))
		defer backend.Close()

		client := testClient(t)
		httpClient := &http.Client{Transport: client.WrapTransport(nil)}

		res, err := httpClient.Get(backend.URL)
		if err != nil {
			t.Fatalf("\nwanted:\nno error\ngot:\n%v", err)
		}
		io.Copy(io.Discard, res.Body)
		res.Body.Close()

		payload := queuedPayloads(t, client)[0]
		if len(payload.Values) != 1 {
			t.Fatalf("\nwanted:\n1 value\ngot:\n%+v", payload.Values)
		}
		detail := payload.Values[0].(map[string]any)
		if got := detail["body"]; got != `{"users":[]}` {
			t.Fatalf("\nwanted:\nthe body preview\ngot:\n%v", got)
		}
		if contentType, _ := detail["contentType"].(string); !strings.Contains(contentType, "json") {
			t.Fatalf("\nwanted:\na json content type\ngot:\n%v", detail["contentType"])
		}
	})

	t.Run("should decode a gzip body for the preview only", func(t *testing.T) {
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var buf bytes.Buffer
			gz := gzip.NewWriter(&buf)
			io.WriteString(gz, "compressed payload")
			gz.Close()
			w.Header().Set("Content-Encoding", "gzip")
			w.Write(buf.Bytes())
		}))
		defer backend.Close()

		client := testClient(t)
		transport := client.WrapTransport(&http.Transport{DisableCompression: true})
		httpClient := &http.Client{Transport: transport}

		res, err := httpClient.Get(backend.URL)
		if err != nil {
			t.Fatalf("\nwanted:\nno error\ngot:\n%v", err)
		}
		raw, _ := io.ReadAll(res.Body)
		res.Body.Close()

		// The caller still receives the encoded stream.
		gz, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			t.Fatalf("\nwanted:\nan intact gzip stream\ngot:\n%v", err)
		}
		original, _ := io.ReadAll(gz)
		if string(original) != "compressed payload" {
			t.Fatalf("\nwanted:\ncompressed payload\ngot:\n%s", original)
		}

		payload := queuedPayloads(t, client)[0]
		detail := payload.Values[0].(map[string]any)
		if detail["body"] != "compressed payload" {
			t.Fatalf("\nwanted:\na decoded preview\ngot:\n%v", detail["body"])
		}
	})

	t.Run("should decode a brotli body for the preview", func(t *testing.T) {
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var buf bytes.Buffer
			br := brotli.NewWriter(&buf)
			io.WriteString(br, "brotli payload")
			br.Close()
			w.Header().Set("Content-Encoding", "br")
			w.Write(buf.Bytes())
		}))
		defer backend.Close()

		client := testClient(t)
		transport := client.WrapTransport(&http.Transport{DisableCompression: true})
		httpClient := &http.Client{Transport: transport}

		res, err := httpClient.Get(backend.URL)
		if err != nil {
			t.Fatalf("\nwanted:\nno error\ngot:\n%v", err)
		}
		io.Copy(io.Discard, res.Body)
		res.Body.Close()

		payload := queuedPayloads(t, client)[0]
		detail := payload.Values[0].(map[string]any)
		if detail["body"] != "brotli payload" {
			t.Fatalf("\nwanted:\na decoded preview\ngot:\n%v", detail["body"])
		}
	})

	t.Run("should pass transport errors through and record a failed event", func(t *testing.T) {
		client := testClient(t)
		wantErr := errors.New("connection refused")
		transport := client.WrapTransport(roundTripperFunc(func(*http.Request) (*http.Response, error) {
			return nil, wantErr
		}))

		req := httptest.NewRequest(http.MethodGet, "http://unreachable.invalid/", nil)
		_, err := transport.RoundTrip(req)
		if !errors.Is(err, wantErr) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", wantErr, err)
		}

		payloads := queuedPayloads(t, client)
		if len(payloads) != 1 {
			t.Fatalf("\nwanted:\n1 payload\ngot:\n%d", len(payloads))
		}
		payload := payloads[0]
		if payload.Status != 0 || !strings.Contains(payload.Text, "failed") {
			t.Fatalf("\nwanted:\na failed event with status 0\ngot:\n%+v", payload)
		}
	})

	t.Run("should skip capture when disabled by configuration", func(t *testing.T) {
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		defer backend.Close()

		client := testClient(t)
		disabled := false
		client.applyConfig(ConfigPayload{NetworkEnabled: &disabled})
		httpClient := &http.Client{Transport: client.WrapTransport(nil)}

		res, err := httpClient.Get(backend.URL)
		if err != nil {
			t.Fatalf("\nwanted:\nno error\ngot:\n%v", err)
		}
		res.Body.Close()

		if got := len(queuedPayloads(t, client)); got != 0 {
			t.Fatalf("\nwanted:\n0 payloads\ngot:\n%d", got)
		}
	})

	t.Run("should skip requests flagged through the context", func(t *testing.T) {
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		defer backend.Close()

		client := testClient(t)
		httpClient := &http.Client{Transport: client.WrapTransport(nil)}

		req, err := http.NewRequest(http.MethodGet, backend.URL, nil)
		if err != nil {
			t.Fatalf("\nwanted:\nno error\ngot:\n%v", err)
		}
		res, err := httpClient.Do(ContextWithSkipCapture(req))
		if err != nil {
			t.Fatalf("\nwanted:\nno error\ngot:\n%v", err)
		}
		res.Body.Close()

		if got := len(queuedPayloads(t, client)); got != 0 {
			t.Fatalf("\nwanted:\n0 payloads\ngot:\n%d", got)
		}
	})
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
