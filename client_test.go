package sazed

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/tfkr-ae/sazed/serialize"
)

func TestClientLifecycle(t *testing.T) {
	t.Run("should not open a second session on a repeated start", func(t *testing.T) {
		var connects atomic.Int64
		server, streamURL := startTestServer(t, func(server *Server) error {
			server.OnSession = func(session *Session, up bool) {
				if up {
					connects.Add(1)
				}
			}
			return nil
		})

		client, err := NewClient(streamURL)
		if err != nil {
			t.Fatalf("\nwanted:\nno error\ngot:\n%v", err)
		}
		client.Start()
		defer client.Stop()
		waitFor(t, func() bool { return client.State() == StateOpen }, "an open connection")

		client.Start()
		time.Sleep(100 * time.Millisecond)

		if got := connects.Load(); got != 1 {
			t.Fatalf("\nwanted:\n1 connect\ngot:\n%d", got)
		}
		if server.SessionCount() != 1 {
			t.Fatalf("\nwanted:\n1 session\ngot:\n%d", server.SessionCount())
		}
	})

	t.Run("should schedule exactly one reconnect for duplicate disconnects", func(t *testing.T) {
		var connects atomic.Int64
		_, streamURL := startTestServer(t, func(server *Server) error {
			server.OnSession = func(session *Session, up bool) {
				if up {
					connects.Add(1)
				}
			}
			return nil
		})

		client, err := NewClient(streamURL, ClientWithReconnectDelay(50*time.Millisecond))
		if err != nil {
			t.Fatalf("\nwanted:\nno error\ngot:\n%v", err)
		}
		client.Start()
		defer client.Stop()
		waitFor(t, func() bool { return client.State() == StateOpen }, "an open connection")

		client.mu.Lock()
		conn := client.conn
		client.mu.Unlock()

		// Both the read loop and a failed write can observe the same broken
		// connection; only one reconnect attempt may come out of it.
		client.handleDisconnect(conn)
		client.handleDisconnect(conn)

		waitFor(t, func() bool { return client.State() == StateOpen }, "the reconnected state")
		time.Sleep(150 * time.Millisecond)

		if got := connects.Load(); got != 2 {
			t.Fatalf("\nwanted:\n2 connects in total\ngot:\n%d", got)
		}
	})

	t.Run("should not reconnect after stop", func(t *testing.T) {
		server, streamURL := startTestServer(t)

		client, err := NewClient(streamURL, ClientWithReconnectDelay(20*time.Millisecond))
		if err != nil {
			t.Fatalf("\nwanted:\nno error\ngot:\n%v", err)
		}
		client.Start()
		waitFor(t, func() bool { return server.SessionCount() == 1 }, "the session up")

		client.Stop()
		waitFor(t, func() bool { return server.SessionCount() == 0 }, "the session dropped")
		time.Sleep(100 * time.Millisecond)

		if server.SessionCount() != 0 {
			t.Fatalf("\nwanted:\nno session\ngot:\n%d", server.SessionCount())
		}
		if client.State() != StateDisconnected {
			t.Fatalf("\nwanted:\ndisconnected\ngot:\n%v", client.State())
		}
	})
}

func TestApplyConfig(t *testing.T) {
	t.Run("should merge shallowly, keeping absent keys", func(t *testing.T) {
		client := testClient(t)
		disabled := false

		client.applyConfig(ConfigPayload{NetworkEnabled: &disabled})

		if client.networkCaptureEnabled() {
			t.Fatalf("\nwanted:\nnetwork capture disabled\ngot:\nenabled")
		}
		if !client.errorsEnabled() {
			t.Fatalf("\nwanted:\nerror capture retained\ngot:\ndisabled")
		}
		if client.options() != serialize.DefaultOptions() {
			t.Fatalf("\nwanted:\ndefault capture limits retained\ngot:\n%+v", client.options())
		}
	})

	t.Run("should override the capture limits when present", func(t *testing.T) {
		client := testClient(t)
		limits := serialize.Options{MaxDepth: 2, MaxProps: 5, MaxArray: 5, MaxStringLength: 50}

		client.applyConfig(ConfigPayload{LogCaptureOptions: &limits})

		if client.options() != limits {
			t.Fatalf("\nwanted:\n%+v\ngot:\n%+v", limits, client.options())
		}
	})
}

func TestClientOptions(t *testing.T) {
	t.Run("should reject a non-positive reconnect delay", func(t *testing.T) {
		if _, err := NewClient("ws://127.0.0.1:1/stream", ClientWithReconnectDelay(0)); err == nil {
			t.Fatalf("\nwanted:\nan error\ngot:\nnil")
		}
	})

	t.Run("should apply injected capabilities", func(t *testing.T) {
		capabilities := Capabilities{SupportsNetworkInterception: false, EnvironmentTag: "browser"}
		client, err := NewClient("ws://127.0.0.1:1/stream", ClientWithCapabilities(capabilities))
		if err != nil {
			t.Fatalf("\nwanted:\nno error\ngot:\n%v", err)
		}
		if client.Capabilities != capabilities {
			t.Fatalf("\nwanted:\n%+v\ngot:\n%+v", capabilities, client.Capabilities)
		}
	})
}
