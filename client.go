package sazed

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tfkr-ae/sazed/domain"
	"github.com/tfkr-ae/sazed/serialize"
)

// State is the connection state of a transport client.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
)

// DefaultReconnectDelay is the fixed delay between a disconnect and the next
// connection attempt.
const DefaultReconnectDelay = 2 * time.Second

// Capabilities describes what the instrumented runtime can capture. One
// client implementation serves every runtime; behavior differences are
// injected here instead of duplicating the module per environment.
type Capabilities struct {
	SupportsNetworkInterception bool   // Whether WrapTransport captures network calls
	EnvironmentTag              string // Short runtime tag carried as the event source (e.g. "go", "browser")
}

// Client runs inside the instrumented runtime. It owns the persistent stream
// connection, an unbounded in-memory outbound queue, and the reconnect
// logic. Events produced while disconnected are queued FIFO and flushed in
// original order once the connection opens; the queue is not persisted
// across process restarts.
//
// A Client is an explicit context object: each instrumented process
// constructs one and owns its lifecycle. There is no module-wide singleton.
type Client struct {
	URL            string
	Capabilities   Capabilities
	ReconnectDelay time.Duration

	mu               sync.Mutex
	state            State
	conn             *websocket.Conn
	queue            [][]byte
	reconnectPending bool
	started          bool
	stopped          bool
	instanceID       string
	metadata         domain.Metadata

	captureMu      sync.Mutex
	captureOptions serialize.Options
	networkEnabled bool
	captureErrors  bool
	timers         map[string]time.Time
}

// NewClient creates a client for the given stream URL (ws://host:port/stream)
// and applies any provided options. The client does not connect until Start.
func NewClient(streamURL string, options ...func(*Client) error) (*Client, error) {
	client := &Client{
		URL:            streamURL,
		Capabilities:   Capabilities{SupportsNetworkInterception: true, EnvironmentTag: "go"},
		ReconnectDelay: DefaultReconnectDelay,
		queue:          make([][]byte, 0),
		captureOptions: serialize.DefaultOptions(),
		networkEnabled: true,
		captureErrors:  true,
		timers:         make(map[string]time.Time),
	}
	for _, option := range options {
		if err := option(client); err != nil {
			return nil, fmt.Errorf("applying option on sazed client : %w", err)
		}
	}
	return client, nil
}

// Start installs the capture state exactly once and opens the connection.
// A second Start call is a no-op for installation and only ensures a
// connection attempt is underway.
func (client *Client) Start() {
	client.mu.Lock()
	if !client.started {
		client.started = true
		client.instanceID = uuid.NewString()
		hostname, _ := os.Hostname()
		client.metadata = domain.Metadata{
			"instanceId": client.instanceID,
			"source":     client.Capabilities.EnvironmentTag,
			"pid":        os.Getpid(),
			"runtime":    runtime.Version(),
			"hostname":   hostname,
		}
	}
	client.stopped = false
	shouldConnect := client.conn == nil && client.state != StateConnecting
	if shouldConnect {
		client.state = StateConnecting
	}
	client.mu.Unlock()

	if shouldConnect {
		go client.connect()
	}
}

// Stop closes the active connection if any. The outbound queue is neither
// drained nor persisted, and a pending reconnect timer will not fire a new
// connection.
func (client *Client) Stop() {
	client.mu.Lock()
	client.stopped = true
	client.state = StateDisconnected
	conn := client.conn
	client.conn = nil
	client.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// State returns the current connection state.
func (client *Client) State() State {
	client.mu.Lock()
	defer client.mu.Unlock()
	return client.state
}

// QueueLen returns the number of events waiting for a connection.
func (client *Client) QueueLen() int {
	client.mu.Lock()
	defer client.mu.Unlock()
	return len(client.queue)
}

// connect dials the stream endpoint. On failure the client transitions back
// to disconnected and schedules exactly one reconnect attempt.
func (client *Client) connect() {
	conn, _, err := websocket.DefaultDialer.Dial(client.URL, nil)

	client.mu.Lock()
	if client.stopped {
		client.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		client.state = StateDisconnected
		client.scheduleReconnectLocked()
		client.mu.Unlock()
		return
	}
	// The state stays connecting until the queue is drained, so emit keeps
	// queueing instead of writing concurrently with the flush.
	client.conn = conn
	pending := client.queue
	client.queue = make([][]byte, 0)
	metadata := client.metadata
	client.mu.Unlock()

	// Flush the queue in original order, then send the one-time hello
	// handshake carrying the runtime metadata.
	if !client.writeAll(conn, pending) {
		return
	}
	if err := conn.WriteJSON(helloFrame{Type: frameHello, Client: metadata}); err != nil {
		client.handleDisconnect(conn)
		return
	}

	// Drain anything captured during the flush, then mark the connection
	// open.
	for {
		client.mu.Lock()
		if len(client.queue) == 0 {
			client.state = StateOpen
			client.mu.Unlock()
			break
		}
		pending = client.queue
		client.queue = make([][]byte, 0)
		client.mu.Unlock()
		if !client.writeAll(conn, pending) {
			return
		}
	}

	go client.readLoop(conn)
}

// writeAll transmits the pending frames in order. On a write failure the
// unsent remainder is put back at the front of the queue and the connection
// is torn down.
func (client *Client) writeAll(conn *websocket.Conn, pending [][]byte) bool {
	for i, data := range pending {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			client.mu.Lock()
			requeued := make([][]byte, 0, len(pending)-i+len(client.queue))
			requeued = append(requeued, pending[i:]...)
			requeued = append(requeued, client.queue...)
			client.queue = requeued
			client.mu.Unlock()
			client.handleDisconnect(conn)
			return false
		}
	}
	return true
}

// readLoop consumes inbound frames until the socket closes. Only config
// frames are meaningful to a client.
func (client *Client) readLoop(conn *websocket.Conn) {
	defer client.handleDisconnect(conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if sniffFrameType(data) != frameConfig {
			continue
		}
		payload, err := decodeConfigFrame(data)
		if err != nil {
			continue
		}
		client.applyConfig(payload)
	}
}

// applyConfig shallow-merges a received config payload: present keys
// override, absent keys are retained.
func (client *Client) applyConfig(payload ConfigPayload) {
	client.captureMu.Lock()
	defer client.captureMu.Unlock()
	if payload.NetworkEnabled != nil {
		client.networkEnabled = *payload.NetworkEnabled
	}
	if payload.CaptureErrors != nil {
		client.captureErrors = *payload.CaptureErrors
	}
	if payload.LogCaptureOptions != nil {
		client.captureOptions = *payload.LogCaptureOptions
	}
}

// handleDisconnect transitions to disconnected once per broken connection.
// Multiple close events for the same connection schedule exactly one
// reconnect attempt.
func (client *Client) handleDisconnect(conn *websocket.Conn) {
	conn.Close()

	client.mu.Lock()
	defer client.mu.Unlock()
	if client.conn != conn {
		return
	}
	client.conn = nil
	client.state = StateDisconnected
	if !client.stopped {
		client.scheduleReconnectLocked()
	}
}

// scheduleReconnectLocked arms the reconnect timer unless one is already
// pending or a connection exists. Concurrent timers must not open duplicate
// connections. Callers hold client.mu.
func (client *Client) scheduleReconnectLocked() {
	if client.reconnectPending || client.conn != nil || client.stopped {
		return
	}
	client.reconnectPending = true
	time.AfterFunc(client.ReconnectDelay, func() {
		client.mu.Lock()
		client.reconnectPending = false
		skip := client.stopped || client.conn != nil || client.state == StateConnecting
		if !skip {
			client.state = StateConnecting
		}
		client.mu.Unlock()
		if !skip {
			client.connect()
		}
	})
}

// emit transmits an event payload, or appends it to the outbound queue while
// the connection is not open. The queue is unbounded: a client that cannot
// reach the host grows it indefinitely, which is an accepted property of
// this design rather than a defect.
func (client *Client) emit(payload EventPayload) {
	payload.Source = client.Capabilities.EnvironmentTag
	data, err := json.Marshal(logFrame{Type: frameLog, EventPayload: payload})
	if err != nil {
		// Values are already serialize-safe; a marshal failure means a
		// payload bug, drop rather than break the capture path.
		return
	}

	client.mu.Lock()
	conn := client.conn
	open := client.state == StateOpen && conn != nil
	if !open {
		client.queue = append(client.queue, data)
		client.mu.Unlock()
		return
	}
	err = conn.WriteMessage(websocket.TextMessage, data)
	if err != nil {
		client.queue = append(client.queue, data)
	}
	client.mu.Unlock()

	if err != nil {
		client.handleDisconnect(conn)
	}
}

// options returns the current capture limits.
func (client *Client) options() serialize.Options {
	client.captureMu.Lock()
	defer client.captureMu.Unlock()
	return client.captureOptions
}
