// Package sazed provides a capture, transport, and correlation engine for
// structured runtime events. Instrumented processes encode console calls,
// timers, errors, and network calls into bounded JSON-safe payloads and
// stream them over a persistent loopback connection to a host process, which
// stores them in a bounded log store and correlates each event back to a
// local source file for inline display. It is designed to be decoupled from
// GUI implementations and provides callback handlers for building log
// viewers, inline annotation surfaces, and status indicators.
//
// The core functionality includes:
//   - Cycle-safe, depth-bounded value serialization (package serialize)
//   - A websocket transport with reconnect and in-memory queueing semantics
//   - A host-side bounded log store with monotonic identifiers
//   - Source correlation and per-line aggregation (package annotate)
//   - An optional SQLite-backed event archive for the searchable log view
package sazed

import (
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/tfkr-ae/sazed/annotate"
	"github.com/tfkr-ae/sazed/domain"
)

// streamPath is the websocket endpoint clients dial.
const streamPath = "/stream"

// Session represents one live client connection and its handshake metadata.
// Session ids increase for the lifetime of the process and are never reused,
// even after disconnect.
type Session struct {
	ID       int64
	Metadata domain.Metadata

	conn    *websocket.Conn
	writeMu sync.Mutex
}

// MergeMetadata merges handshake metadata additively. Incoming keys override
// existing values but unknown keys are never removed.
func (session *Session) MergeMetadata(metadata domain.Metadata) {
	session.writeMu.Lock()
	defer session.writeMu.Unlock()
	session.Metadata.Merge(metadata)
}

// sendConfig re-sends the current config payload to the session. A session
// whose socket is not ready to send simply misses the broadcast.
func (session *Session) sendConfig(payload ConfigPayload) error {
	session.writeMu.Lock()
	defer session.writeMu.Unlock()
	return session.conn.WriteJSON(configFrame{Type: frameConfig, Config: payload})
}

// Server is the host-side transport endpoint. It accepts multiple concurrent
// client connections, multiplexes inbound events into the Store, and
// broadcasts configuration changes to all live sessions.
type Server struct {
	Store     *Store
	Archive   domain.EventArchive // Optional persistent history, nil disables
	Annotator *annotate.Annotator // Optional inline annotation sink, nil disables
	Config    *Config
	Logger    *logrus.Logger

	OnEvent   func(event domain.LogEvent)     // Called after each ingested event - used by the host UI for live append notifications
	OnSession func(session *Session, up bool) // Called on connect and disconnect - used by the status indicator

	upgrader      websocket.Upgrader
	httpServer    *http.Server
	listener      net.Listener
	mu            sync.Mutex
	sessions      map[int64]*Session
	nextSessionID int64
	configPayload ConfigPayload
}

// NewServer creates a new Server with default configuration and applies any
// provided options.
func NewServer(options ...func(*Server) error) (*Server, error) {
	server := &Server{
		Store:    NewStore(DefaultMaxLogEntries),
		Logger:   logrus.New(),
		sessions: make(map[int64]*Session),
	}
	if err := server.WithOptions(options...); err != nil {
		return nil, err
	}
	return server, nil
}

// WithOptions applies a series of configuration functions to the server.
func (server *Server) WithOptions(options ...func(*Server) error) error {
	for _, option := range options {
		if err := option(server); err != nil {
			return fmt.Errorf("applying option on sazed server : %w", err)
		}
	}
	return nil
}

// Start listens on the given loopback address and serves in the background.
func (server *Server) Start(host string, port int) error {
	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return fmt.Errorf("setting up listener on %s:%d : %w", host, port, err)
	}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			server.Logger.WithError(err).Error("stream server stopped")
		}
	}()
	return nil
}

// Serve accepts stream connections on the given listener until it is closed.
func (server *Server) Serve(listener net.Listener) error {
	server.mu.Lock()
	server.listener = listener
	mux := http.NewServeMux()
	mux.HandleFunc(streamPath, server.handleStream)
	server.httpServer = &http.Server{Handler: mux}
	server.mu.Unlock()

	server.Logger.WithField("addr", listener.Addr().String()).Info("sazed stream listening")
	return server.httpServer.Serve(listener)
}

// Addr returns the listening address, or an empty string before Serve.
func (server *Server) Addr() string {
	server.mu.Lock()
	defer server.mu.Unlock()
	if server.listener == nil {
		return ""
	}
	return server.listener.Addr().String()
}

// Close stops accepting connections and closes every live session.
func (server *Server) Close() error {
	server.mu.Lock()
	httpServer := server.httpServer
	sessions := make([]*Session, 0, len(server.sessions))
	for _, session := range server.sessions {
		sessions = append(sessions, session)
	}
	server.mu.Unlock()

	for _, session := range sessions {
		session.conn.Close()
	}
	if httpServer != nil {
		if err := httpServer.Close(); err != nil {
			return fmt.Errorf("closing stream server : %w", err)
		}
	}
	return nil
}

// SessionCount returns the number of live sessions.
func (server *Server) SessionCount() int {
	server.mu.Lock()
	defer server.mu.Unlock()
	return len(server.sessions)
}

// Sessions returns a snapshot of the live sessions.
func (server *Server) Sessions() []*Session {
	server.mu.Lock()
	defer server.mu.Unlock()
	sessions := make([]*Session, 0, len(server.sessions))
	for _, session := range server.sessions {
		sessions = append(sessions, session)
	}
	return sessions
}

// SetConfig replaces the broadcast payload and re-sends it to every live
// session.
func (server *Server) SetConfig(payload ConfigPayload) {
	server.mu.Lock()
	server.configPayload = payload
	server.mu.Unlock()
	server.BroadcastConfig()
}

// BroadcastConfig re-sends the current config payload to every live session.
// A send failure is a no-op for that session; its read loop will observe the
// broken socket and drop it.
func (server *Server) BroadcastConfig() {
	server.mu.Lock()
	payload := server.configPayload
	sessions := make([]*Session, 0, len(server.sessions))
	for _, session := range server.sessions {
		sessions = append(sessions, session)
	}
	server.mu.Unlock()

	for _, session := range sessions {
		if err := session.sendConfig(payload); err != nil {
			server.Logger.WithField("session", session.ID).WithError(err).Debug("config broadcast skipped")
		}
	}
}

// ClearLogs empties the log store and discards all inline annotation state.
// The id counter keeps running so later events keep strictly increasing ids.
func (server *Server) ClearLogs() {
	server.Store.Clear()
	if server.Annotator != nil {
		server.Annotator.ClearAll()
	}
}

// handleStream upgrades the connection, registers a session, and reads
// frames until the socket errors or closes.
func (server *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := server.upgrader.Upgrade(w, r, nil)
	if err != nil {
		server.Logger.WithError(err).Warn("stream upgrade failed")
		return
	}

	server.mu.Lock()
	server.nextSessionID++
	session := &Session{
		ID:       server.nextSessionID,
		Metadata: make(domain.Metadata),
		conn:     conn,
	}
	server.sessions[session.ID] = session
	payload := server.configPayload
	server.mu.Unlock()

	server.Logger.WithField("session", session.ID).Info("client connected")
	if server.OnSession != nil {
		server.OnSession(session, true)
	}

	// Initial config push so a client observes the host settings without
	// waiting for the next change.
	if err := session.sendConfig(payload); err != nil {
		server.Logger.WithField("session", session.ID).WithError(err).Debug("initial config push failed")
	}

	server.readLoop(session)
}

// readLoop dispatches inbound frames for one session. Malformed frames are
// discarded silently; they are never surfaced to the sender and never logged
// into the event stream itself.
func (server *Server) readLoop(session *Session) {
	defer server.dropSession(session)

	for {
		_, data, err := session.conn.ReadMessage()
		if err != nil {
			return
		}

		switch sniffFrameType(data) {
		case frameHello:
			metadata, err := decodeHelloFrame(data)
			if err != nil {
				continue
			}
			session.MergeMetadata(metadata)
		case frameLog:
			payload, err := decodeLogFrame(data)
			if err != nil {
				continue
			}
			server.ingest(payload, session.ID)
		default:
			// Non-JSON or unknown type, discard.
		}
	}
}

// ingest stores one event and fans it out to the archive, the annotator, and
// the host callback. Archive failures degrade to a diagnostic warning.
func (server *Server) ingest(payload EventPayload, sessionID int64) {
	event := server.Store.Ingest(payload, sessionID)

	if server.Archive != nil {
		if err := server.Archive.InsertEvent(event); err != nil {
			server.Logger.WithError(err).Warn("archiving event failed")
		}
	}
	if server.Annotator != nil {
		server.Annotator.Record(event)
	}
	if server.OnEvent != nil {
		server.OnEvent(event)
	}
}

// dropSession removes a session after its socket closed or errored. Its
// historical events remain in the store.
func (server *Server) dropSession(session *Session) {
	session.conn.Close()

	server.mu.Lock()
	delete(server.sessions, session.ID)
	server.mu.Unlock()

	server.Logger.WithField("session", session.ID).Info("client disconnected")
	if server.OnSession != nil {
		server.OnSession(session, false)
	}
}
