package sazed

import (
	"sync"
	"time"

	"github.com/tfkr-ae/sazed/domain"
)

// DefaultMaxLogEntries bounds the store when no capacity is configured.
const DefaultMaxLogEntries = 10000

// Store is the host-side bounded, ordered collection of received events.
// It behaves like an append-only ring buffer: ingestion assigns strictly
// increasing ids that are never reused, and overflow trims the oldest
// entries first. All methods are safe for concurrent use; each mutation is
// atomic with respect to a single incoming message.
type Store struct {
	mu         sync.Mutex
	events     []domain.LogEvent
	nextID     int64
	maxEntries int
}

// NewStore creates a store bounded to maxEntries events. Non-positive
// capacities fall back to DefaultMaxLogEntries.
func NewStore(maxEntries int) *Store {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxLogEntries
	}
	return &Store{
		events:     make([]domain.LogEvent, 0),
		nextID:     1,
		maxEntries: maxEntries,
	}
}

// Ingest validates the payload, assigns the next id, appends the event, and
// trims the oldest overflow in a single pass. The returned event is the
// stored, fully-defaulted record.
func (store *Store) Ingest(payload EventPayload, sessionID int64) domain.LogEvent {
	level := domain.CoerceLevel(payload.Level)
	kind := payload.Kind
	if kind == "" {
		kind = string(level)
	}

	timestamp := time.Now()
	if payload.Timestamp > 0 {
		timestamp = time.UnixMilli(payload.Timestamp)
	}

	var location *domain.Location
	if payload.File != "" {
		location = &domain.Location{
			File:   payload.File,
			Line:   payload.Line,
			Column: payload.Column,
		}
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	event := domain.LogEvent{
		ID:         store.nextID,
		Level:      level,
		Kind:       kind,
		Text:       payload.Text,
		Values:     payload.Values,
		Timestamp:  timestamp,
		Location:   location,
		Stack:      payload.Stack,
		URL:        payload.URL,
		Method:     payload.Method,
		Status:     payload.Status,
		DurationMs: payload.DurationMs,
		Label:      payload.Label,
		ClientID:   sessionID,
	}
	store.nextID++
	store.events = append(store.events, event)

	if overflow := len(store.events) - store.maxEntries; overflow > 0 {
		trimmed := make([]domain.LogEvent, len(store.events)-overflow)
		copy(trimmed, store.events[overflow:])
		store.events = trimmed
	}
	return event
}

// Clear resets the store to empty. The id counter keeps running so ids stay
// strictly increasing across clears.
func (store *Store) Clear() {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.events = make([]domain.LogEvent, 0)
}

// Find returns the event with the given id, or false if it was trimmed or
// never existed.
func (store *Store) Find(id int64) (domain.LogEvent, bool) {
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, event := range store.events {
		if event.ID == id {
			return event, true
		}
	}
	return domain.LogEvent{}, false
}

// Events returns a snapshot of the retained events in ingestion order.
func (store *Store) Events() []domain.LogEvent {
	store.mu.Lock()
	defer store.mu.Unlock()
	snapshot := make([]domain.LogEvent, len(store.events))
	copy(snapshot, store.events)
	return snapshot
}

// Len returns the number of retained events.
func (store *Store) Len() int {
	store.mu.Lock()
	defer store.mu.Unlock()
	return len(store.events)
}
