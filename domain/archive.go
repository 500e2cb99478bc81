package domain

// EventArchive defines the interface for the persistent event history that
// backs the searchable log view. The in-memory log store remains the source
// of truth for identifiers and trimming; the archive is written through
// best-effort after ingestion.
type EventArchive interface {
	// InsertEvent persists a single ingested event.
	InsertEvent(event LogEvent) error
	// GetEvents retrieves up to limit archived events, newest first.
	// A limit of zero or less retrieves every archived event.
	GetEvents(limit int) ([]LogEvent, error)
	// SearchEvents retrieves archived events whose text or url contains term,
	// newest first.
	SearchEvents(term string, limit int) ([]LogEvent, error)
	// CountEvents returns the total number of archived events.
	CountEvents() (int, error)
	// Close releases the underlying storage.
	Close() error
}
