package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tfkr-ae/sazed/domain"
)

var _ domain.EventArchive = (*Repository)(nil)

// dbEvent represents a log event as stored in the database. The archive key
// is its own uuid because store ids restart with the host process.
type dbEvent struct {
	ArchiveID  uuid.UUID       `db:"archive_id"`   // Unique archive row key
	StoreID    int64           `db:"store_id"`     // Id the log store assigned on ingestion
	Level      string          `db:"level"`        // Severity level
	Kind       string          `db:"kind"`         // Presentation sub-classification
	Text       string          `db:"text"`         // Preview line
	Values     Values          `db:"event_values"` // Serialized values as JSON
	Timestamp  time.Time       `db:"timestamp"`    // Producer timestamp
	File       sql.NullString  `db:"file"`         // Raw capture location
	Line       sql.NullInt64   `db:"line"`
	Column     sql.NullInt64   `db:"col"`
	Stack      sql.NullString  `db:"stack"`
	URL        sql.NullString  `db:"url"`
	Method     sql.NullString  `db:"method"`
	Status     sql.NullInt64   `db:"status"`
	DurationMs sql.NullFloat64 `db:"duration_ms"`
	Label      sql.NullString  `db:"label"`
	ClientID   int64           `db:"client_id"` // Originating session id
}

// toDomainEvent converts a dbEvent to a domain.LogEvent.
func toDomainEvent(row *dbEvent) domain.LogEvent {
	event := domain.LogEvent{
		ID:        row.StoreID,
		Level:     domain.CoerceLevel(row.Level),
		Kind:      row.Kind,
		Text:      row.Text,
		Values:    row.Values,
		Timestamp: row.Timestamp,
		Stack:     row.Stack.String,
		URL:       row.URL.String,
		Method:    row.Method.String,
		Status:    int(row.Status.Int64),
		ClientID:  row.ClientID,
	}
	if row.DurationMs.Valid {
		event.DurationMs = row.DurationMs.Float64
	}
	if row.Label.Valid {
		event.Label = row.Label.String
	}
	if row.File.Valid && row.File.String != "" {
		event.Location = &domain.Location{
			File:   row.File.String,
			Line:   int(row.Line.Int64),
			Column: int(row.Column.Int64),
		}
	}
	return event
}

// fromDomainEvent converts a domain.LogEvent to a dbEvent.
func fromDomainEvent(event domain.LogEvent, archiveID uuid.UUID) *dbEvent {
	row := &dbEvent{
		ArchiveID: archiveID,
		StoreID:   event.ID,
		Level:     string(event.Level),
		Kind:      event.Kind,
		Text:      event.Text,
		Values:    Values(event.Values),
		Timestamp: event.Timestamp,
		ClientID:  event.ClientID,
	}

	if event.Location != nil {
		row.File = sql.NullString{String: event.Location.File, Valid: true}
		row.Line = sql.NullInt64{Int64: int64(event.Location.Line), Valid: true}
		row.Column = sql.NullInt64{Int64: int64(event.Location.Column), Valid: true}
	}
	if event.Stack != "" {
		row.Stack = sql.NullString{String: event.Stack, Valid: true}
	}
	if event.URL != "" {
		row.URL = sql.NullString{String: event.URL, Valid: true}
	}
	if event.Method != "" {
		row.Method = sql.NullString{String: event.Method, Valid: true}
	}
	if event.Status != 0 {
		row.Status = sql.NullInt64{Int64: int64(event.Status), Valid: true}
	}
	if event.DurationMs != 0 {
		row.DurationMs = sql.NullFloat64{Float64: event.DurationMs, Valid: true}
	}
	if event.Label != "" {
		row.Label = sql.NullString{String: event.Label, Valid: true}
	}
	return row
}

// InsertEvent persists a single ingested event.
func (repo *Repository) InsertEvent(event domain.LogEvent) error {
	archiveID, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generating archive id : %w", err)
	}

	row := fromDomainEvent(event, archiveID)
	query := `INSERT INTO events (archive_id, store_id, level, kind, text, event_values, timestamp,
	                              file, line, col, stack, url, method, status, duration_ms, label, client_id)
	          VALUES (:archive_id, :store_id, :level, :kind, :text, :event_values, :timestamp,
	                  :file, :line, :col, :stack, :url, :method, :status, :duration_ms, :label, :client_id)`

	_, err = repo.dbConn.NamedExec(query, row)
	if err != nil {
		return fmt.Errorf("inserting event %d: %w", event.ID, err)
	}
	return nil
}

// GetEvents retrieves up to limit archived events, newest first. A limit of
// zero or less retrieves every archived event.
func (repo *Repository) GetEvents(limit int) ([]domain.LogEvent, error) {
	rows := []dbEvent{}
	query := `SELECT * FROM events ORDER BY timestamp DESC, store_id DESC`
	var err error
	if limit > 0 {
		err = repo.dbConn.Select(&rows, query+` LIMIT ?`, limit)
	} else {
		err = repo.dbConn.Select(&rows, query)
	}
	if err != nil {
		return nil, fmt.Errorf("getting events: %w", err)
	}

	events := make([]domain.LogEvent, 0, len(rows))
	for i := range rows {
		events = append(events, toDomainEvent(&rows[i]))
	}
	return events, nil
}

// SearchEvents retrieves archived events whose text or url contains term,
// newest first.
func (repo *Repository) SearchEvents(term string, limit int) ([]domain.LogEvent, error) {
	rows := []dbEvent{}
	pattern := "%" + term + "%"
	query := `SELECT * FROM events
	          WHERE text LIKE ? OR url LIKE ?
	          ORDER BY timestamp DESC, store_id DESC`
	var err error
	if limit > 0 {
		err = repo.dbConn.Select(&rows, query+` LIMIT ?`, pattern, pattern, limit)
	} else {
		err = repo.dbConn.Select(&rows, query, pattern, pattern)
	}
	if err != nil {
		return nil, fmt.Errorf("searching events for %q: %w", term, err)
	}

	events := make([]domain.LogEvent, 0, len(rows))
	for i := range rows {
		events = append(events, toDomainEvent(&rows[i]))
	}
	return events, nil
}

// CountEvents returns the total number of archived events.
func (repo *Repository) CountEvents() (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM events`

	err := repo.dbConn.Get(&count, query)
	if err != nil {
		return 0, fmt.Errorf("getting event count: %w", err)
	}
	return count, nil
}
