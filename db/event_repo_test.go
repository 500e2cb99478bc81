package db

import (
	"testing"
	"time"

	"github.com/tfkr-ae/sazed/domain"
)

func sampleEvent(id int64, text string) domain.LogEvent {
	return domain.LogEvent{
		ID:        id,
		Level:     domain.LevelLog,
		Kind:      "log",
		Text:      text,
		Values:    []any{text, float64(id)},
		Timestamp: time.Date(2025, 7, 1, 10, 0, int(id), 0, time.UTC),
		ClientID:  1,
	}
}

func TestInsertEvent(t *testing.T) {
	t.Run("should persist and round-trip a full event", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		event := sampleEvent(1, "request done")
		event.Level = domain.LevelNetwork
		event.Kind = "network"
		event.URL = "https://api.example.com/users"
		event.Method = "GET"
		event.Status = 200
		event.DurationMs = 12.5
		event.Location = &domain.Location{File: "/app/client.go", Line: 42, Column: 3}
		event.Stack = "main.fetch\n\t/app/client.go:42"

		if err := repo.InsertEvent(event); err != nil {
			t.Fatalf("\nwanted:\nno error\ngot:\n%v", err)
		}

		events, err := repo.GetEvents(0)
		if err != nil {
			t.Fatalf("\nwanted:\nno error\ngot:\n%v", err)
		}
		if len(events) != 1 {
			t.Fatalf("\nwanted:\n1 event\ngot:\n%d", len(events))
		}
		got := events[0]
		if got.ID != 1 || got.Level != domain.LevelNetwork || got.URL != event.URL || got.Status != 200 {
			t.Fatalf("\nwanted:\n%+v\ngot:\n%+v", event, got)
		}
		if got.Location == nil || got.Location.File != "/app/client.go" || got.Location.Line != 42 {
			t.Fatalf("\nwanted:\nthe original location\ngot:\n%+v", got.Location)
		}
		if got.DurationMs != 12.5 || got.Stack == "" {
			t.Fatalf("\nwanted:\nduration and stack kept\ngot:\n%+v", got)
		}
	})

	t.Run("should persist an event without optional fields", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		if err := repo.InsertEvent(sampleEvent(1, "bare")); err != nil {
			t.Fatalf("\nwanted:\nno error\ngot:\n%v", err)
		}

		events, err := repo.GetEvents(0)
		if err != nil {
			t.Fatalf("\nwanted:\nno error\ngot:\n%v", err)
		}
		got := events[0]
		if got.Location != nil || got.URL != "" || got.Label != "" {
			t.Fatalf("\nwanted:\nempty optional fields\ngot:\n%+v", got)
		}
	})

	t.Run("should keep rows for the same store id across restarts", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		// Two host runs both start their store ids at one.
		if err := repo.InsertEvent(sampleEvent(1, "first run")); err != nil {
			t.Fatalf("\nwanted:\nno error\ngot:\n%v", err)
		}
		if err := repo.InsertEvent(sampleEvent(1, "second run")); err != nil {
			t.Fatalf("\nwanted:\nno error\ngot:\n%v", err)
		}

		count, err := repo.CountEvents()
		if err != nil {
			t.Fatalf("\nwanted:\nno error\ngot:\n%v", err)
		}
		if count != 2 {
			t.Fatalf("\nwanted:\n2 rows\ngot:\n%d", count)
		}
	})
}

func TestGetEvents(t *testing.T) {
	t.Run("should return events newest first", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		for i := int64(1); i <= 3; i++ {
			if err := repo.InsertEvent(sampleEvent(i, "entry")); err != nil {
				t.Fatalf("\nwanted:\nno error\ngot:\n%v", err)
			}
		}

		events, err := repo.GetEvents(0)
		if err != nil {
			t.Fatalf("\nwanted:\nno error\ngot:\n%v", err)
		}
		if len(events) != 3 || events[0].ID != 3 || events[2].ID != 1 {
			t.Fatalf("\nwanted:\nids 3, 2, 1\ngot:\n%+v", events)
		}
	})

	t.Run("should honor the limit", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		for i := int64(1); i <= 5; i++ {
			if err := repo.InsertEvent(sampleEvent(i, "entry")); err != nil {
				t.Fatalf("\nwanted:\nno error\ngot:\n%v", err)
			}
		}

		events, err := repo.GetEvents(2)
		if err != nil {
			t.Fatalf("\nwanted:\nno error\ngot:\n%v", err)
		}
		if len(events) != 2 || events[0].ID != 5 {
			t.Fatalf("\nwanted:\nthe 2 newest events\ngot:\n%+v", events)
		}
	})
}

func TestSearchEvents(t *testing.T) {
	t.Run("should match on the preview text", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		if err := repo.InsertEvent(sampleEvent(1, "database ready")); err != nil {
			t.Fatalf("\nwanted:\nno error\ngot:\n%v", err)
		}
		if err := repo.InsertEvent(sampleEvent(2, "cache warm")); err != nil {
			t.Fatalf("\nwanted:\nno error\ngot:\n%v", err)
		}

		events, err := repo.SearchEvents("database", 0)
		if err != nil {
			t.Fatalf("\nwanted:\nno error\ngot:\n%v", err)
		}
		if len(events) != 1 || events[0].Text != "database ready" {
			t.Fatalf("\nwanted:\nthe database event\ngot:\n%+v", events)
		}
	})

	t.Run("should match on the url", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		event := sampleEvent(1, "fetch")
		event.URL = "https://api.example.com/users"
		if err := repo.InsertEvent(event); err != nil {
			t.Fatalf("\nwanted:\nno error\ngot:\n%v", err)
		}

		events, err := repo.SearchEvents("example.com", 0)
		if err != nil {
			t.Fatalf("\nwanted:\nno error\ngot:\n%v", err)
		}
		if len(events) != 1 {
			t.Fatalf("\nwanted:\n1 event\ngot:\n%d", len(events))
		}
	})

	t.Run("should return nothing for an unmatched term", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		if err := repo.InsertEvent(sampleEvent(1, "quiet")); err != nil {
			t.Fatalf("\nwanted:\nno error\ngot:\n%v", err)
		}

		events, err := repo.SearchEvents("missing", 0)
		if err != nil {
			t.Fatalf("\nwanted:\nno error\ngot:\n%v", err)
		}
		if len(events) != 0 {
			t.Fatalf("\nwanted:\n0 events\ngot:\n%d", len(events))
		}
	})
}
