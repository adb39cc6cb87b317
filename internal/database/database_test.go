package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vincentbai/lynk-embed/internal/models"
)

var testToday = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) (*Database, func()) {
	t.Helper()

	// Create temporary directory for test database
	tmpDir, err := os.MkdirTemp("", "lynk-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	dbPath := filepath.Join(tmpDir, "test.db")
	db, err := NewDatabase(dbPath)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to create test database: %v", err)
	}

	// Return cleanup function
	cleanup := func() {
		db.Close()
		os.RemoveAll(tmpDir)
	}

	return db, cleanup
}

func validEvent(name string, ts int64) models.EnrichedEvent {
	return models.EnrichedEvent{
		EventName: name,
		Timestamp: ts,
		AcademyID: DemoAcademyID,
		SessionID: "1700000000000-abc123xyz",
		URL:       "https://example.com",
		UserAgent: "Mozilla/5.0",
	}
}

func TestNewDatabase(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	if db == nil {
		t.Fatal("Expected non-nil database")
	}
	if db.db == nil {
		t.Fatal("Expected non-nil sql.DB")
	}
}

func TestValidateEvent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	tests := []struct {
		name      string
		mutate    func(*models.EnrichedEvent)
		wantError bool
	}{
		{name: "valid event", mutate: func(*models.EnrichedEvent) {}},
		{name: "empty name", mutate: func(e *models.EnrichedEvent) { e.EventName = "" }, wantError: true},
		{name: "empty academy", mutate: func(e *models.EnrichedEvent) { e.AcademyID = "" }, wantError: true},
		{name: "empty session", mutate: func(e *models.EnrichedEvent) { e.SessionID = "" }, wantError: true},
		{name: "zero timestamp", mutate: func(e *models.EnrichedEvent) { e.Timestamp = 0 }, wantError: true},
		{name: "negative timestamp", mutate: func(e *models.EnrichedEvent) { e.Timestamp = -1 }, wantError: true},
		{name: "empty url allowed", mutate: func(e *models.EnrichedEvent) { e.URL = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := validEvent("page_view", 1234567890)
			tt.mutate(&event)
			err := db.ValidateEvent(event)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidateEvent() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestInsertEvents(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	first := validEvent("pixel_page_view", 1234567890)
	first.Properties = map[string]any{"path": "/classes"}
	first.Referrer = "https://google.com"
	events := []models.EnrichedEvent{first, validEvent("pixel_purchase", 1234567891)}

	if err := db.InsertEvents(ctx, events); err != nil {
		t.Fatalf("Failed to insert events: %v", err)
	}

	count, err := db.CountEvents(ctx, DemoAcademyID)
	if err != nil {
		t.Fatalf("Failed to count events: %v", err)
	}
	if count != len(events) {
		t.Errorf("Expected %d events, got %d", len(events), count)
	}

	recent, err := db.RecentEvents(ctx, DemoAcademyID, 10)
	if err != nil {
		t.Fatalf("Failed to list events: %v", err)
	}
	if len(recent) != 2 || recent[0].EventName != "pixel_purchase" {
		t.Fatalf("Expected newest first, got %+v", recent)
	}
	if recent[1].Properties["path"] != "/classes" || recent[1].Referrer != "https://google.com" {
		t.Errorf("Round trip lost fields: %+v", recent[1])
	}
	if recent[0].Properties != nil {
		t.Errorf("Expected nil properties, got %v", recent[0].Properties)
	}
}

func TestInsertEventsInvalidEvent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	bad := validEvent("", 1234567890)
	events := []models.EnrichedEvent{validEvent("ok", 1234567890), bad}

	err := db.InsertEvents(ctx, events)
	if err == nil {
		t.Fatal("Expected error for invalid event, got nil")
	}
	if !errors.Is(err, models.ErrEmptyEventName) {
		t.Errorf("Expected ErrEmptyEventName, got %v", err)
	}

	// Verify transaction was rolled back
	count, err := db.CountEvents(ctx, DemoAcademyID)
	if err != nil {
		t.Fatalf("Failed to count events: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected 0 events after rollback, got %d", count)
	}
}

func TestInsertEventsWithComplexData(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	event := validEvent("pixel_purchase", 1234567890)
	event.Properties = map[string]any{
		"value":    2999,
		"currency": "INR",
		"items": []any{
			map[string]any{"id": "batch-1", "quantity": 1},
		},
	}

	if err := db.InsertEvents(context.Background(), []models.EnrichedEvent{event}); err != nil {
		t.Fatalf("Failed to insert event with complex data: %v", err)
	}

	// Verify data was stored as valid JSON
	var dataJSON string
	err := db.db.QueryRow("SELECT properties_json FROM events WHERE id = 1").Scan(&dataJSON)
	if err != nil {
		t.Fatalf("Failed to query properties_json: %v", err)
	}
	if dataJSON == "" || dataJSON == "{}" {
		t.Errorf("Expected stored properties, got %q", dataJSON)
	}
}

func TestDatabaseClose(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	err := db.Close()
	if err != nil {
		t.Errorf("Failed to close database: %v", err)
	}
}
