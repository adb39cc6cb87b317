package models

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestTrackingEventValidate(t *testing.T) {
	if err := (TrackingEvent{EventName: "pixel_page_view"}).Validate(); err != nil {
		t.Errorf("expected valid event, got %v", err)
	}
	err := (TrackingEvent{Properties: map[string]any{"a": 1}}).Validate()
	if !errors.Is(err, ErrEmptyEventName) {
		t.Errorf("expected ErrEmptyEventName, got %v", err)
	}
	err = (TrackingEvent{EventName: "late", Timestamp: -1}).Validate()
	if !errors.Is(err, ErrNegativeTimestamp) {
		t.Errorf("expected ErrNegativeTimestamp, got %v", err)
	}
}

func TestEventBatchWireNames(t *testing.T) {
	batch := EventBatch{Events: []EnrichedEvent{{
		EventName: "pixel_purchase",
		Timestamp: 1700000000000,
		AcademyID: "demo-academy-123",
		SessionID: "1700000000000-abc123xyz",
		URL:       "https://example.com/pricing",
		Referrer:  "https://google.com",
		UserAgent: "Mozilla/5.0",
	}}}

	jsonData, err := json.Marshal(batch)
	if err != nil {
		t.Fatalf("Failed to marshal batch: %v", err)
	}
	s := string(jsonData)
	for _, key := range []string{`"events":[`, `"eventName":"pixel_purchase"`, `"academyId":"demo-academy-123"`,
		`"sessionId":`, `"userAgent":"Mozilla/5.0"`, `"timestamp":1700000000000`} {
		if !strings.Contains(s, key) {
			t.Errorf("expected %s in %s", key, s)
		}
	}
	if strings.Contains(s, `"properties"`) {
		t.Errorf("empty properties should be omitted: %s", s)
	}
}

func TestBookingRequestCarriesAcademy(t *testing.T) {
	req := BookingRequest{
		AcademyID: "demo-academy-123",
		Type:      BookingTypeBatch,
		ItemID:    "batch-1",
		Customer:  Customer{Name: "Asha", Phone: "+91 98765 43210", Email: "asha@example.com"},
	}
	jsonData, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(jsonData, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal request: %v", err)
	}
	if decoded["academyId"] != "demo-academy-123" {
		t.Errorf("academyId = %v", decoded["academyId"])
	}
	customer, ok := decoded["customer"].(map[string]any)
	if !ok || customer["email"] != "asha@example.com" {
		t.Errorf("customer = %v", decoded["customer"])
	}
}
