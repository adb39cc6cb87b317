package models

import "errors"

// ErrEmptyEventName is returned when a tracking event has no name.
var ErrEmptyEventName = errors.New("eventName cannot be empty")

// ErrNegativeTimestamp is returned when a tracking event carries a timestamp
// before the epoch.
var ErrNegativeTimestamp = errors.New("timestamp cannot be negative")

// TrackingEvent is the unit producers hand to the delivery client.
type TrackingEvent struct {
	EventName  string         `json:"eventName"`
	Properties map[string]any `json:"properties,omitempty"`
	Timestamp  int64          `json:"timestamp,omitempty"` // ms since epoch, 0 = now
}

// Validate reports whether the event can be admitted to a queue.
func (e TrackingEvent) Validate() error {
	if e.EventName == "" {
		return ErrEmptyEventName
	}
	if e.Timestamp < 0 {
		return ErrNegativeTimestamp
	}
	return nil
}

// EnrichedEvent is the server-bound form of a TrackingEvent. Page fields
// are captured when the event is queued, not when it is flushed.
type EnrichedEvent struct {
	EventName  string         `json:"eventName"`
	Properties map[string]any `json:"properties,omitempty"`
	Timestamp  int64          `json:"timestamp"`
	AcademyID  string         `json:"academyId"`
	SessionID  string         `json:"sessionId"`
	URL        string         `json:"url"`
	Referrer   string         `json:"referrer"`
	UserAgent  string         `json:"userAgent"`
}

// EventBatch is the request body of POST /events.
type EventBatch struct {
	Events []EnrichedEvent `json:"events"`
}
