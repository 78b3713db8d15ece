package domain

import "time"

// SourceTag identifies this loader's events in the shared event store.
const SourceTag = "spotter-network"

// EventType is the canonical event-type enum shared across ingestion loaders.
type EventType string

const (
	EventTornado      EventType = "tornado"
	EventFunnelCloud  EventType = "funnel_cloud"
	EventWallCloud    EventType = "wall_cloud"
	EventHail         EventType = "hail"
	EventWind         EventType = "wind"
	EventFlood        EventType = "flood"
	EventFreezingRain EventType = "freezing_rain"
	EventSnow         EventType = "snow"
	EventOther        EventType = "other"
)

// CanonicalEvent is the normalized representation written to the event store.
// The ID is content-addressed: identical RawReport content always yields the
// identical event ID.
type CanonicalEvent struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	EventType EventType `json:"event_type"`
	EventTime time.Time `json:"event_time"`
	Geo       Geo       `json:"geo"`

	Magnitude float64 `json:"magnitude,omitempty"`
	Unit      string  `json:"unit,omitempty"`
	Measured  bool    `json:"measured,omitempty"`
	Severity  *string `json:"severity,omitempty"`

	Reporter string `json:"reporter,omitempty"`
	Title    string `json:"title"`
	Text     string `json:"text,omitempty"`

	// RawLine echoes the normalized source line for audit.
	RawLine    string    `json:"raw_line,omitempty"`
	IngestedAt time.Time `json:"ingested_at"`
}
