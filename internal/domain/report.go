package domain

import "time"

// ReportKind tags the RawReport union: a structurally valid spotter report or
// an unrecognized feed line carried through for quarantine.
type ReportKind string

const (
	KindSpotter      ReportKind = "spotter"
	KindUnrecognized ReportKind = "unrecognized"
)

// Geo represents a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat,omitempty"`
	Lon float64 `json:"lon,omitempty"`
}

// RawReport is a single report line from the SpotterNetwork feed after line
// normalization and structural parsing. Kind KindUnrecognized means the line
// matched the "Icon:" prefix but not the report grammar; such reports carry
// only ID and RawLine.
type RawReport struct {
	// ID is the SHA-256 content hash of the normalized feed line. Stable
	// across polls and retries.
	ID string

	Kind ReportKind

	// HazardCode is the raw hazard code field from the feed ("1".."10",
	// possibly unknown values for new hazard types).
	HazardCode string

	// ReportedAt is the report time parsed from the payload, UTC.
	ReportedAt time.Time

	Geo      Geo
	Reporter string

	// Magnitude and Unit are hazard-specific: inches for hail, mph for wind,
	// zero/empty otherwise. Measured is true when the value was instrument-
	// measured rather than estimated.
	Magnitude float64
	Unit      string
	Measured  bool

	Notes string

	// RawLine is the normalized feed line, echoed into the canonical event
	// and into quarantine records for audit.
	RawLine string
}

// Checkpoint is the durable ingestion cursor. Cursor is the report time of
// the newest successfully committed report; it never decreases across
// successful cycles. LastSuccess is when the last commit happened.
type Checkpoint struct {
	Cursor      time.Time `json:"cursor"`
	LastSuccess time.Time `json:"last_success"`
}

// IsZero reports whether the checkpoint has never been committed.
func (c Checkpoint) IsZero() bool {
	return c.Cursor.IsZero() && c.LastSuccess.IsZero()
}

// QuarantineReason classifies why a report failed normalization.
type QuarantineReason string

const (
	ReasonMalformed    QuarantineReason = "malformed"
	ReasonUnknownType  QuarantineReason = "unknown_type"
	ReasonMissingField QuarantineReason = "missing_field"
	ReasonOutOfRange   QuarantineReason = "out_of_range"
)

// QuarantineRecord is a report that failed normalization, retained for
// inspection instead of being dropped.
type QuarantineRecord struct {
	ReportID   string           `json:"report_id"`
	Reason     QuarantineReason `json:"reason"`
	Detail     string           `json:"detail,omitempty"`
	RawLine    string           `json:"raw_line"`
	ObservedAt time.Time        `json:"observed_at"`
}
