package domain

import "fmt"

// hazardTable is the explicit, total mapping from SpotterNetwork hazard codes
// to the canonical event-type enum. Flash flood (7) folds into flood, matching
// how the sibling loaders bucket it.
var hazardTable = map[string]EventType{
	"1":  EventTornado,
	"2":  EventFunnelCloud,
	"3":  EventWallCloud,
	"4":  EventHail,
	"5":  EventWind,
	"6":  EventFlood,
	"7":  EventFlood,
	"8":  EventOther,
	"9":  EventFreezingRain,
	"10": EventSnow,
}

// hazardNames holds the human-readable hazard labels used in event titles.
var hazardNames = map[string]string{
	"1":  "Tornado",
	"2":  "Funnel Cloud",
	"3":  "Wall Cloud",
	"4":  "Hail",
	"5":  "Wind",
	"6":  "Flood",
	"7":  "Flash Flood",
	"8":  "Other",
	"9":  "Freezing Rain",
	"10": "Snow",
}

// Magnitude plausibility bounds. The largest hail ever recorded in the US was
// ~8 inches (Vivian, SD, 2010); the highest surface wind ever measured was
// 253 mph. Values beyond these are data errors, not weather.
const (
	maxHailInches = 10.0
	maxWindMph    = 300.0
)

// Normalize maps a raw report to the canonical event schema.
//
// Exactly one of the three outcomes applies:
//   - (event, nil): the report normalized cleanly.
//   - (nil, record): the report failed normalization and is quarantined.
//   - (nil, nil): the report is deliberately skipped ("Other" hazard with no
//     notes carries no information worth storing).
//
// Normalize is pure with respect to report content: the same RawReport always
// yields the same event ID.
func Normalize(r RawReport) (*CanonicalEvent, *QuarantineRecord) {
	if r.Kind == KindUnrecognized {
		return nil, quarantine(r, ReasonMalformed, "line does not match report grammar")
	}

	eventType, known := hazardTable[r.HazardCode]
	if !known {
		return nil, quarantine(r, ReasonUnknownType, fmt.Sprintf("unknown hazard code %q", r.HazardCode))
	}

	if eventType == EventOther && r.Notes == "None" {
		return nil, nil
	}

	if r.ReportedAt.IsZero() {
		return nil, quarantine(r, ReasonMissingField, "report timestamp missing or unparseable")
	}
	if r.Geo.Lat == 0 && r.Geo.Lon == 0 {
		return nil, quarantine(r, ReasonMissingField, "report has no geolocation")
	}
	if r.Geo.Lat < -90 || r.Geo.Lat > 90 || r.Geo.Lon < -180 || r.Geo.Lon > 180 {
		return nil, quarantine(r, ReasonOutOfRange, fmt.Sprintf("coordinates out of range: %.6f,%.6f", r.Geo.Lat, r.Geo.Lon))
	}
	if r.Unit == "in" && r.Magnitude > maxHailInches {
		return nil, quarantine(r, ReasonOutOfRange, fmt.Sprintf("hail size %.2fin exceeds plausible maximum", r.Magnitude))
	}
	if r.Unit == "mph" && r.Magnitude > maxWindMph {
		return nil, quarantine(r, ReasonOutOfRange, fmt.Sprintf("wind speed %.0fmph exceeds plausible maximum", r.Magnitude))
	}

	hazardName := hazardNames[r.HazardCode]
	text := fmt.Sprintf("%s reported by %s", hazardName, r.Reporter)
	if r.Notes != "None" && r.Notes != "" {
		text = fmt.Sprintf("%s. %s", text, r.Notes)
	}

	return &CanonicalEvent{
		ID:         "snr-" + r.ID,
		Source:     SourceTag,
		EventType:  eventType,
		EventTime:  r.ReportedAt.UTC(),
		Geo:        r.Geo,
		Magnitude:  r.Magnitude,
		Unit:       r.Unit,
		Measured:   r.Measured,
		Severity:   deriveSeverity(eventType, r.Magnitude, r.Unit),
		Reporter:   r.Reporter,
		Title:      "Report: " + hazardName,
		Text:       text,
		RawLine:    r.RawLine,
		IngestedAt: clock.Now(),
	}, nil
}

// deriveSeverity maps magnitude to a severity label based on operational
// thresholds informed by NWS Severe Weather Criteria:
//   - hail: <0.75in minor, <1.5in moderate, <2.5in severe, else extreme
//   - wind: <50mph minor, <74mph moderate (tropical storm threshold),
//     <96mph severe (hurricane Cat 2), else extreme
//
// The four-level scale is shared with the sibling loaders. Returns nil when
// the report carries no magnitude or the hazard has no severity scale.
func deriveSeverity(eventType EventType, magnitude float64, unit string) *string {
	if magnitude == 0 {
		return nil
	}

	var s string
	switch {
	case eventType == EventHail && unit == "in":
		switch {
		case magnitude < 0.75:
			s = "minor"
		case magnitude < 1.5:
			s = "moderate"
		case magnitude < 2.5:
			s = "severe"
		default:
			s = "extreme"
		}
	case eventType == EventWind && unit == "mph":
		switch {
		case magnitude < 50:
			s = "minor"
		case magnitude < 74:
			s = "moderate"
		case magnitude < 96:
			s = "severe"
		default:
			s = "extreme"
		}
	default:
		return nil
	}
	return &s
}

func quarantine(r RawReport, reason QuarantineReason, detail string) *QuarantineRecord {
	return &QuarantineRecord{
		ReportID:   r.ID,
		Reason:     reason,
		Detail:     detail,
		RawLine:    r.RawLine,
		ObservedAt: clock.Now(),
	}
}
