// Package domain models SpotterNetwork (SN) storm spotter reports and the
// canonical storm event schema shared with the sibling ingestion loaders.
//
// # Data Source
//
// Reports come from the SpotterNetwork public feed at
// http://www.spotternetwork.org/feeds/reports.txt. The feed is plain text with
// one report per line, each starting with "Icon:":
//
//	Icon: <lat>,<lon>,000,<age>,<hazard code>,"Reported By: <name>\n<hazard>\nTime: <ts> UTC[\nSize: <in>" (...)][\n<n> mph][ [Measured]]\nNotes: <text>"
//
// The "\n" sequences are literal two-character escapes inside the quoted
// payload, not newlines.
//
// # Feed Conventions
//
// The feed has no server-side cursor: every poll returns the full current set
// of reports, so the same report is seen many times. Worse, the icon age digit
// (fourth field) mutates as a report ages, so lines are normalized by zeroing
// that digit (see [NormalizeLine]) before identity is computed.
//
// Hazard codes:
//
//	1 tornado, 2 funnel cloud, 3 wall cloud, 4 hail, 5 wind, 6 flood,
//	7 flash flood, 8 other, 9 freezing rain, 10 snow.
//
// Magnitude is hazard-specific: hail carries "Size: <inches>", wind carries
// "<n> mph", optionally suffixed with "[Measured]" when instrument-measured
// rather than estimated. Other hazards carry no magnitude.
//
// An "Other" report whose notes are "None" carries no usable information and
// is deliberately dropped during normalization.
//
// # ID Generation
//
// Report IDs are deterministic SHA-256 hashes of the normalized feed line, so
// reprocessing the same report always yields the same canonical event ID.
// This enables idempotent upserts downstream (ON CONFLICT DO NOTHING) and
// makes whole-batch retries after a crash safe.
package domain
