package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const iconPrefix = "Icon:"

var (
	// ageDigitReplacer zeroes the icon age digit (fourth field). The feed
	// mutates this digit as a report ages, so it must not participate in
	// report identity.
	ageDigitReplacer = strings.NewReplacer(
		",000,3", ",000,0",
		",000,4", ",000,0",
		",000,5", ",000,0",
	)

	// reportRe matches one normalized feed line. The payload's "\n" sequences
	// are literal backslash-n pairs, hence the doubled escapes. Size (hail,
	// inches), mph (wind) and [Measured] are optional; the "otes:" anchor is
	// deliberately loose because some wind reports omit the separator before
	// "Notes:".
	reportRe = regexp.MustCompile(`^Icon: (?P<lat>-?\d{1,3}\.\d+),(?P<lon>-?\d{1,3}\.\d+),000,\d,(?P<code>\d{1,2}),"Reported By: (?P<reporter>[^\\]+)\\n[^\\]+\\nTime: (?P<ts>[^\\]+) UTC(?:\\nSize: (?P<size>\d{1,2}\.\d{2})[^\\]*)?(?:\\n(?P<mph>\d{1,3}) mph)?(?P<measured> \[Measured\])?.*?otes: (?P<notes>.*)"$`)
)

// NormalizeLine canonicalizes a raw feed line so that the same report always
// hashes to the same ID regardless of its icon age digit.
func NormalizeLine(line string) string {
	return ageDigitReplacer.Replace(strings.TrimSpace(line))
}

// ParseFeed extracts all reports from a feed body. Lines not starting with
// "Icon:" are feed chrome and ignored; "Icon:" lines that fail the report
// grammar come back as KindUnrecognized for quarantine. Duplicate lines
// within one body collapse to a single report. Results are ordered by report
// time ascending (ties broken by ID) so the caller can advance its cursor
// monotonically.
func ParseFeed(body string) []RawReport {
	seen := make(map[string]struct{})
	var reports []RawReport

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, iconPrefix) {
			continue
		}
		r := ParseLine(line)
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		reports = append(reports, r)
	}

	sort.SliceStable(reports, func(i, j int) bool {
		if reports[i].ReportedAt.Equal(reports[j].ReportedAt) {
			return reports[i].ID < reports[j].ID
		}
		return reports[i].ReportedAt.Before(reports[j].ReportedAt)
	})
	return reports
}

// ParseLine normalizes and structurally parses a single "Icon:" line.
// It never fails: lines that don't match the report grammar produce a
// KindUnrecognized report carrying only ID and RawLine.
func ParseLine(line string) RawReport {
	norm := NormalizeLine(line)
	id := reportID(norm)

	m := reportRe.FindStringSubmatch(norm)
	if m == nil {
		return RawReport{ID: id, Kind: KindUnrecognized, RawLine: norm}
	}
	group := func(name string) string {
		return m[reportRe.SubexpIndex(name)]
	}

	r := RawReport{
		ID:         id,
		Kind:       KindSpotter,
		HazardCode: group("code"),
		Geo: Geo{
			Lat: parseFloatOrZero(group("lat")),
			Lon: parseFloatOrZero(group("lon")),
		},
		Reporter: group("reporter"),
		Measured: group("measured") != "",
		Notes:    group("notes"),
		RawLine:  norm,
	}

	if ts, err := time.ParseInLocation("2006-01-02 15:04:05", group("ts"), time.UTC); err == nil {
		r.ReportedAt = ts
	}

	// Wind magnitude wins over hail size when both somehow appear; the feed
	// never carries both for a real report.
	switch {
	case group("mph") != "":
		r.Magnitude = parseFloatOrZero(group("mph"))
		r.Unit = "mph"
	case group("size") != "":
		r.Magnitude = parseFloatOrZero(group("size"))
		r.Unit = "in"
	}

	return r
}

// parseFloatOrZero parses a string as float64, returning 0 on failure.
func parseFloatOrZero(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// reportID produces a deterministic ID from the normalized line content.
// Content addressing makes downstream upserts idempotent and replay safe.
func reportID(normalizedLine string) string {
	hash := sha256.Sum256([]byte(normalizedLine))
	return hex.EncodeToString(hash[:8])
}
