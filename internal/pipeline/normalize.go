package pipeline

import (
	"github.com/couchcryptid/spotter-report-loader/internal/domain"
)

// ReportNormalizer adapts domain.Normalize to the Normalizer interface.
type ReportNormalizer struct{}

// NewReportNormalizer creates the production normalizer.
func NewReportNormalizer() ReportNormalizer {
	return ReportNormalizer{}
}

// Normalize converts a raw report into a canonical event or a quarantine
// record. Both results nil means the report was deliberately skipped.
func (ReportNormalizer) Normalize(r domain.RawReport) (*domain.CanonicalEvent, *domain.QuarantineRecord) {
	return domain.Normalize(r)
}
