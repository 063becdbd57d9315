package report

import (
	"time"

	"github.com/google/uuid"
)

// Status is the review lifecycle of a clinic report.
type Status string

const (
	StatusPendingReview Status = "pending_review"
	StatusAutoMatched   Status = "auto_matched"
	StatusApproved      Status = "approved"
	StatusRejected      Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPendingReview, StatusAutoMatched, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Reviewable reports whether the report can still be edited, relinked,
// approved or rejected.
func (s Status) Reviewable() bool {
	return s == StatusPendingReview || s == StatusAutoMatched
}

// ClinicReport is one structured candidate extracted from an inbound clinic
// email. Raw source metadata is kept verbatim for audit; extracted fields are
// nullable because extraction is best effort. TreatmentAmount is in minor
// currency units.
type ClinicReport struct {
	ID       uuid.UUID `db:"id" json:"id"`
	SourceID string    `db:"source_id" json:"source_id"`

	Sender     string    `db:"sender" json:"sender"`
	Subject    string    `db:"subject" json:"subject"`
	ReceivedAt time.Time `db:"received_at" json:"received_at"`
	RawBody    string    `db:"raw_body" json:"raw_body"`

	PatientName          *string    `db:"patient_name" json:"patient_name,omitempty"`
	ClinicName           *string    `db:"clinic_name" json:"clinic_name,omitempty"`
	VisitDate            *time.Time `db:"visit_date" json:"visit_date,omitempty"`
	TreatmentAmount      *int64     `db:"treatment_amount" json:"treatment_amount,omitempty"`
	Services             []string   `db:"services" json:"services,omitempty"`
	ExtractionConfidence float64    `db:"extraction_confidence" json:"extraction_confidence"`

	Status              Status  `db:"status" json:"status"`
	MatchConfidence     *int    `db:"match_confidence" json:"match_confidence,omitempty"`
	LinkedReferralID    *int64  `db:"linked_referral_id" json:"linked_referral_id,omitempty"`
	SuggestedReferralID *int64  `db:"suggested_referral_id" json:"suggested_referral_id,omitempty"`
	ReviewerNotes       *string `db:"reviewer_notes" json:"reviewer_notes,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
