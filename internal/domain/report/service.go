package report

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/refermed/refermed/internal/domain/referral"
	"github.com/refermed/refermed/internal/platform/fault"
)

type Service struct {
	reports   Repository
	referrals referral.Repository
	matcher   *Matcher
	logger    zerolog.Logger
}

func NewService(reports Repository, referrals referral.Repository, matcher *Matcher, logger zerolog.Logger) *Service {
	return &Service{reports: reports, referrals: referrals, matcher: matcher, logger: logger}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*ClinicReport, error) {
	return s.reports.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]*ClinicReport, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, fault.Validation("status", "unknown status %q", f.Status)
	}
	return s.reports.List(ctx, f, limit, offset)
}

// ExtractedPatch carries reviewer corrections to the extracted fields. Nil
// means "leave unchanged".
type ExtractedPatch struct {
	PatientName     *string    `json:"patient_name,omitempty"`
	ClinicName      *string    `json:"clinic_name,omitempty"`
	VisitDate       *time.Time `json:"visit_date,omitempty"`
	TreatmentAmount *int64     `json:"treatment_amount,omitempty"`
	Services        []string   `json:"services,omitempty"`
}

// EditExtracted applies reviewer corrections to a report that has not been
// finalized yet.
func (s *Service) EditExtracted(ctx context.Context, id uuid.UUID, patch ExtractedPatch) (*ClinicReport, error) {
	rep, err := s.reports.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rep.Status.Reviewable() {
		return nil, fault.Precondition("report %s is %s and can no longer be edited", id, rep.Status)
	}
	if patch.TreatmentAmount != nil && *patch.TreatmentAmount < 0 {
		return nil, fault.Validation("treatment_amount", "must not be negative")
	}

	if patch.PatientName != nil {
		rep.PatientName = patch.PatientName
	}
	if patch.ClinicName != nil {
		rep.ClinicName = patch.ClinicName
	}
	if patch.VisitDate != nil {
		rep.VisitDate = patch.VisitDate
	}
	if patch.TreatmentAmount != nil {
		rep.TreatmentAmount = patch.TreatmentAmount
	}
	if patch.Services != nil {
		rep.Services = patch.Services
	}

	ok, err := s.reports.UpdateExtracted(ctx, rep)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fault.Precondition("report %s was finalized concurrently", id)
	}
	return rep, nil
}

// Relink points a still-reviewable report at a different open referral.
func (s *Service) Relink(ctx context.Context, id uuid.UUID, referralID int64) (*ClinicReport, error) {
	rep, err := s.reports.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rep.Status.Reviewable() {
		return nil, fault.Precondition("report %s is %s and can no longer be relinked", id, rep.Status)
	}

	ref, err := s.referrals.GetByID(ctx, referralID)
	if err != nil {
		return nil, fault.Validation("referral_id", "referral %d not found", referralID)
	}
	if !ref.Status.Open() || ref.SettledReportID != nil {
		return nil, fault.Precondition("referral %d is not claimable (status %s)", referralID, ref.Status)
	}

	ok, err := s.reports.Relink(ctx, id, referralID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fault.Precondition("report %s was finalized concurrently", id)
	}
	rep.LinkedReferralID = &referralID
	rep.SuggestedReferralID = nil
	return rep, nil
}
