package report

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/refermed/refermed/internal/domain/referral"
	"github.com/refermed/refermed/internal/platform/fault"
)

type mockReportRepo struct {
	reports  map[uuid.UUID]*ClinicReport
	bySource map[string]uuid.UUID
}

func newMockReportRepo() *mockReportRepo {
	return &mockReportRepo{
		reports:  make(map[uuid.UUID]*ClinicReport),
		bySource: make(map[string]uuid.UUID),
	}
}

func (m *mockReportRepo) InsertIfNew(_ context.Context, r *ClinicReport) (bool, error) {
	if _, dup := m.bySource[r.SourceID]; dup {
		return false, nil
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	cp := *r
	m.reports[r.ID] = &cp
	m.bySource[r.SourceID] = r.ID
	return true, nil
}

func (m *mockReportRepo) GetByID(_ context.Context, id uuid.UUID) (*ClinicReport, error) {
	r, ok := m.reports[id]
	if !ok {
		return nil, fmt.Errorf("report %s not found", id)
	}
	cp := *r
	return &cp, nil
}

func (m *mockReportRepo) List(_ context.Context, f ListFilter, limit, offset int) ([]*ClinicReport, int, error) {
	var result []*ClinicReport
	for _, r := range m.reports {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		cp := *r
		result = append(result, &cp)
	}
	return result, len(result), nil
}

func (m *mockReportRepo) SetMatch(_ context.Context, id uuid.UUID, status Status, confidence int, linked, suggested *int64) error {
	r, ok := m.reports[id]
	if !ok {
		return fmt.Errorf("report %s not found", id)
	}
	r.Status = status
	r.MatchConfidence = &confidence
	r.LinkedReferralID = linked
	r.SuggestedReferralID = suggested
	return nil
}

func (m *mockReportRepo) UpdateExtracted(_ context.Context, rep *ClinicReport) (bool, error) {
	r, ok := m.reports[rep.ID]
	if !ok || !r.Status.Reviewable() {
		return false, nil
	}
	r.PatientName = rep.PatientName
	r.ClinicName = rep.ClinicName
	r.VisitDate = rep.VisitDate
	r.TreatmentAmount = rep.TreatmentAmount
	r.Services = rep.Services
	return true, nil
}

func (m *mockReportRepo) Relink(_ context.Context, id uuid.UUID, referralID int64) (bool, error) {
	r, ok := m.reports[id]
	if !ok || !r.Status.Reviewable() {
		return false, nil
	}
	r.LinkedReferralID = &referralID
	r.SuggestedReferralID = nil
	return true, nil
}

func (m *mockReportRepo) MarkApproved(_ context.Context, id uuid.UUID, referralID int64) (bool, error) {
	r, ok := m.reports[id]
	if !ok || !r.Status.Reviewable() {
		return false, nil
	}
	r.Status = StatusApproved
	r.LinkedReferralID = &referralID
	return true, nil
}

func (m *mockReportRepo) MarkRejected(_ context.Context, id uuid.UUID, notes string) (bool, error) {
	r, ok := m.reports[id]
	if !ok || !r.Status.Reviewable() {
		return false, nil
	}
	r.Status = StatusRejected
	r.ReviewerNotes = &notes
	return true, nil
}

type mockReferralRepo struct {
	referrals map[int64]*referral.Referral
}

func newMockReferralRepo() *mockReferralRepo {
	return &mockReferralRepo{referrals: make(map[int64]*referral.Referral)}
}

func (m *mockReferralRepo) Create(_ context.Context, r *referral.Referral) error {
	m.referrals[r.ID] = r
	return nil
}

func (m *mockReferralRepo) GetByID(_ context.Context, id int64) (*referral.Referral, error) {
	r, ok := m.referrals[id]
	if !ok {
		return nil, fmt.Errorf("referral %d not found", id)
	}
	return r, nil
}

func (m *mockReferralRepo) List(_ context.Context, f referral.ListFilter, limit, offset int) ([]*referral.Referral, int, error) {
	return nil, 0, nil
}

func (m *mockReferralRepo) UpdateStatus(_ context.Context, id int64, from, to referral.Status) (bool, error) {
	return false, nil
}

func (m *mockReferralRepo) OpenByClinic(_ context.Context, clinic string) ([]*referral.Referral, error) {
	var result []*referral.Referral
	for _, r := range m.referrals {
		if !r.Status.Open() || r.SettledReportID != nil {
			continue
		}
		if clinic != "" && (r.ClinicName == nil || *r.ClinicName != clinic) {
			continue
		}
		result = append(result, r)
	}
	return result, nil
}

func (m *mockReferralRepo) SettleVisited(_ context.Context, id int64, amount int64, reportID uuid.UUID, at time.Time) (bool, error) {
	return false, nil
}

func (m *mockReferralRepo) SetPaid(_ context.Context, id int64, commission int64) (bool, error) {
	return false, nil
}

func (m *mockReferralRepo) TrailingRevenue(_ context.Context, agentID uuid.UUID, since time.Time, excludeID int64) (int64, error) {
	return 0, nil
}

func (m *mockReferralRepo) AppendHistory(_ context.Context, e *referral.HistoryEntry) error { return nil }

func (m *mockReferralRepo) History(_ context.Context, referralID int64) ([]*referral.HistoryEntry, error) {
	return nil, nil
}

type fakeProducer struct {
	batch []*ClinicReport
}

func (p *fakeProducer) Fetch(_ context.Context, limit int) ([]*ClinicReport, error) {
	if limit < len(p.batch) {
		return p.batch[:limit], nil
	}
	return p.batch, nil
}

func newTestService(reports *mockReportRepo, referrals *mockReferralRepo) *Service {
	return NewService(reports, referrals, NewMatcher(85, 60), zerolog.Nop())
}

func TestIngestRoutesNewReports(t *testing.T) {
	reports := newMockReportRepo()
	referrals := newMockReferralRepo()
	created := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	clinic := "Smile Dental"
	referrals.referrals[42] = &referral.Referral{
		ID: 42, AgentID: uuid.New(), PatientName: "Anna Kuznetsova",
		ClinicName: &clinic, Status: referral.StatusBooked, CreatedAt: created,
	}
	svc := newTestService(reports, referrals)

	producer := &fakeProducer{batch: []*ClinicReport{{
		SourceID:    "msg-1",
		Sender:      "reports@smile-dental.example",
		Subject:     "Visit report",
		ReceivedAt:  created.AddDate(0, 0, 2),
		PatientName: strptr("Anna Kuznetsova"),
		ClinicName:  &clinic,
		VisitDate:   tptr(created.AddDate(0, 0, 2)),
	}}}

	stored, err := svc.Ingest(context.Background(), producer, 50)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if stored != 1 {
		t.Fatalf("expected 1 stored report, got %d", stored)
	}

	id := reports.bySource["msg-1"]
	got := reports.reports[id]
	if got.Status != StatusAutoMatched {
		t.Errorf("expected auto_matched, got %s", got.Status)
	}
	if got.LinkedReferralID == nil || *got.LinkedReferralID != 42 {
		t.Errorf("expected linked referral 42, got %v", got.LinkedReferralID)
	}
}

func TestIngestDeduplicatesBySourceID(t *testing.T) {
	reports := newMockReportRepo()
	svc := newTestService(reports, newMockReferralRepo())
	rep := func() *ClinicReport {
		return &ClinicReport{SourceID: "msg-1", PatientName: strptr("Anna Kuznetsova")}
	}

	stored, err := svc.Ingest(context.Background(), &fakeProducer{batch: []*ClinicReport{rep()}}, 50)
	if err != nil || stored != 1 {
		t.Fatalf("first ingest: stored=%d err=%v", stored, err)
	}
	stored, err = svc.Ingest(context.Background(), &fakeProducer{batch: []*ClinicReport{rep()}}, 50)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if stored != 0 {
		t.Errorf("expected redelivery to store nothing, got %d", stored)
	}
	if len(reports.reports) != 1 {
		t.Errorf("expected a single stored report, got %d", len(reports.reports))
	}
}

func TestIngestSkipsBrokenItems(t *testing.T) {
	reports := newMockReportRepo()
	svc := newTestService(reports, newMockReferralRepo())

	batch := []*ClinicReport{
		{PatientName: strptr("No Source")},
		{SourceID: "msg-2", PatientName: strptr("Anna Kuznetsova")},
	}
	stored, err := svc.Ingest(context.Background(), &fakeProducer{batch: batch}, 50)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if stored != 1 {
		t.Errorf("expected the valid item to be stored, got %d", stored)
	}
}

func TestEditExtractedRejectsFinalizedReport(t *testing.T) {
	reports := newMockReportRepo()
	svc := newTestService(reports, newMockReferralRepo())

	rep := &ClinicReport{SourceID: "msg-1", Status: StatusApproved}
	if _, err := reports.InsertIfNew(context.Background(), rep); err != nil {
		t.Fatal(err)
	}

	_, err := svc.EditExtracted(context.Background(), rep.ID, ExtractedPatch{PatientName: strptr("X")})
	if !fault.IsPrecondition(err) {
		t.Errorf("expected precondition error, got %v", err)
	}
}

func TestEditExtractedAppliesPatch(t *testing.T) {
	reports := newMockReportRepo()
	svc := newTestService(reports, newMockReferralRepo())

	rep := &ClinicReport{SourceID: "msg-1", Status: StatusPendingReview, PatientName: strptr("Ana K")}
	if _, err := reports.InsertIfNew(context.Background(), rep); err != nil {
		t.Fatal(err)
	}

	got, err := svc.EditExtracted(context.Background(), rep.ID, ExtractedPatch{
		PatientName:     strptr("Anna Kuznetsova"),
		TreatmentAmount: i64ptr(120_000),
	})
	if err != nil {
		t.Fatalf("edit: %v", err)
	}
	if got.PatientName == nil || *got.PatientName != "Anna Kuznetsova" {
		t.Errorf("patient name not applied: %v", got.PatientName)
	}
	if got.TreatmentAmount == nil || *got.TreatmentAmount != 120_000 {
		t.Errorf("treatment amount not applied: %v", got.TreatmentAmount)
	}

	_, err = svc.EditExtracted(context.Background(), rep.ID, ExtractedPatch{TreatmentAmount: i64ptr(-5)})
	if !fault.IsValidation(err) {
		t.Errorf("expected validation error for negative amount, got %v", err)
	}
}

func TestRelinkRequiresOpenReferral(t *testing.T) {
	reports := newMockReportRepo()
	referrals := newMockReferralRepo()
	svc := newTestService(reports, referrals)
	ctx := context.Background()

	rep := &ClinicReport{SourceID: "msg-1", Status: StatusPendingReview}
	if _, err := reports.InsertIfNew(ctx, rep); err != nil {
		t.Fatal(err)
	}

	referrals.referrals[1] = &referral.Referral{ID: 1, Status: referral.StatusCancelled}
	referrals.referrals[2] = &referral.Referral{ID: 2, Status: referral.StatusBooked}

	if _, err := svc.Relink(ctx, rep.ID, 1); !fault.IsPrecondition(err) {
		t.Errorf("expected precondition error for cancelled referral, got %v", err)
	}
	if _, err := svc.Relink(ctx, rep.ID, 99); !fault.IsValidation(err) {
		t.Errorf("expected validation error for missing referral, got %v", err)
	}

	got, err := svc.Relink(ctx, rep.ID, 2)
	if err != nil {
		t.Fatalf("relink: %v", err)
	}
	if got.LinkedReferralID == nil || *got.LinkedReferralID != 2 {
		t.Errorf("expected linked referral 2, got %v", got.LinkedReferralID)
	}
}
