package referral

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/refermed/refermed/internal/platform/fault"
)

// Service owns referral submissions and agent-facing status nudges. Moving a
// referral into visited or paid is the settlement orchestrator's job and is
// not reachable through this service; that guarantee keeps commission and
// treatment amounts populated before any referral reads as settled.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, r *Referral) error {
	if r.AgentID == uuid.Nil {
		return fault.Validation("agent_id", "is required")
	}
	if r.PatientName == "" {
		return fault.Validation("patient_name", "is required")
	}
	if r.Status == "" {
		r.Status = StatusNew
	}
	if r.Status != StatusNew {
		return fault.Validation("status", "new referrals start in %q, got %q", StatusNew, r.Status)
	}
	return s.repo.Create(ctx, r)
}

func (s *Service) Get(ctx context.Context, id int64) (*Referral, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Referral, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, fault.Validation("status", "unknown status %q", f.Status)
	}
	return s.repo.List(ctx, f, limit, offset)
}

func (s *Service) History(ctx context.Context, id int64) ([]*HistoryEntry, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.History(ctx, id)
}

// Advance moves a referral to a later funnel stage or a side exit on behalf
// of an agent or operator. visited and paid are reserved for settlement.
func (s *Service) Advance(ctx context.Context, id int64, to Status, actor string) (*Referral, error) {
	if !to.Valid() {
		return nil, fault.Validation("status", "unknown status %q", to)
	}
	if to == StatusVisited || to == StatusPaid {
		return nil, fault.Precondition("status %q is set by settlement, not manually", to)
	}

	ref, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(ref.Status, to) {
		return nil, fault.Precondition("invalid transition %s -> %s for referral %d", ref.Status, to, id)
	}

	ok, err := s.repo.UpdateStatus(ctx, id, ref.Status, to)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost a race with a concurrent transition.
		return nil, fault.Precondition("referral %d changed concurrently, re-read and retry", id)
	}

	if err := s.repo.AppendHistory(ctx, &HistoryEntry{
		ReferralID: id,
		FromStatus: ref.Status,
		ToStatus:   to,
		Actor:      actor,
	}); err != nil {
		return nil, fmt.Errorf("record history for referral %d: %w", id, err)
	}

	ref.Status = to
	return ref, nil
}
