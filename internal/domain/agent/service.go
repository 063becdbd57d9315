package agent

import (
	"context"

	"github.com/google/uuid"

	"github.com/refermed/refermed/internal/platform/fault"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, a *Agent) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if a.PayoutMethod != "" && !a.PayoutMethod.Valid() {
		return fault.Validation("payout_method", "unknown method %q", a.PayoutMethod)
	}
	return s.repo.Create(ctx, a)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Agent, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Agent, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// Update replaces the agent's profile and payout requisites. Changing
// requisites clears the provider handles so the gateway re-registers them on
// the next payout.
func (s *Service) Update(ctx context.Context, a *Agent) (*Agent, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	current, err := s.repo.GetByID(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	if requisitesChanged(current, a) {
		if err := s.repo.SetProviderIDs(ctx, a.ID, "", ""); err != nil {
			return nil, err
		}
		a.ProviderPayeeID = nil
		a.ProviderRequisiteID = nil
	} else {
		a.ProviderPayeeID = current.ProviderPayeeID
		a.ProviderRequisiteID = current.ProviderRequisiteID
	}
	return a, nil
}

func requisitesChanged(prev, next *Agent) bool {
	return prev.PayoutMethod != next.PayoutMethod ||
		!eqPtr(prev.CardNumber, next.CardNumber) ||
		!eqPtr(prev.BankAccount, next.BankAccount) ||
		!eqPtr(prev.BankRouting, next.BankRouting) ||
		prev.Phone != next.Phone
}

func eqPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
