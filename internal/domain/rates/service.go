package rates

import (
	"context"

	"github.com/google/uuid"

	"github.com/refermed/refermed/internal/platform/fault"
)

type Service struct {
	tiers TierRepository
}

func NewService(tiers TierRepository) *Service {
	return &Service{tiers: tiers}
}

func (s *Service) GlobalSchedule(ctx context.Context) ([]Tier, error) {
	return s.tiers.GlobalSchedule(ctx)
}

func (s *Service) OverridesForAgent(ctx context.Context, agentID uuid.UUID) ([]Tier, error) {
	return s.tiers.OverridesForAgent(ctx, agentID)
}

// SetOverrides replaces an agent's override tier list. An empty list clears
// the overrides so the global schedule applies again.
func (s *Service) SetOverrides(ctx context.Context, agentID uuid.UUID, tiers []Tier) error {
	if agentID == uuid.Nil {
		return fault.Validation("agent_id", "is required")
	}
	for _, t := range tiers {
		if t.MinMonthlyRevenue < 0 {
			return fault.Validation("min_monthly_revenue", "must be non-negative, got %d", t.MinMonthlyRevenue)
		}
		if t.RateBps <= 0 || t.RateBps > bpsDenominator {
			return fault.Validation("rate_bps", "must be in (0, %d], got %d", bpsDenominator, t.RateBps)
		}
	}
	return s.tiers.ReplaceOverrides(ctx, agentID, tiers)
}

// NewEngineFromStore loads the global schedule and builds an engine over it.
func NewEngineFromStore(ctx context.Context, tiers TierRepository) (*Engine, error) {
	schedule, err := tiers.GlobalSchedule(ctx)
	if err != nil {
		return nil, err
	}
	return NewEngine(schedule), nil
}
