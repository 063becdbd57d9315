package rates

import (
	"context"

	"github.com/google/uuid"
)

type TierRepository interface {
	GlobalSchedule(ctx context.Context) ([]Tier, error)
	OverridesForAgent(ctx context.Context, agentID uuid.UUID) ([]Tier, error)
	ReplaceOverrides(ctx context.Context, agentID uuid.UUID, tiers []Tier) error
}
