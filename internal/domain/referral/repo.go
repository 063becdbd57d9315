package referral

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ListFilter narrows List results. Zero values mean "any".
type ListFilter struct {
	AgentID *uuid.UUID
	Status  Status
}

type Repository interface {
	Create(ctx context.Context, r *Referral) error
	GetByID(ctx context.Context, id int64) (*Referral, error)
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Referral, int, error)

	// UpdateStatus performs a conditional transition: the row is updated
	// only if its current status equals from. Returns false when the
	// condition did not hold.
	UpdateStatus(ctx context.Context, id int64, from, to Status) (bool, error)

	// OpenByClinic returns claimable referrals (open status, not yet
	// settled by an approved report) whose clinic matches; clinic "" means
	// all clinics.
	OpenByClinic(ctx context.Context, clinic string) ([]*Referral, error)

	// SettleVisited atomically sets treatment amount, settled report link,
	// settled timestamp and status=visited, claiming the referral for the
	// given report. The update is conditional on the referral being open
	// and unclaimed; returns false when another report won the claim or
	// the referral is not settleable.
	SettleVisited(ctx context.Context, id int64, amount int64, reportID uuid.UUID, at time.Time) (bool, error)

	// SetPaid records the computed commission and moves visited -> paid.
	// Returns false when the referral is not in visited.
	SetPaid(ctx context.Context, id int64, commission int64) (bool, error)

	// TrailingRevenue sums treatment amounts of the agent's other
	// referrals settled at or after since.
	TrailingRevenue(ctx context.Context, agentID uuid.UUID, since time.Time, excludeID int64) (int64, error)

	AppendHistory(ctx context.Context, e *HistoryEntry) error
	History(ctx context.Context, referralID int64) ([]*HistoryEntry, error)
}
