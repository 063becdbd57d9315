package agent

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *Agent) error
	GetByID(ctx context.Context, id uuid.UUID) (*Agent, error)
	List(ctx context.Context, limit, offset int) ([]*Agent, int, error)
	Update(ctx context.Context, a *Agent) error

	// SetProviderIDs stores the payout provider's payee and requisite
	// handles once registration with the provider succeeds.
	SetProviderIDs(ctx context.Context, id uuid.UUID, payeeID, requisiteID string) error
}
