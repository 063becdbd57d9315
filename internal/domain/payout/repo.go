package payout

import (
	"context"

	"github.com/google/uuid"
)

// ListFilter narrows List results. Zero values mean "any".
type ListFilter struct {
	AgentID *uuid.UUID
	Status  Status
}

type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Payment, int, error)

	// ListProcessing returns payments awaiting a provider verdict, oldest
	// first, for the status-sync poller.
	ListProcessing(ctx context.Context, limit int) ([]*Payment, error)

	// SetSubmitted records the provider handles and moves the payment to
	// processing. Conditional on the payment still being pending; returns
	// false when another submission won.
	SetSubmitted(ctx context.Context, id uuid.UUID, providerPaymentID, providerStatus string) (bool, error)

	// SetFailure stores the failure reason of an unsuccessful submission
	// attempt. The payment stays pending so an explicit retry can pick it
	// up.
	SetFailure(ctx context.Context, id uuid.UUID, reason string) error

	// SetProviderStatus maps a polled provider status onto the payment.
	// Conditional on the current local status being non-terminal; returns
	// false when the payment was already finalized.
	SetProviderStatus(ctx context.Context, id uuid.UUID, providerStatus string, local Status) (bool, error)
}
