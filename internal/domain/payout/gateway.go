package payout

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/refermed/refermed/internal/domain/agent"
	"github.com/refermed/refermed/internal/platform/fault"
	"github.com/refermed/refermed/internal/platform/notification"
)

// Gateway submits payments to the settlement provider exactly once and keeps
// local status in sync. It never retries on its own; a failed submission
// leaves the payment pending with the failure reason recorded, and the caller
// decides whether to try again.
type Gateway struct {
	payments Repository
	agents   agent.Repository
	provider Provider
	notify   *notification.BestEffort
	logger   zerolog.Logger
}

func NewGateway(payments Repository, agents agent.Repository, provider Provider, notify notification.Sink, logger zerolog.Logger) *Gateway {
	return &Gateway{
		payments: payments,
		agents:   agents,
		provider: provider,
		notify:   &notification.BestEffort{Sink: notify, Logger: logger},
		logger:   logger,
	}
}

func (g *Gateway) Payments() Repository { return g.payments }

// Submit sends one pending payment to the provider. All preconditions are
// checked before any network call so a refusal never leaves partial state.
func (g *Gateway) Submit(ctx context.Context, paymentID uuid.UUID) (*Payment, error) {
	p, err := g.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.ProviderPaymentID != nil {
		return nil, fault.Precondition("payment %s was already submitted as provider payment %s", p.ID, *p.ProviderPaymentID)
	}
	if p.Status != StatusPending {
		return nil, fault.Precondition("payment %s is %s, not pending", p.ID, p.Status)
	}

	a, err := g.agents.GetByID(ctx, p.AgentID)
	if err != nil {
		return nil, err
	}
	if err := a.PayoutPreconditions(); err != nil {
		return nil, err
	}
	if a.PayoutMethod != p.Method {
		return nil, fault.Precondition("payment %s was created for %s payout but the agent now uses %s; recreate the payment", p.ID, p.Method, a.PayoutMethod)
	}

	result, err := g.submitToProvider(ctx, p, a)
	if err != nil {
		if ferr := g.payments.SetFailure(ctx, p.ID, err.Error()); ferr != nil {
			g.logger.Error().Err(ferr).Str("payment_id", p.ID.String()).Msg("recording submission failure")
		}
		return nil, err
	}

	if a.ProviderPayeeID == nil && result.PayeeID != "" {
		if err := g.agents.SetProviderIDs(ctx, a.ID, result.PayeeID, result.RequisiteID); err != nil {
			g.logger.Error().Err(err).Str("agent_id", a.ID.String()).Msg("storing provider payee ids")
		}
	}

	ok, err := g.payments.SetSubmitted(ctx, p.ID, result.ProviderPaymentID, result.ProviderStatus)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fault.Precondition("payment %s was submitted concurrently", p.ID)
	}

	g.notify.Notify(ctx, a.ID.String(),
		fmt.Sprintf("Payout of %d is on its way via %s.", p.Amount, p.Method))

	return g.payments.GetByID(ctx, p.ID)
}

func (g *Gateway) submitToProvider(ctx context.Context, p *Payment, a *agent.Agent) (*SubmitResult, error) {
	key := p.IdempotencyKey()
	if a.ProviderPayeeID != nil && a.ProviderRequisiteID != nil {
		return g.provider.SubmitPayment(ctx, PaymentRequest{
			PayeeID:        *a.ProviderPayeeID,
			RequisiteID:    *a.ProviderRequisiteID,
			Amount:         p.Amount,
			IdempotencyKey: key,
		})
	}
	return g.provider.SubmitWithPayee(ctx, CombinedRequest{
		Payee: PayeeRequest{
			FullName:     a.FullName,
			TaxID:        a.TaxID,
			Phone:        a.Phone,
			SelfEmployed: a.SelfEmployed,
		},
		Requisite:      requisiteFor(a),
		Amount:         p.Amount,
		IdempotencyKey: key,
	})
}

func requisiteFor(a *agent.Agent) RequisiteRequest {
	req := RequisiteRequest{Type: string(a.PayoutMethod)}
	switch a.PayoutMethod {
	case agent.MethodCard:
		if a.CardNumber != nil {
			req.CardNumber = *a.CardNumber
		}
	case agent.MethodSBP:
		req.Phone = a.Phone
	case agent.MethodBank:
		if a.BankAccount != nil {
			req.BankAccount = *a.BankAccount
		}
		if a.BankRouting != nil {
			req.BankRouting = *a.BankRouting
		}
	}
	return req
}

// Provider status codes observed on the wire.
const (
	providerStatusNew        = "NEW"
	providerStatusInProgress = "IN_PROGRESS"
	providerStatusCompleted  = "COMPLETED"
	providerStatusDeclined   = "DECLINED"
	providerStatusCancelled  = "CANCELLED"
	providerStatusFailed     = "FAILED"
)

func mapProviderStatus(providerStatus string) Status {
	switch providerStatus {
	case providerStatusCompleted:
		return StatusPaid
	case providerStatusDeclined, providerStatusCancelled:
		return StatusRejected
	case providerStatusFailed:
		return StatusError
	default:
		return StatusProcessing
	}
}

// SyncStatuses polls the provider for every processing payment and maps the
// answer onto the local record. Terminal local statuses are never
// overwritten; a failing poll is logged and skipped so the rest of the batch
// proceeds. Returns the number of payments that reached a terminal state.
func (g *Gateway) SyncStatuses(ctx context.Context, limit int) (int, error) {
	batch, err := g.payments.ListProcessing(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list processing payments: %w", err)
	}

	finalized := 0
	for _, p := range batch {
		if p.ProviderPaymentID == nil {
			continue
		}
		providerStatus, err := g.provider.GetPaymentStatus(ctx, *p.ProviderPaymentID)
		if err != nil {
			g.logger.Error().Err(err).Str("payment_id", p.ID.String()).Msg("polling provider status")
			continue
		}

		local := mapProviderStatus(providerStatus)
		ok, err := g.payments.SetProviderStatus(ctx, p.ID, providerStatus, local)
		if err != nil {
			g.logger.Error().Err(err).Str("payment_id", p.ID.String()).Msg("recording provider status")
			continue
		}
		if ok && local.Terminal() {
			finalized++
			g.notify.Notify(ctx, p.AgentID.String(),
				fmt.Sprintf("Payout %s is now %s.", p.ID, local))
		}
	}
	return finalized, nil
}
