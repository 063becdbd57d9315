package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/refermed/refermed/internal/domain/agent"
	"github.com/refermed/refermed/internal/domain/payout"
	"github.com/refermed/refermed/internal/domain/rates"
	"github.com/refermed/refermed/internal/domain/referral"
	"github.com/refermed/refermed/internal/domain/report"
	"github.com/refermed/refermed/internal/platform/fault"
	"github.com/refermed/refermed/internal/platform/notification"
)

// revenueWindow is the trailing period over which an agent's settled revenue
// determines the commission tier.
const revenueWindow = 30 * 24 * time.Hour

// Orchestrator turns an approved clinic report into a financially settled
// referral: it claims the referral, computes the commission and emits the
// payout request. Commission accrual is an accounting fact and never rolls
// back on payout-provider failure; the payout is retried separately.
// TxRunner runs fn atomically against the store. Production wiring uses
// db.WithTx over the pgx pool; tests pass nil to run fn directly.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Orchestrator struct {
	reports   report.Repository
	referrals referral.Repository
	agents    agent.Repository
	tiers     rates.TierRepository
	payments  payout.Repository
	gateway   *payout.Gateway
	runInTx   TxRunner
	notify    *notification.BestEffort
	logger    zerolog.Logger
}

func NewOrchestrator(
	reports report.Repository,
	referrals referral.Repository,
	agents agent.Repository,
	tiers rates.TierRepository,
	payments payout.Repository,
	gateway *payout.Gateway,
	runInTx TxRunner,
	notify notification.Sink,
	logger zerolog.Logger,
) *Orchestrator {
	if runInTx == nil {
		runInTx = func(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }
	}
	return &Orchestrator{
		reports:   reports,
		referrals: referrals,
		agents:    agents,
		tiers:     tiers,
		payments:  payments,
		gateway:   gateway,
		runInTx:   runInTx,
		notify:    &notification.BestEffort{Sink: notify, Logger: logger},
		logger:    logger,
	}
}

// ApproveOptions lets the reviewer override the matcher's referral choice or
// the report's extracted amount at approval time.
type ApproveOptions struct {
	ReferralID      *int64 `json:"referral_id,omitempty"`
	TreatmentAmount *int64 `json:"treatment_amount,omitempty"`
	Actor           string `json:"-"`
}

// Settlement is the result of a successful approval.
type Settlement struct {
	Report    *report.ClinicReport `json:"report"`
	Referral  *referral.Referral   `json:"referral"`
	Breakdown rates.Breakdown      `json:"breakdown"`
	Payment   *payout.Payment      `json:"payment"`
}

// Approve finalizes a clinic report against a referral. The referral claim is
// a conditional update, so two concurrent approvals of the same referral fail
// one side cleanly. Payout submission failure is recorded on the payment and
// does not undo the settlement.
func (o *Orchestrator) Approve(ctx context.Context, reportID uuid.UUID, opts ApproveOptions) (*Settlement, error) {
	rep, err := o.reports.GetByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if !rep.Status.Reviewable() {
		return nil, fault.Precondition("report %s is already %s", reportID, rep.Status)
	}

	refID, err := resolveReferralID(rep, opts)
	if err != nil {
		return nil, err
	}
	ref, err := o.referrals.GetByID(ctx, refID)
	if err != nil {
		return nil, fault.Validation("referral_id", "referral %d not found", refID)
	}

	amount, err := resolveAmount(rep, opts)
	if err != nil {
		return nil, err
	}

	a, err := o.agents.GetByID(ctx, ref.AgentID)
	if err != nil {
		return nil, fmt.Errorf("load agent %s: %w", ref.AgentID, err)
	}

	now := time.Now().UTC()
	var breakdown rates.Breakdown
	payment := &payout.Payment{
		AgentID:    a.ID,
		ReferralID: &ref.ID,
		Method:     a.PayoutMethod,
		Status:     payout.StatusPending,
	}

	// Everything up to payment creation commits atomically; the provider
	// call below stays outside the transaction.
	err = o.runInTx(ctx, func(ctx context.Context) error {
		claimed, err := o.referrals.SettleVisited(ctx, ref.ID, amount, rep.ID, now)
		if err != nil {
			return err
		}
		if !claimed {
			return fault.Precondition("referral %d is already claimed or not open for settlement", ref.ID)
		}
		o.appendHistory(ctx, ref.ID, ref.Status, referral.StatusVisited, opts.Actor)

		breakdown, err = o.computeCommission(ctx, a, ref.ID, amount, now)
		if err != nil {
			return err
		}

		paid, err := o.referrals.SetPaid(ctx, ref.ID, breakdown.GrossAmount)
		if err != nil {
			return err
		}
		if !paid {
			return fault.Precondition("referral %d left visited state concurrently", ref.ID)
		}
		o.appendHistory(ctx, ref.ID, referral.StatusVisited, referral.StatusPaid, opts.Actor)

		approved, err := o.reports.MarkApproved(ctx, rep.ID, ref.ID)
		if err != nil {
			return err
		}
		if !approved {
			return fault.Precondition("report %s was finalized concurrently", rep.ID)
		}

		payment.Amount = breakdown.NetAmount
		if err := o.payments.Create(ctx, payment); err != nil {
			return fmt.Errorf("create payment for referral %d: %w", ref.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The referral is settled at this point regardless of what the provider
	// does; a failed submission stays pending for an explicit retry.
	if submitted, err := o.gateway.Submit(ctx, payment.ID); err != nil {
		o.logger.Warn().Err(err).
			Str("payment_id", payment.ID.String()).
			Int64("referral_id", ref.ID).
			Msg("payout submission failed, will retry separately")
	} else {
		payment = submitted
	}

	o.notify.Notify(ctx, a.ID.String(),
		fmt.Sprintf("Referral %d settled: commission %d, payout %d (%s).",
			ref.ID, breakdown.GrossAmount, breakdown.NetAmount, payment.Status))

	settled, err := o.referrals.GetByID(ctx, ref.ID)
	if err != nil {
		return nil, err
	}
	final, err := o.reports.GetByID(ctx, rep.ID)
	if err != nil {
		return nil, err
	}
	return &Settlement{Report: final, Referral: settled, Breakdown: breakdown, Payment: payment}, nil
}

// Reject finalizes a report without touching any referral.
func (o *Orchestrator) Reject(ctx context.Context, reportID uuid.UUID, reason string) (*report.ClinicReport, error) {
	if reason == "" {
		return nil, fault.Validation("reason", "is required")
	}
	ok, err := o.reports.MarkRejected(ctx, reportID, reason)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fault.Precondition("report %s is already finalized", reportID)
	}
	return o.reports.GetByID(ctx, reportID)
}

func resolveReferralID(rep *report.ClinicReport, opts ApproveOptions) (int64, error) {
	switch {
	case opts.ReferralID != nil:
		return *opts.ReferralID, nil
	case rep.LinkedReferralID != nil:
		return *rep.LinkedReferralID, nil
	case rep.SuggestedReferralID != nil:
		return *rep.SuggestedReferralID, nil
	}
	return 0, fault.Precondition("report %s has no referral to approve against", rep.ID)
}

func resolveAmount(rep *report.ClinicReport, opts ApproveOptions) (int64, error) {
	var amount int64
	switch {
	case opts.TreatmentAmount != nil:
		amount = *opts.TreatmentAmount
	case rep.TreatmentAmount != nil:
		amount = *rep.TreatmentAmount
	default:
		return 0, fault.Precondition("report %s has no treatment amount; supply one explicitly", rep.ID)
	}
	if amount < 0 {
		return 0, fault.Validation("treatment_amount", "must be non-negative, got %d", amount)
	}
	return amount, nil
}

func (o *Orchestrator) computeCommission(ctx context.Context, a *agent.Agent, referralID, amount int64, now time.Time) (rates.Breakdown, error) {
	volume, err := o.referrals.TrailingRevenue(ctx, a.ID, now.Add(-revenueWindow), referralID)
	if err != nil {
		return rates.Breakdown{}, fmt.Errorf("trailing revenue for agent %s: %w", a.ID, err)
	}
	overrides, err := o.tiers.OverridesForAgent(ctx, a.ID)
	if err != nil {
		return rates.Breakdown{}, fmt.Errorf("tier overrides for agent %s: %w", a.ID, err)
	}
	engine, err := rates.NewEngineFromStore(ctx, o.tiers)
	if err != nil {
		return rates.Breakdown{}, fmt.Errorf("load tier schedule: %w", err)
	}
	return engine.ComputeCommission(amount, volume, a.SelfEmployed, overrides)
}

func (o *Orchestrator) appendHistory(ctx context.Context, id int64, from, to referral.Status, actor string) {
	err := o.referrals.AppendHistory(ctx, &referral.HistoryEntry{
		ReferralID: id,
		FromStatus: from,
		ToStatus:   to,
		Actor:      actor,
	})
	if err != nil {
		o.logger.Error().Err(err).Int64("referral_id", id).Msg("recording status history")
	}
}
