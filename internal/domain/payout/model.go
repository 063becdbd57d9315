package payout

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/refermed/refermed/internal/domain/agent"
)

// Status is the local payment lifecycle. pending means not yet accepted by
// the provider; processing means the provider holds it; paid, rejected and
// error are terminal and never overwritten.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusPaid       Status = "paid"
	StatusRejected   Status = "rejected"
	StatusError      Status = "error"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusPaid, StatusRejected, StatusError:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusRejected || s == StatusError
}

// Payment is one payout request for an agent's commission. Amount is the net
// amount in minor currency units. Method is a snapshot of the agent's payout
// method at creation time so later profile edits cannot redirect an
// in-flight payment.
type Payment struct {
	ID         uuid.UUID          `db:"id" json:"id"`
	AgentID    uuid.UUID          `db:"agent_id" json:"agent_id"`
	ReferralID *int64             `db:"referral_id" json:"referral_id,omitempty"`
	Amount     int64              `db:"amount" json:"amount"`
	Method     agent.PayoutMethod `db:"method" json:"method"`
	Status     Status             `db:"status" json:"status"`

	ProviderPaymentID *string `db:"provider_payment_id" json:"provider_payment_id,omitempty"`
	ProviderStatus    *string `db:"provider_status" json:"provider_status,omitempty"`
	FailureReason     *string `db:"failure_reason" json:"failure_reason,omitempty"`

	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
	SubmittedAt *time.Time `db:"submitted_at" json:"submitted_at,omitempty"`
}

// IdempotencyKey is deterministic for the lifetime of the payment so a
// retried submission after an ambiguous failure dedupes on the provider side.
func (p *Payment) IdempotencyKey() string {
	return fmt.Sprintf("%s:%d", p.ID, p.CreatedAt.Unix())
}
