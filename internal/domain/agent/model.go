package agent

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/refermed/refermed/internal/platform/fault"
)

// PayoutMethod selects how the agent receives commission payouts.
type PayoutMethod string

const (
	MethodCard PayoutMethod = "card"
	MethodSBP  PayoutMethod = "sbp" // fast payment by phone number
	MethodBank PayoutMethod = "bank"
)

func (m PayoutMethod) Valid() bool {
	switch m {
	case MethodCard, MethodSBP, MethodBank:
		return true
	}
	return false
}

// Agent is a partner who refers patients to clinics. Payout requisites are
// optional at registration; the gateway refuses to submit a payment until
// they are complete.
type Agent struct {
	ID             uuid.UUID `db:"id" json:"id"`
	FullName       string    `db:"full_name" json:"full_name" validate:"required,min=2,max=200"`
	Phone          string    `db:"phone" json:"phone" validate:"omitempty,e164"`
	TaxID          string    `db:"tax_id" json:"tax_id" validate:"omitempty,len=12,numeric"`
	SelfEmployed   bool      `db:"self_employed" json:"self_employed"`
	TelegramChatID *int64    `db:"telegram_chat_id" json:"telegram_chat_id,omitempty"`

	PayoutMethod PayoutMethod `db:"payout_method" json:"payout_method" validate:"omitempty,oneof=card sbp bank"`
	CardNumber   *string      `db:"card_number" json:"card_number,omitempty" validate:"omitempty,credit_card"`
	BankAccount  *string      `db:"bank_account" json:"bank_account,omitempty" validate:"omitempty,len=20,numeric"`
	BankRouting  *string      `db:"bank_routing" json:"bank_routing,omitempty" validate:"omitempty,len=9,numeric"`

	ProviderPayeeID     *string `db:"provider_payee_id" json:"provider_payee_id,omitempty"`
	ProviderRequisiteID *string `db:"provider_requisite_id" json:"provider_requisite_id,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

var validate = validator.New()

// Validate checks the structural constraints on the agent's fields.
func (a *Agent) Validate() error {
	if err := validate.Struct(a); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			e := errs[0]
			return fault.Validation(e.Field(), "failed %q constraint", e.Tag())
		}
		return err
	}
	return nil
}

// PayoutPreconditions verifies everything the payout provider requires before
// any network call is made: a tax id in the national 12-digit format, a phone
// number, and complete requisites for the chosen method.
func (a *Agent) PayoutPreconditions() error {
	if a.TaxID == "" {
		return fault.Precondition("agent %s has no tax id on file", a.ID)
	}
	if a.Phone == "" {
		return fault.Precondition("agent %s has no phone number on file", a.ID)
	}
	switch a.PayoutMethod {
	case MethodCard:
		if a.CardNumber == nil || *a.CardNumber == "" {
			return fault.Precondition("agent %s selected card payout but has no card number", a.ID)
		}
	case MethodSBP:
		// Phone presence already checked above.
	case MethodBank:
		if a.BankAccount == nil || *a.BankAccount == "" {
			return fault.Precondition("agent %s selected bank payout but has no account number", a.ID)
		}
		if a.BankRouting == nil || *a.BankRouting == "" {
			return fault.Precondition("agent %s selected bank payout but has no routing number", a.ID)
		}
	default:
		return fault.Precondition("agent %s has no payout method selected", a.ID)
	}
	return a.Validate()
}
