package payout

import "context"

// PayeeRequest registers an agent with the settlement provider.
type PayeeRequest struct {
	FullName     string `json:"fullName"`
	TaxID        string `json:"inn"`
	Phone        string `json:"phone"`
	SelfEmployed bool   `json:"selfEmployed"`
}

// RequisiteRequest adds a payout destination to an existing payee.
type RequisiteRequest struct {
	Type        string `json:"type"` // card, sbp or bank
	CardNumber  string `json:"cardNumber,omitempty"`
	Phone       string `json:"phone,omitempty"`
	BankAccount string `json:"bankAccount,omitempty"`
	BankRouting string `json:"bankRouting,omitempty"`
}

// PaymentRequest submits one payment against stored payee requisites.
type PaymentRequest struct {
	PayeeID        string `json:"payeeId"`
	RequisiteID    string `json:"requisiteId"`
	Amount         int64  `json:"amount"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// CombinedRequest provisions the payee and requisite and submits the payment
// in one call, for agents the provider has never seen.
type CombinedRequest struct {
	Payee          PayeeRequest     `json:"payee"`
	Requisite      RequisiteRequest `json:"requisite"`
	Amount         int64            `json:"amount"`
	IdempotencyKey string           `json:"idempotencyKey"`
}

// SubmitResult is the provider's acknowledgement of an accepted payment.
type SubmitResult struct {
	ProviderPaymentID string
	ProviderStatus    string
	PayeeID           string
	RequisiteID       string
}

// Provider is the settlement provider's API surface consumed by the gateway.
// Implementations return fault.ProviderError for any transport or API
// failure and never retry on their own.
type Provider interface {
	CreatePayee(ctx context.Context, req PayeeRequest) (payeeID string, err error)
	AddRequisite(ctx context.Context, payeeID string, req RequisiteRequest) (requisiteID string, err error)
	SubmitPayment(ctx context.Context, req PaymentRequest) (*SubmitResult, error)
	SubmitWithPayee(ctx context.Context, req CombinedRequest) (*SubmitResult, error)
	GetPaymentStatus(ctx context.Context, providerPaymentID string) (string, error)
}
