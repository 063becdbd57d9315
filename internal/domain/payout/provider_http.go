package payout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/refermed/refermed/internal/platform/fault"
)

// HTTPProvider talks to the settlement provider's REST API. Every call has a
// finite timeout via the embedded client; errors carry the provider's code
// and detail when the API returned a structured failure.
type HTTPProvider struct {
	baseURL string
	token   string
	client  *http.Client
	logger  zerolog.Logger
}

func NewHTTPProvider(baseURL, token string, timeout time.Duration, logger zerolog.Logger) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// providerEnvelope is the provider's uniform response shape: a status flag,
// an optional error code/detail pair and an operation-specific payload.
type providerEnvelope struct {
	Status string          `json:"status"`
	Code   string          `json:"code,omitempty"`
	Detail string          `json:"detail,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

func (p *HTTPProvider) call(ctx context.Context, method, endpoint string, payload, out interface{}) error {
	var body *bytes.Buffer
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal provider request: %w", err)
		}
		body = bytes.NewBuffer(data)
	} else {
		body = &bytes.Buffer{}
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("build provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return fault.Provider("network", "call %s %s: %v", method, endpoint, err)
	}
	defer resp.Body.Close()

	var env providerEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fault.Provider("bad_response", "decode %s %s response (http %d): %v", method, endpoint, resp.StatusCode, err)
	}

	if resp.StatusCode >= 400 || env.Status == "error" {
		code := env.Code
		if code == "" {
			code = fmt.Sprintf("http_%d", resp.StatusCode)
		}
		p.logger.Warn().
			Str("endpoint", endpoint).
			Str("code", code).
			Str("detail", env.Detail).
			Msg("provider call failed")
		return fault.Provider(code, "%s", env.Detail)
	}

	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fault.Provider("bad_response", "decode %s %s payload: %v", method, endpoint, err)
		}
	}
	return nil
}

func (p *HTTPProvider) CreatePayee(ctx context.Context, req PayeeRequest) (string, error) {
	var data struct {
		PayeeID string `json:"payeeId"`
	}
	if err := p.call(ctx, http.MethodPost, "/payees", req, &data); err != nil {
		return "", err
	}
	return data.PayeeID, nil
}

func (p *HTTPProvider) AddRequisite(ctx context.Context, payeeID string, req RequisiteRequest) (string, error) {
	var data struct {
		RequisiteID string `json:"requisiteId"`
	}
	if err := p.call(ctx, http.MethodPost, "/payees/"+payeeID+"/requisites", req, &data); err != nil {
		return "", err
	}
	return data.RequisiteID, nil
}

type submitData struct {
	PaymentID   string `json:"paymentId"`
	Status      string `json:"status"`
	PayeeID     string `json:"payeeId"`
	RequisiteID string `json:"requisiteId"`
}

func (p *HTTPProvider) SubmitPayment(ctx context.Context, req PaymentRequest) (*SubmitResult, error) {
	var data submitData
	if err := p.call(ctx, http.MethodPost, "/payments", req, &data); err != nil {
		return nil, err
	}
	return &SubmitResult{
		ProviderPaymentID: data.PaymentID,
		ProviderStatus:    data.Status,
		PayeeID:           data.PayeeID,
		RequisiteID:       data.RequisiteID,
	}, nil
}

func (p *HTTPProvider) SubmitWithPayee(ctx context.Context, req CombinedRequest) (*SubmitResult, error) {
	var data submitData
	if err := p.call(ctx, http.MethodPost, "/payments/with-payee", req, &data); err != nil {
		return nil, err
	}
	return &SubmitResult{
		ProviderPaymentID: data.PaymentID,
		ProviderStatus:    data.Status,
		PayeeID:           data.PayeeID,
		RequisiteID:       data.RequisiteID,
	}, nil
}

func (p *HTTPProvider) GetPaymentStatus(ctx context.Context, providerPaymentID string) (string, error) {
	var data struct {
		Status string `json:"status"`
	}
	if err := p.call(ctx, http.MethodGet, "/payments/"+providerPaymentID, nil, &data); err != nil {
		return "", err
	}
	return data.Status, nil
}
