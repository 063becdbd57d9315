package payout

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/refermed/refermed/internal/domain/agent"
	"github.com/refermed/refermed/internal/platform/fault"
	"github.com/refermed/refermed/internal/platform/notification"
)

type mockPaymentRepo struct {
	payments map[uuid.UUID]*Payment
}

func newMockPaymentRepo() *mockPaymentRepo {
	return &mockPaymentRepo{payments: make(map[uuid.UUID]*Payment)}
}

func (m *mockPaymentRepo) Create(_ context.Context, p *Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.payments[p.ID] = &cp
	return nil
}

func (m *mockPaymentRepo) GetByID(_ context.Context, id uuid.UUID) (*Payment, error) {
	p, ok := m.payments[id]
	if !ok {
		return nil, fmt.Errorf("payment %s not found", id)
	}
	cp := *p
	return &cp, nil
}

func (m *mockPaymentRepo) List(_ context.Context, f ListFilter, limit, offset int) ([]*Payment, int, error) {
	var result []*Payment
	for _, p := range m.payments {
		if f.AgentID != nil && p.AgentID != *f.AgentID {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		cp := *p
		result = append(result, &cp)
	}
	return result, len(result), nil
}

func (m *mockPaymentRepo) ListProcessing(_ context.Context, limit int) ([]*Payment, error) {
	var result []*Payment
	for _, p := range m.payments {
		if p.Status == StatusProcessing {
			cp := *p
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (m *mockPaymentRepo) SetSubmitted(_ context.Context, id uuid.UUID, providerPaymentID, providerStatus string) (bool, error) {
	p, ok := m.payments[id]
	if !ok || p.Status != StatusPending {
		return false, nil
	}
	now := time.Now()
	p.Status = StatusProcessing
	p.ProviderPaymentID = &providerPaymentID
	p.ProviderStatus = &providerStatus
	p.FailureReason = nil
	p.SubmittedAt = &now
	return true, nil
}

func (m *mockPaymentRepo) SetFailure(_ context.Context, id uuid.UUID, reason string) error {
	p, ok := m.payments[id]
	if !ok {
		return fmt.Errorf("payment %s not found", id)
	}
	if p.Status == StatusPending {
		p.FailureReason = &reason
	}
	return nil
}

func (m *mockPaymentRepo) SetProviderStatus(_ context.Context, id uuid.UUID, providerStatus string, local Status) (bool, error) {
	p, ok := m.payments[id]
	if !ok || p.Status.Terminal() {
		return false, nil
	}
	p.ProviderStatus = &providerStatus
	p.Status = local
	return true, nil
}

type mockAgentRepo struct {
	agents map[uuid.UUID]*agent.Agent
}

func newMockAgentRepo() *mockAgentRepo {
	return &mockAgentRepo{agents: make(map[uuid.UUID]*agent.Agent)}
}

func (m *mockAgentRepo) Create(_ context.Context, a *agent.Agent) error {
	m.agents[a.ID] = a
	return nil
}

func (m *mockAgentRepo) GetByID(_ context.Context, id uuid.UUID) (*agent.Agent, error) {
	a, ok := m.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent %s not found", id)
	}
	cp := *a
	return &cp, nil
}

func (m *mockAgentRepo) List(_ context.Context, limit, offset int) ([]*agent.Agent, int, error) {
	return nil, 0, nil
}

func (m *mockAgentRepo) Update(_ context.Context, a *agent.Agent) error { return nil }

func (m *mockAgentRepo) SetProviderIDs(_ context.Context, id uuid.UUID, payeeID, requisiteID string) error {
	a, ok := m.agents[id]
	if !ok {
		return fmt.Errorf("agent %s not found", id)
	}
	a.ProviderPayeeID, a.ProviderRequisiteID = nil, nil
	if payeeID != "" {
		a.ProviderPayeeID = &payeeID
	}
	if requisiteID != "" {
		a.ProviderRequisiteID = &requisiteID
	}
	return nil
}

// countingProvider counts every network-facing call and can be programmed to
// fail or to answer status polls.
type countingProvider struct {
	calls     int
	submitErr error
	statuses  map[string]string
}

func (p *countingProvider) CreatePayee(context.Context, PayeeRequest) (string, error) {
	p.calls++
	return "payee-1", nil
}

func (p *countingProvider) AddRequisite(context.Context, string, RequisiteRequest) (string, error) {
	p.calls++
	return "req-1", nil
}

func (p *countingProvider) SubmitPayment(_ context.Context, req PaymentRequest) (*SubmitResult, error) {
	p.calls++
	if p.submitErr != nil {
		return nil, p.submitErr
	}
	return &SubmitResult{
		ProviderPaymentID: "prov-" + req.IdempotencyKey,
		ProviderStatus:    providerStatusNew,
		PayeeID:           req.PayeeID,
		RequisiteID:       req.RequisiteID,
	}, nil
}

func (p *countingProvider) SubmitWithPayee(_ context.Context, req CombinedRequest) (*SubmitResult, error) {
	p.calls++
	if p.submitErr != nil {
		return nil, p.submitErr
	}
	return &SubmitResult{
		ProviderPaymentID: "prov-" + req.IdempotencyKey,
		ProviderStatus:    providerStatusNew,
		PayeeID:           "payee-1",
		RequisiteID:       "req-1",
	}, nil
}

func (p *countingProvider) GetPaymentStatus(_ context.Context, providerPaymentID string) (string, error) {
	p.calls++
	if s, ok := p.statuses[providerPaymentID]; ok {
		return s, nil
	}
	return providerStatusInProgress, nil
}

func strptr(s string) *string { return &s }

func payoutAgent() *agent.Agent {
	return &agent.Agent{
		ID:           uuid.New(),
		FullName:     "Maria Volkova",
		Phone:        "+79161234567",
		TaxID:        "123456789012",
		PayoutMethod: agent.MethodSBP,
	}
}

func newTestGateway(payments *mockPaymentRepo, agents *mockAgentRepo, provider Provider) *Gateway {
	return NewGateway(payments, agents, provider, notification.NopSink{}, zerolog.Nop())
}

func pendingPayment(t *testing.T, repo *mockPaymentRepo, agentID uuid.UUID, method agent.PayoutMethod) *Payment {
	t.Helper()
	p := &Payment{AgentID: agentID, Amount: 6_090, Method: method, Status: StatusPending}
	if err := repo.Create(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestSubmitMissingTaxIDMakesNoNetworkCall(t *testing.T) {
	payments := newMockPaymentRepo()
	agents := newMockAgentRepo()
	provider := &countingProvider{}
	gw := newTestGateway(payments, agents, provider)

	a := payoutAgent()
	a.TaxID = ""
	agents.agents[a.ID] = a
	p := pendingPayment(t, payments, a.ID, a.PayoutMethod)

	_, err := gw.Submit(context.Background(), p.ID)
	if !fault.IsPrecondition(err) {
		t.Fatalf("expected precondition error, got %v", err)
	}
	if provider.calls != 0 {
		t.Errorf("expected zero provider calls, got %d", provider.calls)
	}
	if got := payments.payments[p.ID]; got.Status != StatusPending || got.ProviderPaymentID != nil {
		t.Errorf("payment state mutated on refused submission: %+v", got)
	}
}

func TestSubmitFirstTimeUsesCombinedCall(t *testing.T) {
	payments := newMockPaymentRepo()
	agents := newMockAgentRepo()
	provider := &countingProvider{}
	gw := newTestGateway(payments, agents, provider)

	a := payoutAgent()
	agents.agents[a.ID] = a
	p := pendingPayment(t, payments, a.ID, a.PayoutMethod)

	got, err := gw.Submit(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got.Status != StatusProcessing {
		t.Errorf("expected processing, got %s", got.Status)
	}
	if got.ProviderPaymentID == nil {
		t.Error("expected provider payment id to be stored")
	}
	if provider.calls != 1 {
		t.Errorf("expected a single combined call, got %d", provider.calls)
	}
	if a.ProviderPayeeID == nil || *a.ProviderPayeeID != "payee-1" {
		t.Errorf("expected payee id stored on agent, got %v", a.ProviderPayeeID)
	}
}

func TestSubmitKnownPayeeUsesPlainCall(t *testing.T) {
	payments := newMockPaymentRepo()
	agents := newMockAgentRepo()
	provider := &countingProvider{}
	gw := newTestGateway(payments, agents, provider)

	a := payoutAgent()
	a.ProviderPayeeID = strptr("payee-9")
	a.ProviderRequisiteID = strptr("req-9")
	agents.agents[a.ID] = a
	p := pendingPayment(t, payments, a.ID, a.PayoutMethod)

	if _, err := gw.Submit(context.Background(), p.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if provider.calls != 1 {
		t.Errorf("expected a single plain call, got %d", provider.calls)
	}
	// Existing handles must not be overwritten.
	if *a.ProviderPayeeID != "payee-9" {
		t.Errorf("payee id overwritten: %s", *a.ProviderPayeeID)
	}
}

func TestSubmitRefusesResubmission(t *testing.T) {
	payments := newMockPaymentRepo()
	agents := newMockAgentRepo()
	provider := &countingProvider{}
	gw := newTestGateway(payments, agents, provider)

	a := payoutAgent()
	agents.agents[a.ID] = a
	p := pendingPayment(t, payments, a.ID, a.PayoutMethod)

	if _, err := gw.Submit(context.Background(), p.ID); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	_, err := gw.Submit(context.Background(), p.ID)
	if !fault.IsPrecondition(err) {
		t.Fatalf("expected already-sent precondition error, got %v", err)
	}
	if provider.calls != 1 {
		t.Errorf("expected no second provider call, got %d calls", provider.calls)
	}
}

func TestSubmitProviderFailureRecordsReason(t *testing.T) {
	payments := newMockPaymentRepo()
	agents := newMockAgentRepo()
	provider := &countingProvider{submitErr: fault.Provider("INSUFFICIENT_FUNDS", "balance too low")}
	gw := newTestGateway(payments, agents, provider)

	a := payoutAgent()
	agents.agents[a.ID] = a
	p := pendingPayment(t, payments, a.ID, a.PayoutMethod)

	_, err := gw.Submit(context.Background(), p.ID)
	perr, ok := fault.AsProvider(err)
	if !ok {
		t.Fatalf("expected provider error, got %v", err)
	}
	if perr.Code != "INSUFFICIENT_FUNDS" {
		t.Errorf("expected provider code preserved, got %q", perr.Code)
	}

	got := payments.payments[p.ID]
	if got.Status != StatusPending {
		t.Errorf("failed submission must stay pending, got %s", got.Status)
	}
	if got.FailureReason == nil {
		t.Fatal("expected failure reason recorded")
	}

	// An explicit retry after the provider recovers succeeds.
	provider.submitErr = nil
	retried, err := gw.Submit(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retried.Status != StatusProcessing || retried.FailureReason != nil {
		t.Errorf("unexpected payment after retry: %+v", retried)
	}
}

func TestIdempotencyKeyStableAcrossRetries(t *testing.T) {
	p := &Payment{ID: uuid.New(), CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	k1 := p.IdempotencyKey()
	k2 := p.IdempotencyKey()
	if k1 != k2 || k1 == "" {
		t.Errorf("expected stable idempotency key, got %q and %q", k1, k2)
	}
}

func TestSyncStatusesMapsTerminalStates(t *testing.T) {
	payments := newMockPaymentRepo()
	agents := newMockAgentRepo()
	provider := &countingProvider{statuses: map[string]string{}}
	gw := newTestGateway(payments, agents, provider)

	mk := func(provID, provStatus string) *Payment {
		p := &Payment{AgentID: uuid.New(), Amount: 100, Method: agent.MethodSBP, Status: StatusPending}
		if err := payments.Create(context.Background(), p); err != nil {
			t.Fatal(err)
		}
		if _, err := payments.SetSubmitted(context.Background(), p.ID, provID, providerStatusNew); err != nil {
			t.Fatal(err)
		}
		provider.statuses[provID] = provStatus
		return p
	}

	paid := mk("prov-a", providerStatusCompleted)
	rejected := mk("prov-b", providerStatusDeclined)
	failed := mk("prov-c", providerStatusFailed)
	inflight := mk("prov-d", providerStatusInProgress)

	finalized, err := gw.SyncStatuses(context.Background(), 50)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if finalized != 3 {
		t.Errorf("expected 3 finalized payments, got %d", finalized)
	}

	checks := []struct {
		p    *Payment
		want Status
	}{
		{paid, StatusPaid},
		{rejected, StatusRejected},
		{failed, StatusError},
		{inflight, StatusProcessing},
	}
	for _, c := range checks {
		if got := payments.payments[c.p.ID].Status; got != c.want {
			t.Errorf("payment %s: expected %s, got %s", c.p.ID, c.want, got)
		}
	}
}

func TestSyncNeverOverwritesTerminalStatus(t *testing.T) {
	repo := newMockPaymentRepo()
	p := &Payment{AgentID: uuid.New(), Amount: 100, Method: agent.MethodSBP, Status: StatusPending}
	if err := repo.Create(context.Background(), p); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.SetSubmitted(context.Background(), p.ID, "prov-a", providerStatusNew); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.SetProviderStatus(context.Background(), p.ID, providerStatusCompleted, StatusPaid); err != nil {
		t.Fatal(err)
	}

	ok, err := repo.SetProviderStatus(context.Background(), p.ID, providerStatusFailed, StatusError)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected terminal status to be immutable")
	}
	if repo.payments[p.ID].Status != StatusPaid {
		t.Errorf("terminal status overwritten: %s", repo.payments[p.ID].Status)
	}
}

func TestSubmitMethodMismatch(t *testing.T) {
	payments := newMockPaymentRepo()
	agents := newMockAgentRepo()
	provider := &countingProvider{}
	gw := newTestGateway(payments, agents, provider)

	a := payoutAgent()
	agents.agents[a.ID] = a
	p := pendingPayment(t, payments, a.ID, agent.MethodCard)

	_, err := gw.Submit(context.Background(), p.ID)
	if !fault.IsPrecondition(err) {
		t.Fatalf("expected precondition error on method mismatch, got %v", err)
	}
	if provider.calls != 0 {
		t.Errorf("expected zero provider calls, got %d", provider.calls)
	}
}
