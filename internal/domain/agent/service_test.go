package agent

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
)

type mockRepo struct {
	agents map[uuid.UUID]*Agent
}

func newMockRepo() *mockRepo {
	return &mockRepo{agents: make(map[uuid.UUID]*Agent)}
}

func (m *mockRepo) Create(_ context.Context, a *Agent) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.agents[a.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Agent, error) {
	a, ok := m.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent %s not found", id)
	}
	cp := *a
	return &cp, nil
}

func (m *mockRepo) List(_ context.Context, limit, offset int) ([]*Agent, int, error) {
	var result []*Agent
	for _, a := range m.agents {
		cp := *a
		result = append(result, &cp)
	}
	return result, len(result), nil
}

func (m *mockRepo) Update(_ context.Context, a *Agent) error {
	stored, ok := m.agents[a.ID]
	if !ok {
		return fmt.Errorf("agent %s not found", a.ID)
	}
	provPayee, provReq := stored.ProviderPayeeID, stored.ProviderRequisiteID
	cp := *a
	cp.ProviderPayeeID, cp.ProviderRequisiteID = provPayee, provReq
	m.agents[a.ID] = &cp
	return nil
}

func (m *mockRepo) SetProviderIDs(_ context.Context, id uuid.UUID, payeeID, requisiteID string) error {
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

func TestUpdateClearsProviderIDsOnRequisiteChange(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	a := validAgent()
	if err := svc.Create(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.SetProviderIDs(ctx, a.ID, "payee-1", "req-1"); err != nil {
		t.Fatal(err)
	}

	// Profile-only change keeps the provider registration.
	a2 := *a
	a2.FullName = "Maria A. Volkova"
	updated, err := svc.Update(ctx, &a2)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ProviderPayeeID == nil || *updated.ProviderPayeeID != "payee-1" {
		t.Errorf("expected provider payee to survive profile update, got %v", updated.ProviderPayeeID)
	}

	// Switching payout method forces re-registration.
	a3 := *updated
	a3.PayoutMethod = MethodCard
	a3.CardNumber = strptr("4242424242424242")
	updated, err = svc.Update(ctx, &a3)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ProviderPayeeID != nil || updated.ProviderRequisiteID != nil {
		t.Errorf("expected provider ids cleared after requisite change, got %v/%v",
			updated.ProviderPayeeID, updated.ProviderRequisiteID)
	}
	stored := repo.agents[a.ID]
	if stored.ProviderPayeeID != nil {
		t.Errorf("expected stored provider payee cleared, got %v", stored.ProviderPayeeID)
	}
}
