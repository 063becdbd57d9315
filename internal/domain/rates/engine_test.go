package rates

import (
	"testing"

	"github.com/refermed/refermed/internal/platform/fault"
)

func defaultSchedule() []Tier {
	return []Tier{
		{MinMonthlyRevenue: 0, RateBps: 700},
		{MinMonthlyRevenue: 50_000_000, RateBps: 850},
		{MinMonthlyRevenue: 100_000_000, RateBps: 1000},
	}
}

func TestComputeCommission_SelfEmployedBaseTier(t *testing.T) {
	e := NewEngine(defaultSchedule())
	b, err := e.ComputeCommission(100_000, 0, true, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.RateBps != 700 {
		t.Errorf("expected rate 700 bps, got %d", b.RateBps)
	}
	if b.GrossAmount != 7_000 {
		t.Errorf("expected gross 7000, got %d", b.GrossAmount)
	}
	if b.TaxAmount != 0 || b.SocialContributions != 0 {
		t.Errorf("expected zero tax/social for self-employed, got %d/%d", b.TaxAmount, b.SocialContributions)
	}
	if b.NetAmount != 7_000 {
		t.Errorf("expected net 7000, got %d", b.NetAmount)
	}
}

func TestComputeCommission_Employed(t *testing.T) {
	e := NewEngine(defaultSchedule())
	b, err := e.ComputeCommission(100_000, 0, false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.GrossAmount != 7_000 {
		t.Errorf("expected gross 7000, got %d", b.GrossAmount)
	}
	if b.TaxAmount != 910 {
		t.Errorf("expected tax 910, got %d", b.TaxAmount)
	}
	if b.SocialContributions != 2_100 {
		t.Errorf("expected social contributions 2100, got %d", b.SocialContributions)
	}
	if b.NetAmount != 6_090 {
		t.Errorf("expected net 6090, got %d", b.NetAmount)
	}
	if b.NetAmount != b.GrossAmount-b.TaxAmount {
		t.Error("net must equal gross minus tax")
	}
}

func TestComputeCommission_VolumeTier(t *testing.T) {
	e := NewEngine(defaultSchedule())
	b, err := e.ComputeCommission(100_000, 150_000_000, true, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.RateBps != 1000 {
		t.Errorf("expected 10%% tier at 1.5M volume, got %d bps", b.RateBps)
	}
}

func TestComputeCommission_OverridesReplaceSchedule(t *testing.T) {
	e := NewEngine(defaultSchedule())
	overrides := []Tier{{MinMonthlyRevenue: 0, RateBps: 1200}}

	b, err := e.ComputeCommission(100_000, 150_000_000, true, overrides)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The global 10% tier must not leak through a non-empty override list.
	if b.RateBps != 1200 {
		t.Errorf("expected override rate 1200, got %d", b.RateBps)
	}
}

func TestComputeCommission_OverridesNoneQualifyFallsToDefault(t *testing.T) {
	e := NewEngine(defaultSchedule())
	overrides := []Tier{{MinMonthlyRevenue: 500_000_000, RateBps: 1500}}

	b, err := e.ComputeCommission(100_000, 0, true, overrides)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.RateBps != DefaultRateBps {
		t.Errorf("expected default rate when no override tier qualifies, got %d", b.RateBps)
	}
}

func TestComputeCommission_ZeroAmount(t *testing.T) {
	e := NewEngine(defaultSchedule())
	b, err := e.ComputeCommission(0, 60_000_000, false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.GrossAmount != 0 || b.TaxAmount != 0 || b.SocialContributions != 0 || b.NetAmount != 0 {
		t.Errorf("expected all-zero amounts, got %+v", b)
	}
	// The rate is still resolved and recorded for the audit trail.
	if b.RateBps != 850 {
		t.Errorf("expected resolved rate 850, got %d", b.RateBps)
	}
}

func TestComputeCommission_NegativeAmount(t *testing.T) {
	e := NewEngine(defaultSchedule())
	if _, err := e.ComputeCommission(-1, 0, false, nil); !fault.IsValidation(err) {
		t.Errorf("expected ValidationError, got %v", err)
	}
	if _, err := e.ComputeCommission(100, -1, false, nil); !fault.IsValidation(err) {
		t.Errorf("expected ValidationError for negative volume, got %v", err)
	}
}

func TestComputeCommission_Deterministic(t *testing.T) {
	e := NewEngine(defaultSchedule())
	first, err := e.ComputeCommission(123_457, 87_654_321, false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 100; i++ {
		again, err := e.ComputeCommission(123_457, 87_654_321, false, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if again != first {
			t.Fatalf("non-deterministic output: %+v vs %+v", again, first)
		}
	}
}

func TestResolveRate_Monotonic(t *testing.T) {
	e := NewEngine(defaultSchedule())
	prev := int64(-1)
	for volume := int64(0); volume <= 200_000_000; volume += 1_000_000 {
		rate := e.ResolveRate(volume, nil)
		if rate < prev {
			t.Fatalf("rate decreased from %d to %d at volume %d", prev, rate, volume)
		}
		prev = rate
	}
}

func TestComputeCommission_RoundingTiesAwayFromZero(t *testing.T) {
	// 7% of 50 minor units = 3.5, which must round to 4.
	e := NewEngine(nil)
	b, err := e.ComputeCommission(50, 0, true, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.GrossAmount != 4 {
		t.Errorf("expected 3.5 to round to 4, got %d", b.GrossAmount)
	}
}
