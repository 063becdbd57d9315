package rates

import (
	"sort"

	"github.com/refermed/refermed/internal/platform/fault"
)

const (
	// DefaultRateBps applies when no tier threshold qualifies.
	DefaultRateBps = 700

	withholdingTaxBps  = 1300 // income tax withheld from the payee receipt
	socialContribsBps  = 3000 // employer-side, not deducted from the payee
	bpsDenominator     = 10000
	percentDenominator = 10000
)

// Engine computes commissions against a global tier schedule. It holds no
// mutable state and performs no I/O; for fixed inputs the output is
// bit-identical on every call, which audit replay relies on.
type Engine struct {
	schedule    []Tier
	defaultRate int64
}

// NewEngine builds an engine over the global schedule. The schedule may be
// empty, in which case every computation uses the default rate.
func NewEngine(schedule []Tier) *Engine {
	s := make([]Tier, len(schedule))
	copy(s, schedule)
	sort.Slice(s, func(i, j int) bool { return s[i].MinMonthlyRevenue < s[j].MinMonthlyRevenue })
	return &Engine{schedule: s, defaultRate: DefaultRateBps}
}

// ResolveRate selects the applicable rate for an agent's trailing monthly
// revenue. A non-empty override list fully replaces the global schedule; the
// tier with the greatest threshold not exceeding the volume wins.
func (e *Engine) ResolveRate(monthlyVolume int64, overrides []Tier) int64 {
	candidates := e.schedule
	if len(overrides) > 0 {
		candidates = make([]Tier, len(overrides))
		copy(candidates, overrides)
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].MinMonthlyRevenue < candidates[j].MinMonthlyRevenue
		})
	}

	rate := e.defaultRate
	for _, t := range candidates {
		if t.MinMonthlyRevenue <= monthlyVolume {
			rate = t.RateBps
		}
	}
	return rate
}

// ComputeCommission computes the commission breakdown for a settled
// treatment. Self-employed payees remit their own tax, so tax and social
// contributions are zero and the net equals the gross. For employed payees
// the 13% withholding is deducted from the receipt while the 30% social
// contribution is carried by the platform.
func (e *Engine) ComputeCommission(treatmentAmount, monthlyVolume int64, selfEmployed bool, overrides []Tier) (Breakdown, error) {
	if treatmentAmount < 0 {
		return Breakdown{}, fault.Validation("treatment_amount", "must be non-negative, got %d", treatmentAmount)
	}
	if monthlyVolume < 0 {
		return Breakdown{}, fault.Validation("monthly_volume", "must be non-negative, got %d", monthlyVolume)
	}

	rate := e.ResolveRate(monthlyVolume, overrides)
	gross := roundDiv(treatmentAmount*rate, bpsDenominator)

	b := Breakdown{RateBps: rate, GrossAmount: gross}
	if selfEmployed {
		b.NetAmount = gross
		return b, nil
	}

	b.TaxAmount = roundDiv(gross*withholdingTaxBps, percentDenominator)
	b.SocialContributions = roundDiv(gross*socialContribsBps, percentDenominator)
	b.NetAmount = gross - b.TaxAmount
	return b, nil
}

// roundDiv divides rounding to nearest, ties away from zero. Inputs are
// non-negative in every money path.
func roundDiv(numerator, denominator int64) int64 {
	return (numerator + denominator/2) / denominator
}
