package rates

import (
	"time"

	"github.com/google/uuid"
)

// Tier is one rate schedule entry. Rates are basis points (700 = 7%) and
// revenue thresholds are minor currency units, so the whole schedule is
// integer arithmetic. AgentID is nil for global schedule rows; a non-empty
// agent override list replaces the global schedule in full.
type Tier struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	AgentID           *uuid.UUID `db:"agent_id" json:"agent_id,omitempty"`
	MinMonthlyRevenue int64      `db:"min_monthly_revenue" json:"min_monthly_revenue"`
	RateBps           int64      `db:"rate_bps" json:"rate_bps"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
}

// Breakdown is the result of one commission computation. All amounts are
// minor currency units.
type Breakdown struct {
	RateBps             int64 `json:"rate_bps"`
	GrossAmount         int64 `json:"gross_amount"`
	TaxAmount           int64 `json:"tax_amount"`
	SocialContributions int64 `json:"social_contributions"`
	NetAmount           int64 `json:"net_amount"`
}
