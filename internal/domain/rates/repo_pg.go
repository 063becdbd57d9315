package rates

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/refermed/refermed/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type tierRepoPG struct{ pool *pgxpool.Pool }

func NewTierRepoPG(pool *pgxpool.Pool) TierRepository { return &tierRepoPG{pool: pool} }

func (r *tierRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const tierCols = `id, agent_id, min_monthly_revenue, rate_bps, created_at`

func scanTiers(rows pgx.Rows) ([]Tier, error) {
	defer rows.Close()
	var tiers []Tier
	for rows.Next() {
		var t Tier
		if err := rows.Scan(&t.ID, &t.AgentID, &t.MinMonthlyRevenue, &t.RateBps, &t.CreatedAt); err != nil {
			return nil, err
		}
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}

func (r *tierRepoPG) GlobalSchedule(ctx context.Context) ([]Tier, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+tierCols+` FROM commission_tier WHERE agent_id IS NULL ORDER BY min_monthly_revenue`)
	if err != nil {
		return nil, err
	}
	return scanTiers(rows)
}

func (r *tierRepoPG) OverridesForAgent(ctx context.Context, agentID uuid.UUID) ([]Tier, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+tierCols+` FROM commission_tier WHERE agent_id = $1 ORDER BY min_monthly_revenue`, agentID)
	if err != nil {
		return nil, err
	}
	return scanTiers(rows)
}

func (r *tierRepoPG) ReplaceOverrides(ctx context.Context, agentID uuid.UUID, tiers []Tier) error {
	if _, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM commission_tier WHERE agent_id = $1`, agentID); err != nil {
		return err
	}
	for _, t := range tiers {
		id := t.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		if _, err := r.conn(ctx).Exec(ctx,
			`INSERT INTO commission_tier (id, agent_id, min_monthly_revenue, rate_bps) VALUES ($1, $2, $3, $4)`,
			id, agentID, t.MinMonthlyRevenue, t.RateBps); err != nil {
			return err
		}
	}
	return nil
}
