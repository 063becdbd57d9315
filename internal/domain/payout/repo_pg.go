package payout

import (
	"context"
	"strconv"
	"strings"

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

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const cols = `id, agent_id, referral_id, amount, method, status,
	provider_payment_id, provider_status, failure_reason,
	created_at, updated_at, submitted_at`

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.AgentID, &p.ReferralID, &p.Amount, &p.Method, &p.Status,
		&p.ProviderPaymentID, &p.ProviderStatus, &p.FailureReason,
		&p.CreatedAt, &p.UpdatedAt, &p.SubmittedAt)
	return &p, err
}

func (r *repoPG) Create(ctx context.Context, p *Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO payment (id, agent_id, referral_id, amount, method, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		p.ID, p.AgentID, p.ReferralID, p.Amount, p.Method, p.Status).
		Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Payment, error) {
	return scanPayment(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM payment WHERE id = $1`, id))
}

func (r *repoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Payment, int, error) {
	where := []string{"TRUE"}
	args := []interface{}{}
	if f.AgentID != nil {
		args = append(args, *f.AgentID)
		where = append(where, "agent_id = $"+strconv.Itoa(len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM payment WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+cols+` FROM payment WHERE `+cond+
			` ORDER BY created_at DESC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []*Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, p)
	}
	return result, total, rows.Err()
}

func (r *repoPG) ListProcessing(ctx context.Context, limit int) ([]*Payment, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+cols+` FROM payment WHERE status = 'processing' ORDER BY submitted_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *repoPG) SetSubmitted(ctx context.Context, id uuid.UUID, providerPaymentID, providerStatus string) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE payment
		SET status = 'processing', provider_payment_id = $2, provider_status = $3,
			failure_reason = NULL, submitted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`, id, providerPaymentID, providerStatus)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) SetFailure(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE payment SET failure_reason = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`, id, reason)
	return err
}

func (r *repoPG) SetProviderStatus(ctx context.Context, id uuid.UUID, providerStatus string, local Status) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE payment SET provider_status = $2, status = $3, updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'processing')`, id, providerStatus, local)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
