package agent

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

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const cols = `id, full_name, phone, tax_id, self_employed, telegram_chat_id,
	payout_method, card_number, bank_account, bank_routing,
	provider_payee_id, provider_requisite_id, created_at, updated_at`

func scanAgent(row pgx.Row) (*Agent, error) {
	var a Agent
	err := row.Scan(&a.ID, &a.FullName, &a.Phone, &a.TaxID, &a.SelfEmployed, &a.TelegramChatID,
		&a.PayoutMethod, &a.CardNumber, &a.BankAccount, &a.BankRouting,
		&a.ProviderPayeeID, &a.ProviderRequisiteID, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *repoPG) Create(ctx context.Context, a *Agent) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO agent (id, full_name, phone, tax_id, self_employed, telegram_chat_id,
			payout_method, card_number, bank_account, bank_routing)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		a.ID, a.FullName, a.Phone, a.TaxID, a.SelfEmployed, a.TelegramChatID,
		a.PayoutMethod, a.CardNumber, a.BankAccount, a.BankRouting).
		Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Agent, error) {
	return scanAgent(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM agent WHERE id = $1`, id))
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Agent, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM agent`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+cols+` FROM agent ORDER BY full_name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []*Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, a)
	}
	return result, total, rows.Err()
}

func (r *repoPG) Update(ctx context.Context, a *Agent) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE agent
		SET full_name = $2, phone = $3, tax_id = $4, self_employed = $5, telegram_chat_id = $6,
			payout_method = $7, card_number = $8, bank_account = $9, bank_routing = $10,
			updated_at = NOW()
		WHERE id = $1`,
		a.ID, a.FullName, a.Phone, a.TaxID, a.SelfEmployed, a.TelegramChatID,
		a.PayoutMethod, a.CardNumber, a.BankAccount, a.BankRouting)
	return err
}

func (r *repoPG) SetProviderIDs(ctx context.Context, id uuid.UUID, payeeID, requisiteID string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE agent SET provider_payee_id = NULLIF($2, ''), provider_requisite_id = NULLIF($3, ''), updated_at = NOW()
		WHERE id = $1`, id, payeeID, requisiteID)
	return err
}
