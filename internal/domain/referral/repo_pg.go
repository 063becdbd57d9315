package referral

import (
	"context"
	"strconv"
	"strings"
	"time"

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

const cols = `id, agent_id, patient_name, patient_birthdate, patient_contact,
	clinic_name, notes, status, treatment_amount, commission_amount,
	settled_report_id, settled_at, created_at, updated_at`

func scanReferral(row pgx.Row) (*Referral, error) {
	var ref Referral
	err := row.Scan(&ref.ID, &ref.AgentID, &ref.PatientName, &ref.PatientBirthdate, &ref.PatientContact,
		&ref.ClinicName, &ref.Notes, &ref.Status, &ref.TreatmentAmount, &ref.CommissionAmount,
		&ref.SettledReportID, &ref.SettledAt, &ref.CreatedAt, &ref.UpdatedAt)
	return &ref, err
}

func (r *repoPG) Create(ctx context.Context, ref *Referral) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO referral (agent_id, patient_name, patient_birthdate, patient_contact, clinic_name, notes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`,
		ref.AgentID, ref.PatientName, ref.PatientBirthdate, ref.PatientContact,
		ref.ClinicName, ref.Notes, ref.Status).
		Scan(&ref.ID, &ref.CreatedAt, &ref.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id int64) (*Referral, error) {
	return scanReferral(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM referral WHERE id = $1`, id))
}

func (r *repoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*Referral, int, error) {
	where := []string{"TRUE"}
	args := []interface{}{}
	if f.AgentID != nil {
		args = append(args, *f.AgentID)
		where = append(where, "agent_id = $"+itoa(len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, "status = $"+itoa(len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM referral WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+cols+` FROM referral WHERE `+cond+
			` ORDER BY created_at DESC LIMIT $`+itoa(len(args)-1)+` OFFSET $`+itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []*Referral
	for rows.Next() {
		ref, err := scanReferral(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, ref)
	}
	return result, total, rows.Err()
}

func (r *repoPG) UpdateStatus(ctx context.Context, id int64, from, to Status) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE referral SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) OpenByClinic(ctx context.Context, clinic string) ([]*Referral, error) {
	query := `SELECT ` + cols + ` FROM referral
		WHERE status IN ('new', 'in_progress', 'contacted', 'scheduled', 'booked')
		AND settled_report_id IS NULL`
	args := []interface{}{}
	if clinic != "" {
		args = append(args, clinic)
		query += ` AND LOWER(clinic_name) = LOWER($1)`
	}
	query += ` ORDER BY created_at`

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Referral
	for rows.Next() {
		ref, err := scanReferral(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, ref)
	}
	return result, rows.Err()
}

func (r *repoPG) SettleVisited(ctx context.Context, id int64, amount int64, reportID uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE referral
		SET status = 'visited', treatment_amount = $2, settled_report_id = $3, settled_at = $4, updated_at = NOW()
		WHERE id = $1
		  AND settled_report_id IS NULL
		  AND status IN ('new', 'in_progress', 'contacted', 'scheduled', 'booked', 'booked_elsewhere')`,
		id, amount, reportID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) SetPaid(ctx context.Context, id int64, commission int64) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE referral SET status = 'paid', commission_amount = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'visited' AND treatment_amount IS NOT NULL`,
		id, commission)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) TrailingRevenue(ctx context.Context, agentID uuid.UUID, since time.Time, excludeID int64) (int64, error) {
	var total int64
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(treatment_amount), 0) FROM referral
		WHERE agent_id = $1 AND id <> $2 AND settled_at >= $3 AND treatment_amount IS NOT NULL`,
		agentID, excludeID, since).Scan(&total)
	return total, err
}

func (r *repoPG) AppendHistory(ctx context.Context, e *HistoryEntry) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO referral_status_history (referral_id, from_status, to_status, actor)
		VALUES ($1, $2, $3, $4)
		RETURNING id, at`,
		e.ReferralID, e.FromStatus, e.ToStatus, e.Actor).
		Scan(&e.ID, &e.At)
}

func (r *repoPG) History(ctx context.Context, referralID int64) ([]*HistoryEntry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, referral_id, from_status, to_status, actor, at
		FROM referral_status_history WHERE referral_id = $1 ORDER BY at, id`, referralID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.ReferralID, &e.FromStatus, &e.ToStatus, &e.Actor, &e.At); err != nil {
			return nil, err
		}
		result = append(result, &e)
	}
	return result, rows.Err()
}

func itoa(n int) string { return strconv.Itoa(n) }
