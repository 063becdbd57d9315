package report

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

const cols = `id, source_id, sender, subject, received_at, raw_body,
	patient_name, clinic_name, visit_date, treatment_amount, services, extraction_confidence,
	status, match_confidence, linked_referral_id, suggested_referral_id, reviewer_notes,
	created_at, updated_at`

func scanReport(row pgx.Row) (*ClinicReport, error) {
	var rep ClinicReport
	err := row.Scan(&rep.ID, &rep.SourceID, &rep.Sender, &rep.Subject, &rep.ReceivedAt, &rep.RawBody,
		&rep.PatientName, &rep.ClinicName, &rep.VisitDate, &rep.TreatmentAmount, &rep.Services, &rep.ExtractionConfidence,
		&rep.Status, &rep.MatchConfidence, &rep.LinkedReferralID, &rep.SuggestedReferralID, &rep.ReviewerNotes,
		&rep.CreatedAt, &rep.UpdatedAt)
	return &rep, err
}

func (r *repoPG) InsertIfNew(ctx context.Context, rep *ClinicReport) (bool, error) {
	if rep.ID == uuid.Nil {
		rep.ID = uuid.New()
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO clinic_report (id, source_id, sender, subject, received_at, raw_body,
			patient_name, clinic_name, visit_date, treatment_amount, services, extraction_confidence, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (source_id) DO NOTHING`,
		rep.ID, rep.SourceID, rep.Sender, rep.Subject, rep.ReceivedAt, rep.RawBody,
		rep.PatientName, rep.ClinicName, rep.VisitDate, rep.TreatmentAmount, rep.Services,
		rep.ExtractionConfidence, rep.Status)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*ClinicReport, error) {
	return scanReport(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM clinic_report WHERE id = $1`, id))
}

func (r *repoPG) List(ctx context.Context, f ListFilter, limit, offset int) ([]*ClinicReport, int, error) {
	where := []string{"TRUE"}
	args := []interface{}{}
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}
	if f.Clinic != "" {
		args = append(args, f.Clinic)
		where = append(where, "LOWER(clinic_name) = LOWER($"+strconv.Itoa(len(args))+")")
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM clinic_report WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+cols+` FROM clinic_report WHERE `+cond+
			` ORDER BY received_at DESC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var result []*ClinicReport
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, rep)
	}
	return result, total, rows.Err()
}

func (r *repoPG) SetMatch(ctx context.Context, id uuid.UUID, status Status, confidence int, linked, suggested *int64) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE clinic_report
		SET status = $2, match_confidence = $3, linked_referral_id = $4, suggested_referral_id = $5, updated_at = NOW()
		WHERE id = $1`, id, status, confidence, linked, suggested)
	return err
}

func (r *repoPG) UpdateExtracted(ctx context.Context, rep *ClinicReport) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE clinic_report
		SET patient_name = $2, clinic_name = $3, visit_date = $4, treatment_amount = $5, services = $6, updated_at = NOW()
		WHERE id = $1 AND status IN ('pending_review', 'auto_matched')`,
		rep.ID, rep.PatientName, rep.ClinicName, rep.VisitDate, rep.TreatmentAmount, rep.Services)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) Relink(ctx context.Context, id uuid.UUID, referralID int64) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE clinic_report
		SET linked_referral_id = $2, suggested_referral_id = NULL, updated_at = NOW()
		WHERE id = $1 AND status IN ('pending_review', 'auto_matched')`, id, referralID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) MarkApproved(ctx context.Context, id uuid.UUID, referralID int64) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE clinic_report
		SET status = 'approved', linked_referral_id = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('pending_review', 'auto_matched')`, id, referralID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) MarkRejected(ctx context.Context, id uuid.UUID, notes string) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE clinic_report
		SET status = 'rejected', reviewer_notes = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('pending_review', 'auto_matched')`, id, notes)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
