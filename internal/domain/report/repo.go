package report

import (
	"context"

	"github.com/google/uuid"
)

// ListFilter narrows List results. Zero values mean "any".
type ListFilter struct {
	Status Status
	Clinic string
}

type Repository interface {
	// InsertIfNew inserts the report unless one with the same source id
	// already exists. Returns false without error on a duplicate.
	InsertIfNew(ctx context.Context, r *ClinicReport) (bool, error)

	GetByID(ctx context.Context, id uuid.UUID) (*ClinicReport, error)
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*ClinicReport, int, error)

	// SetMatch records the matcher's verdict on a freshly ingested report.
	SetMatch(ctx context.Context, id uuid.UUID, status Status, confidence int, linked, suggested *int64) error

	// UpdateExtracted overwrites the extracted fields of a still-reviewable
	// report. Returns false when the report is already approved or rejected.
	UpdateExtracted(ctx context.Context, r *ClinicReport) (bool, error)

	// Relink points a still-reviewable report at a different referral.
	Relink(ctx context.Context, id uuid.UUID, referralID int64) (bool, error)

	// MarkApproved finalizes the report against the given referral.
	// Conditional on the report being reviewable; returns false otherwise.
	MarkApproved(ctx context.Context, id uuid.UUID, referralID int64) (bool, error)

	// MarkRejected finalizes the report with a reviewer reason.
	// Conditional on the report being reviewable; returns false otherwise.
	MarkRejected(ctx context.Context, id uuid.UUID, notes string) (bool, error)
}
