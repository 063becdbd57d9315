package report

import (
	"context"
	"fmt"
)

// Producer delivers structured candidates extracted from inbound clinic
// emails. The fetch and extraction pipeline behind it is a black box; the
// ingestor only requires that SourceID is stable per inbound message so
// redelivery stays idempotent.
type Producer interface {
	Fetch(ctx context.Context, limit int) ([]*ClinicReport, error)
}

// Ingest pulls a batch from the producer, stores each new report and routes
// it through the matcher. A failing item is logged and skipped so one broken
// message never stalls the batch. Returns the number of newly stored reports.
func (s *Service) Ingest(ctx context.Context, producer Producer, batchSize int) (int, error) {
	batch, err := producer.Fetch(ctx, batchSize)
	if err != nil {
		return 0, fmt.Errorf("fetch inbound reports: %w", err)
	}

	stored := 0
	for _, rep := range batch {
		fresh, err := s.ingestOne(ctx, rep)
		if err != nil {
			s.logger.Error().Err(err).Str("source_id", rep.SourceID).Msg("skipping inbound report")
			continue
		}
		if fresh {
			stored++
		}
	}
	return stored, nil
}

func (s *Service) ingestOne(ctx context.Context, rep *ClinicReport) (bool, error) {
	if rep.SourceID == "" {
		return false, fmt.Errorf("inbound report has no source id")
	}
	rep.Status = StatusPendingReview

	inserted, err := s.reports.InsertIfNew(ctx, rep)
	if err != nil {
		return false, fmt.Errorf("store report %s: %w", rep.SourceID, err)
	}
	if !inserted {
		// Redelivered message, already processed.
		return false, nil
	}

	clinic := ""
	if rep.ClinicName != nil {
		clinic = *rep.ClinicName
	}
	pool, err := s.referrals.OpenByClinic(ctx, clinic)
	if err != nil {
		return false, fmt.Errorf("load candidate referrals: %w", err)
	}

	v := s.matcher.Route(rep, pool)
	if err := s.reports.SetMatch(ctx, rep.ID, v.Status, v.Confidence, v.LinkedReferralID, v.SuggestedReferralID); err != nil {
		return false, fmt.Errorf("record match for report %s: %w", rep.SourceID, err)
	}

	rep.Status = v.Status
	rep.MatchConfidence = &v.Confidence
	rep.LinkedReferralID = v.LinkedReferralID
	rep.SuggestedReferralID = v.SuggestedReferralID
	s.logger.Info().
		Str("report_id", rep.ID.String()).
		Str("status", string(v.Status)).
		Int("confidence", v.Confidence).
		Msg("ingested clinic report")
	return true, nil
}
