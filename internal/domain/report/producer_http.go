package report

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/refermed/refermed/internal/platform/fault"
)

// HTTPProducer pulls extracted report candidates from the mailbox extraction
// service. The service owns fetching and parsing of clinic emails; this
// client only drains its outbox. Items stay in the outbox until acknowledged
// through the stable source id, so redelivery is expected and handled by the
// ingestor's dedup.
type HTTPProducer struct {
	baseURL string
	token   string
	client  *http.Client
	logger  zerolog.Logger
}

func NewHTTPProducer(baseURL, token string, timeout time.Duration, logger zerolog.Logger) *HTTPProducer {
	return &HTTPProducer{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// inboundItem is the extraction service's wire shape for one candidate.
type inboundItem struct {
	SourceID             string     `json:"source_id"`
	Sender               string     `json:"sender"`
	Subject              string     `json:"subject"`
	ReceivedAt           time.Time  `json:"received_at"`
	RawBody              string     `json:"raw_body"`
	PatientName          *string    `json:"patient_name"`
	ClinicName           *string    `json:"clinic_name"`
	VisitDate            *time.Time `json:"visit_date"`
	TreatmentAmount      *int64     `json:"treatment_amount"`
	Services             []string   `json:"services"`
	ExtractionConfidence float64    `json:"extraction_confidence"`
}

func (p *HTTPProducer) Fetch(ctx context.Context, limit int) ([]*ClinicReport, error) {
	url := p.baseURL + "/outbox?limit=" + strconv.Itoa(limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build outbox request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fault.Provider("network", "fetch report outbox: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		p.logger.Warn().Int("status", resp.StatusCode).Msg("report outbox fetch failed")
		return nil, fault.Provider(fmt.Sprintf("http_%d", resp.StatusCode), "fetch report outbox")
	}

	var items []inboundItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fault.Provider("bad_response", "decode report outbox: %v", err)
	}

	batch := make([]*ClinicReport, 0, len(items))
	for _, it := range items {
		batch = append(batch, &ClinicReport{
			SourceID:             it.SourceID,
			Sender:               it.Sender,
			Subject:              it.Subject,
			ReceivedAt:           it.ReceivedAt,
			RawBody:              it.RawBody,
			PatientName:          it.PatientName,
			ClinicName:           it.ClinicName,
			VisitDate:            it.VisitDate,
			TreatmentAmount:      it.TreatmentAmount,
			Services:             it.Services,
			ExtractionConfidence: it.ExtractionConfidence,
		})
	}
	return batch, nil
}
