package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/meterd/internal/domain"
	"github.com/kailas-cloud/meterd/internal/metrics"
)

// buildPayload assembles the request body for one contract's records.
func (s *Service) buildPayload(records []domain.AggregatedRecord, w domain.Window) (*domain.MeteringPayload, error) {
	payload := &domain.MeteringPayload{Request: make([]domain.MeteringRecord, 0, len(records))}
	for _, r := range records {
		quantity, err := r.QuantityString()
		if err != nil {
			return nil, err
		}
		payload.Request = append(payload.Request, domain.MeteringRecord{
			Cloud:      s.cfg.Cloud,
			ContractID: r.ContractID,
			Dimension:  r.Dimension,
			StartTime:  w.Start().Format(time.RFC3339),
			EndTime:    w.End().Format(time.RFC3339),
			Quantity:   quantity,
		})
	}
	return payload, nil
}

// submitContract pushes one contract's payload with bounded exponential
// backoff. The attempt counter resumes from any prior error entry so a
// contract's retry budget spans runs. It returns nil on success or a
// contractError carrying the exact attempted payload.
func (s *Service) submitContract(ctx context.Context, contractID string, records []domain.AggregatedRecord, w domain.Window, prior *domain.ErrorEntry) *contractError {
	payload, err := s.buildPayload(records, w)
	if err != nil {
		return &contractError{
			contractID: contractID,
			code:       "INVALID_QUANTITY",
			message:    "payload construction failed",
			errs:       []string{err.Error()},
		}
	}

	if s.cfg.DryRun {
		s.logger.Info("dry run, skipping submission",
			zap.String("contract_id", contractID),
			zap.String("window", w.Key()),
			zap.Any("payload", payload))
		return nil
	}

	start := 0
	if prior != nil {
		start = prior.RetryCount
	}

	var lastErr error
	for attempt := start; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > start {
			s.sleep(time.Duration(1<<uint(attempt)) * time.Second)
		}

		metrics.SubmissionAttemptsTotal.Inc()
		lastErr = s.submitter.Submit(ctx, *payload)
		if lastErr == nil {
			return nil
		}

		s.logger.Warn("submission attempt failed",
			zap.String("contract_id", contractID),
			zap.String("window", w.Key()),
			zap.Int("attempt", attempt),
			zap.Error(lastErr))

		if attempt >= s.cfg.MaxRetries {
			break
		}
	}

	cerr := &contractError{
		contractID: contractID,
		code:       "NETWORK_ERROR",
		message:    fmt.Sprintf("submission failed after %d retries", s.cfg.MaxRetries),
		errs:       []string{lastErr.Error()},
		retries:    s.cfg.MaxRetries,
		payload:    payload,
	}
	var serr *domain.SubmissionError
	if errors.As(lastErr, &serr) {
		cerr.code = serr.Code
		cerr.message = serr.Message
		if len(serr.Errors) > 0 {
			cerr.errs = serr.Errors
		}
	}
	return cerr
}
