// Package pipeline orchestrates one metering run: window selection, usage
// aggregation, idempotency filtering, submission with retries, and state
// persistence.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/meterd/internal/domain"
	"github.com/kailas-cloud/meterd/internal/formula"
	"github.com/kailas-cloud/meterd/internal/metrics"
)

// Config holds the per-deployment pipeline settings.
type Config struct {
	ServiceKey       domain.ServiceKey
	Cloud            string
	MaxWindows       int
	MaxRetries       int
	RetryPolicy      string
	RawDimensions    []string
	CustomDimensions []domain.CustomDimension
	DryRun           bool
}

// Service runs the metering pipeline. One run processes at most
// cfg.MaxWindows past windows, strictly in order, saving state after each.
type Service struct {
	cfg        Config
	source     UsageSource
	states     StateStore
	submitter  Submitter
	dimensions []compiledDimension
	logger     *zap.Logger

	now   func() time.Time
	sleep func(time.Duration)
}

// New creates a pipeline service, compiling all custom dimension formulas up
// front so a bad formula fails the deployment at startup, not mid-run.
func New(cfg Config, source UsageSource, states StateStore, submitter Submitter, logger *zap.Logger) (*Service, error) {
	if err := cfg.ServiceKey.Validate(); err != nil {
		return nil, fmt.Errorf("service key: %w", err)
	}
	if err := domain.ValidateCustomDimensions(cfg.CustomDimensions); err != nil {
		return nil, err
	}
	if cfg.RetryPolicy != PolicyAuto && cfg.RetryPolicy != PolicyManual {
		return nil, fmt.Errorf("unknown retry policy %q", cfg.RetryPolicy)
	}

	dims := make([]compiledDimension, 0, len(cfg.CustomDimensions))
	for _, cd := range cfg.CustomDimensions {
		program, err := formula.Compile(cd.Formula)
		if err != nil {
			return nil, fmt.Errorf("custom dimension %q: %w", cd.Name, err)
		}
		dims = append(dims, compiledDimension{name: cd.Name, program: program})
	}

	return &Service{
		cfg:        cfg,
		source:     source,
		states:     states,
		submitter:  submitter,
		dimensions: dims,
		logger:     logger,
		now:        time.Now,
		sleep:      time.Sleep,
	}, nil
}

// Run executes one pipeline pass. State corruption aborts before any window
// is touched; any other per-window failure stops the run after saving the
// windows already completed, preserving strict window ordering.
func (s *Service) Run(ctx context.Context) error {
	started := s.now()
	defer func() {
		metrics.RunDurationSeconds.Observe(s.now().Sub(started).Seconds())
	}()

	doc, err := s.states.Load(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	rec := doc.Record(s.cfg.ServiceKey)

	last, hasLast, err := rec.LastWindow()
	if err != nil {
		return fmt.Errorf("%w: bad last processed window: %w", domain.ErrStateCorrupt, err)
	}
	var lastPtr *domain.Window
	if hasLast {
		lastPtr = &last
	}

	windows := selectWindows(lastPtr, s.now(), s.cfg.MaxWindows)
	if len(windows) == 0 {
		s.logger.Info("no windows to process",
			zap.String("service_key", s.cfg.ServiceKey.String()))
		return nil
	}

	for _, w := range windows {
		if err := s.processWindow(ctx, rec, w); err != nil {
			metrics.WindowsProcessedTotal.WithLabelValues("error").Inc()
			return fmt.Errorf("window %s: %w", w.Key(), err)
		}

		rec.SetLastWindow(w, s.now())
		if err := s.states.Save(ctx, doc); err != nil {
			return fmt.Errorf("save state after window %s: %w", w.Key(), err)
		}
		metrics.WindowsProcessedTotal.WithLabelValues("ok").Inc()
	}
	return nil
}

// processWindow aggregates, filters and submits one window's contracts.
// Per-contract failures are recorded in state and never block siblings; only
// infrastructure failures (usage listing) are returned.
func (s *Service) processWindow(ctx context.Context, rec *domain.StateRecord, w domain.Window) error {
	logger := s.logger.With(
		zap.String("service_key", s.cfg.ServiceKey.String()),
		zap.String("window", w.Key()))
	logger.Info("processing window")

	events, err := s.source.Events(ctx, s.cfg.ServiceKey, w)
	if err != nil {
		return err
	}
	metrics.UsageEventsReadTotal.Add(float64(len(events)))

	records, aggErrs := s.aggregate(events, w)
	for _, cerr := range aggErrs {
		metrics.FormulaFailuresTotal.Inc()
		s.recordError(rec, w, cerr, logger)
	}

	kept, skipped := s.filterRecords(records, rec, w)
	if skipped > 0 {
		metrics.ContractsSubmittedTotal.WithLabelValues("skipped").Add(float64(skipped))
		logger.Info("skipped already-settled contracts", zap.Int("contracts", skipped))
	}
	if len(kept) == 0 {
		logger.Info("nothing to submit")
		return nil
	}

	for _, contractID := range contractOrder(kept) {
		var contractRecords []domain.AggregatedRecord
		for _, r := range kept {
			if r.ContractID == contractID {
				contractRecords = append(contractRecords, r)
			}
		}

		var prior *domain.ErrorEntry
		if entry, ok := rec.FindError(w, contractID); ok {
			prior = &entry
		}

		if cerr := s.submitContract(ctx, contractID, contractRecords, w, prior); cerr != nil {
			metrics.ContractsSubmittedTotal.WithLabelValues("error").Inc()
			s.recordError(rec, w, *cerr, logger)
			continue
		}

		metrics.ContractsSubmittedTotal.WithLabelValues("success").Inc()
		rec.MarkSuccess(w, contractID, s.now())
		logger.Info("contract submitted",
			zap.String("contract_id", contractID),
			zap.Int("records", len(contractRecords)))
	}
	return nil
}

func (s *Service) recordError(rec *domain.StateRecord, w domain.Window, cerr contractError, logger *zap.Logger) {
	logger.Error("contract failed",
		zap.String("contract_id", cerr.contractID),
		zap.String("code", cerr.code),
		zap.Strings("errors", cerr.errs))
	rec.PutError(w, domain.ErrorEntry{
		ContractID:    cerr.contractID,
		Errors:        cerr.errs,
		Code:          cerr.code,
		Message:       cerr.message,
		RetryCount:    cerr.retries,
		LastRetryTime: s.now().UTC().Format(time.RFC3339),
		Payload:       cerr.payload,
	}, s.now())
}

// contractOrder returns the distinct contract IDs of records in sorted order
// so submission order is deterministic across runs.
func contractOrder(records []domain.AggregatedRecord) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, r := range records {
		if !seen[r.ContractID] {
			seen[r.ContractID] = true
			ids = append(ids, r.ContractID)
		}
	}
	sort.Strings(ids)
	return ids
}
