package pipeline

import "github.com/kailas-cloud/meterd/internal/domain"

// Retry policies for contracts already present in error state.
const (
	// PolicyAuto retries errored contracts automatically until their retry
	// budget is exhausted.
	PolicyAuto = "auto"
	// PolicyManual skips all errored contracts; retry requires a manual
	// state edit.
	PolicyManual = "manual"
)

// filterRecords drops records for contracts already successfully submitted
// for the window, and, depending on the policy, contracts sitting in error
// state. skipped counts contracts (not records) removed by the filter.
func (s *Service) filterRecords(records []domain.AggregatedRecord, rec *domain.StateRecord, w domain.Window) (kept []domain.AggregatedRecord, skipped int) {
	excluded := make(map[string]bool)
	seen := make(map[string]bool)

	for _, r := range records {
		if seen[r.ContractID] {
			if !excluded[r.ContractID] {
				kept = append(kept, r)
			}
			continue
		}
		seen[r.ContractID] = true

		if rec.HasSucceeded(w, r.ContractID) {
			excluded[r.ContractID] = true
			skipped++
			continue
		}
		if entry, ok := rec.FindError(w, r.ContractID); ok {
			switch s.cfg.RetryPolicy {
			case PolicyManual:
				excluded[r.ContractID] = true
				skipped++
				continue
			default: // PolicyAuto
				if entry.RetryCount >= s.cfg.MaxRetries {
					excluded[r.ContractID] = true
					skipped++
					continue
				}
			}
		}
		kept = append(kept, r)
	}
	return kept, skipped
}
