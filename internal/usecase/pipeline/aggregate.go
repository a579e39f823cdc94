package pipeline

import (
	"fmt"
	"sort"

	"github.com/cockroachdb/apd/v3"

	"github.com/kailas-cloud/meterd/internal/domain"
	"github.com/kailas-cloud/meterd/internal/formula"
)

var sumCtx = apd.BaseContext.WithPrecision(34)

// compiledDimension pairs a custom dimension name with its compiled formula.
type compiledDimension struct {
	name    string
	program *formula.Program
}

// contractError reports a per-contract processing failure to be recorded in
// state without blocking sibling contracts.
type contractError struct {
	contractID string
	code       string
	message    string
	errs       []string
	retries    int
	payload    *domain.MeteringPayload
}

// aggregate folds events into per-contract, per-dimension sums, then derives
// custom dimensions. A formula failure drops every record of that contract
// for the window: a partially billed contract is worse than an unbilled one
// pending review. Returned records are ordered by contract then dimension.
func (s *Service) aggregate(events []domain.UsageEvent, w domain.Window) ([]domain.AggregatedRecord, []contractError) {
	sums := make(map[string]map[string]*apd.Decimal)
	for _, e := range events {
		byDim, ok := sums[e.ContractID]
		if !ok {
			byDim = make(map[string]*apd.Decimal)
			sums[e.ContractID] = byDim
		}
		total, ok := byDim[e.Dimension]
		if !ok {
			total = new(apd.Decimal)
			byDim[e.Dimension] = total
		}
		if _, err := sumCtx.Add(total, total, e.Value); err != nil {
			// Overflow at 34 digits is unreachable for real usage volumes.
			continue
		}
	}

	contracts := make([]string, 0, len(sums))
	for id := range sums {
		contracts = append(contracts, id)
	}
	sort.Strings(contracts)

	var records []domain.AggregatedRecord
	var errs []contractError

contractLoop:
	for _, contractID := range contracts {
		byDim := sums[contractID]

		// Formula inputs: every configured raw dimension resolves, absent
		// ones as zero, so formulas behave uniformly across contracts.
		vars := make(map[string]*apd.Decimal, len(s.cfg.RawDimensions))
		for _, name := range s.cfg.RawDimensions {
			if v, ok := byDim[name]; ok {
				vars[name] = v
			} else {
				vars[name] = new(apd.Decimal)
			}
		}

		contractRecords := make([]domain.AggregatedRecord, 0, len(byDim)+len(s.dimensions))
		dims := make([]string, 0, len(byDim))
		for dim := range byDim {
			dims = append(dims, dim)
		}
		sort.Strings(dims)
		for _, dim := range dims {
			contractRecords = append(contractRecords, domain.AggregatedRecord{
				ContractID: contractID,
				Dimension:  dim,
				Quantity:   byDim[dim],
				Window:     w,
			})
		}

		for _, cd := range s.dimensions {
			quantity, err := cd.program.Eval(vars)
			if err != nil {
				errs = append(errs, contractError{
					contractID: contractID,
					code:       "FORMULA_ERROR",
					message:    fmt.Sprintf("custom dimension %q evaluation failed", cd.name),
					errs:       []string{err.Error()},
				})
				continue contractLoop
			}
			contractRecords = append(contractRecords, domain.AggregatedRecord{
				ContractID: contractID,
				Dimension:  cd.name,
				Quantity:   quantity,
				Window:     w,
			})
		}

		records = append(records, contractRecords...)
	}

	return records, errs
}
