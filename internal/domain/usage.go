package domain

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

// UsageEvent is one raw metering observation read from the object store.
// Events are immutable inputs; the pipeline never writes them back.
type UsageEvent struct {
	ContractID string
	Dimension  string
	Value      *apd.Decimal
}

// CustomDimension derives a billable dimension from the raw per-contract sums
// via a restricted arithmetic formula. Formulas come from configuration and
// are compiled before the first run.
type CustomDimension struct {
	Name    string
	Formula string
}

// ValidateCustomDimensions checks that dimension names are unique and that
// every entry carries both a name and a formula.
func ValidateCustomDimensions(dims []CustomDimension) error {
	seen := make(map[string]struct{}, len(dims))
	for _, d := range dims {
		if d.Name == "" {
			return fmt.Errorf("custom dimension name is required")
		}
		if d.Formula == "" {
			return fmt.Errorf("custom dimension %q: formula is required", d.Name)
		}
		if _, dup := seen[d.Name]; dup {
			return fmt.Errorf("custom dimension %q: duplicate name", d.Name)
		}
		seen[d.Name] = struct{}{}
	}
	return nil
}
