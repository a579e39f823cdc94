package domain

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

var quantityCtx = apd.BaseContext.WithPrecision(34)

// AggregatedRecord is one per-contract, per-dimension billing quantity for a
// window, produced by folding the window's usage events.
type AggregatedRecord struct {
	ContractID string
	Dimension  string
	Quantity   *apd.Decimal
	Window     Window
}

// QuantityString resolves the quantity to the decimal-digit string the billing
// API requires: truncated toward zero to an integer, never negative.
func (r AggregatedRecord) QuantityString() (string, error) {
	if r.Quantity == nil {
		return "", fmt.Errorf("contract %s dimension %s: missing quantity", r.ContractID, r.Dimension)
	}
	if r.Quantity.Negative && !r.Quantity.IsZero() {
		return "", fmt.Errorf("contract %s dimension %s: negative quantity %s",
			r.ContractID, r.Dimension, r.Quantity.String())
	}
	var truncated apd.Decimal
	if _, err := quantityCtx.Floor(&truncated, r.Quantity); err != nil {
		return "", fmt.Errorf("contract %s dimension %s: %w", r.ContractID, r.Dimension, err)
	}
	return truncated.Text('f'), nil
}
