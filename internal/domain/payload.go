package domain

// MeteringRecord is one entry of a billing API request.
type MeteringRecord struct {
	Cloud      string `json:"cloud"`
	ContractID string `json:"contract_id"`
	Dimension  string `json:"dimension"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Quantity   string `json:"quantity"`
}

// MeteringPayload is the exact request body submitted for one contract. It is
// preserved verbatim in an ErrorEntry on terminal failure so a human can
// resubmit it without recomputing aggregation.
type MeteringPayload struct {
	Request []MeteringRecord `json:"request"`
}
