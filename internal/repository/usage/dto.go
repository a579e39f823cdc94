package usage

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/apd/v3"

	"github.com/kailas-cloud/meterd/internal/domain"
)

// rawRecord mirrors one element of an exported usage object. Extra fields in
// the source JSON are ignored. Value stays raw so a bad value in one record
// cannot fail the decode of its siblings; exports carry it as either a JSON
// number or a numeric string.
type rawRecord struct {
	ExternalPayerID string          `json:"externalPayerId"`
	Dimension       string          `json:"dimension"`
	Value           json.RawMessage `json:"value"`
}

func (r rawRecord) toEvent() (domain.UsageEvent, error) {
	if r.ExternalPayerID == "" {
		return domain.UsageEvent{}, fmt.Errorf("record missing externalPayerId")
	}
	if r.Dimension == "" {
		return domain.UsageEvent{}, fmt.Errorf("record missing dimension")
	}
	raw := bytes.TrimSpace(r.Value)
	if len(raw) == 0 {
		return domain.UsageEvent{}, fmt.Errorf("record missing value")
	}
	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return domain.UsageEvent{}, fmt.Errorf("record value %s: %w", raw, err)
		}
	}
	value, _, err := apd.NewFromString(text)
	if err != nil {
		return domain.UsageEvent{}, fmt.Errorf("record value %q: %w", text, err)
	}
	return domain.UsageEvent{
		ContractID: r.ExternalPayerID,
		Dimension:  r.Dimension,
		Value:      value,
	}, nil
}
