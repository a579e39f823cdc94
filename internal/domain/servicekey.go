package domain

import (
	"fmt"
	"strings"
)

// ServiceKey identifies one monitored service configuration. Its string form
// is the top-level key of the persisted state document; records for different
// keys never interact.
type ServiceKey struct {
	Service     string
	Environment string
	PlanID      string
}

// String returns the stable state-document key, e.g. "Postgres:PROD:pt-X".
func (k ServiceKey) String() string {
	return k.Service + ":" + k.Environment + ":" + k.PlanID
}

// Validate checks that all identity components are present and that none of
// them would corrupt the composite key form.
func (k ServiceKey) Validate() error {
	if k.Service == "" {
		return fmt.Errorf("service name is required")
	}
	if k.Environment == "" {
		return fmt.Errorf("environment type is required")
	}
	if k.PlanID == "" {
		return fmt.Errorf("plan id is required")
	}
	for _, part := range []string{k.Service, k.Environment, k.PlanID} {
		if strings.ContainsAny(part, ":/") {
			return fmt.Errorf("service key component %q must not contain ':' or '/'", part)
		}
	}
	return nil
}
