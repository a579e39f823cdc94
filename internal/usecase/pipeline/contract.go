package pipeline

import (
	"context"

	"github.com/kailas-cloud/meterd/internal/domain"
)

// UsageSource reads raw usage events for one service and window.
type UsageSource interface {
	Events(ctx context.Context, key domain.ServiceKey, w domain.Window) ([]domain.UsageEvent, error)
}

// StateStore persists the progress document.
type StateStore interface {
	Load(ctx context.Context) (domain.StateDocument, error)
	Save(ctx context.Context, doc domain.StateDocument) error
}

// Submitter posts one contract's payload to the billing API.
type Submitter interface {
	Submit(ctx context.Context, payload domain.MeteringPayload) error
}
