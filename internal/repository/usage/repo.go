// Package usage reads raw usage objects for a service and window from object
// storage and parses them into domain events.
package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/meterd/internal/domain"
)

// store is the consumer interface for usage reads (ISP).
type store interface {
	List(ctx context.Context, prefix string) ([]string, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// Repository enumerates and parses usage objects. Objects are JSON arrays of
// per-contract records; malformed objects or records are logged and skipped.
type Repository struct {
	store  store
	prefix string
	logger *zap.Logger
}

// New creates a usage repository. prefix is the bucket-level root under which
// usage objects are exported (e.g. "omnistrate-metering").
func New(s store, prefix string, logger *zap.Logger) *Repository {
	return &Repository{
		store:  s,
		prefix: strings.TrimSuffix(prefix, "/"),
		logger: logger,
	}
}

// windowPrefix builds the deterministic key layout for one service and window:
// prefix/service/environment/plan/YYYY/MM/.
func (r *Repository) windowPrefix(key domain.ServiceKey, w domain.Window) string {
	return fmt.Sprintf("%s/%s/%s/%s/%04d/%02d/",
		r.prefix, key.Service, key.Environment, key.PlanID, w.Year, int(w.Month))
}

// Events returns all usage events for the service under the window's prefix.
// An empty prefix (no data for the window) yields an empty slice, not an
// error. A list failure is fatal to the window.
func (r *Repository) Events(ctx context.Context, key domain.ServiceKey, w domain.Window) ([]domain.UsageEvent, error) {
	prefix := r.windowPrefix(key, w)

	keys, err := r.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list usage objects %s: %w", prefix, err)
	}

	var events []domain.UsageEvent
	objects := 0
	for _, objKey := range keys {
		if !strings.HasSuffix(objKey, ".json") {
			continue
		}
		objects++

		data, err := r.store.Get(ctx, objKey)
		if err != nil {
			r.logger.Warn("failed to read usage object, skipping",
				zap.String("key", objKey), zap.Error(err))
			continue
		}

		// Decode elements individually so one malformed record skips
		// only itself, not its siblings.
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			r.logger.Warn("failed to parse usage object, skipping",
				zap.String("key", objKey), zap.Error(err))
			continue
		}

		for i, msg := range raw {
			var rec rawRecord
			if err := json.Unmarshal(msg, &rec); err != nil {
				r.logger.Warn("skipping malformed usage record",
					zap.String("key", objKey), zap.Int("index", i), zap.Error(err))
				continue
			}
			event, err := rec.toEvent()
			if err != nil {
				r.logger.Warn("skipping malformed usage record",
					zap.String("key", objKey), zap.Int("index", i), zap.Error(err))
				continue
			}
			events = append(events, event)
		}
	}

	r.logger.Info("read usage events",
		zap.String("prefix", prefix),
		zap.Int("objects", objects),
		zap.Int("events", len(events)))
	return events, nil
}
