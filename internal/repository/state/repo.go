// Package state persists the pipeline's progress document as a single JSON
// object in object storage, overwritten whole on every save.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/meterd/internal/domain"
	"github.com/kailas-cloud/meterd/internal/objstore"
)

// store is the consumer interface for state persistence (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Repository loads and saves the state document at a fixed object key.
type Repository struct {
	store  store
	key    string
	logger *zap.Logger
}

// New creates a state repository. key is the object key of the state document,
// e.g. "metering_state.json".
func New(s store, key string, logger *zap.Logger) *Repository {
	return &Repository{store: s, key: key, logger: logger}
}

// Load fetches the state document. A missing object yields an empty document:
// first run against a fresh bucket. A present but unparseable document wraps
// domain.ErrStateCorrupt and must abort the run; proceeding would double-bill.
func (r *Repository) Load(ctx context.Context) (domain.StateDocument, error) {
	data, err := r.store.Get(ctx, r.key)
	if err != nil {
		if errors.Is(err, objstore.ErrKeyNotFound) {
			r.logger.Info("state document not found, starting empty", zap.String("key", r.key))
			return domain.StateDocument{}, nil
		}
		return nil, fmt.Errorf("load state %s: %w", r.key, err)
	}

	var doc domain.StateDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse state %s: %w: %w", r.key, domain.ErrStateCorrupt, err)
	}
	if doc == nil {
		doc = domain.StateDocument{}
	}
	return doc, nil
}

// Save overwrites the state document atomically.
func (r *Repository) Save(ctx context.Context, doc domain.StateDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := r.store.Put(ctx, r.key, data, "application/json"); err != nil {
		return fmt.Errorf("save state %s: %w", r.key, err)
	}
	r.logger.Debug("state document saved", zap.String("key", r.key), zap.Int("bytes", len(data)))
	return nil
}
