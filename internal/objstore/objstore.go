// Package objstore defines the object storage contract the pipeline reads
// usage data from and persists state to. The s3 subpackage provides the AWS
// implementation; tests substitute in-memory fakes.
package objstore

import "context"

// Store is a minimal key/value object interface over a single bucket.
type Store interface {
	// List returns all object keys under prefix, in lexicographic order.
	List(ctx context.Context, prefix string) ([]string, error)
	// Get returns the object body. A missing key yields ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put overwrites the object at key with data.
	Put(ctx context.Context, key string, data []byte, contentType string) error
}
