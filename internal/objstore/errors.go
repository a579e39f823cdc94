package objstore

import "errors"

// Sentinel errors for object storage operations.
var (
	ErrKeyNotFound = errors.New("objstore: key not found")
)

// Op constants map to S3 API operation names for error context.
const (
	OpList = "ListObjectsV2"
	OpGet  = "GetObject"
	OpPut  = "PutObject"
)

// Error wraps an underlying error with the operation and object key for
// diagnostics.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string { return e.Op + " " + e.Key + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
