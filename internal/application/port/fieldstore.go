package port

import (
	"context"
	"time"
)

// FieldStore is the shared key-value store written by every worker.
// Keys follow the "<source>:<instrument>" schema (e.g. "bybit_spot:ETH").
type FieldStore interface {
	// MergeFields unions fields into the record at key, overwriting only the
	// named fields, and resets the record's expiry to ttl from now. The write
	// is atomic as a unit: concurrent merges to the same key from different
	// workers must not interleave field-by-field.
	MergeFields(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error

	// Read returns the full field mapping at key, or ok=false if the key is
	// absent or expired.
	Read(ctx context.Context, key string) (map[string]string, bool, error)

	// ListKeys returns all live keys with the given prefix.
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}
