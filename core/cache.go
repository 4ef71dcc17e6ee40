package core

import "context"

// Cache is a best-effort key/value store for read-side projections.
// It is never authoritative for balance decisions.
type Cache interface {
	// Get decodes the value stored under key into dest; found is false on a miss.
	Get(ctx context.Context, key string, dest interface{}) (found bool, err error)
	Set(ctx context.Context, key string, val interface{}) error
	DeletePrefix(ctx context.Context, prefix string) error
}
