package state

import (
	"context"

	"github.com/rotisserie/eris"
)

// ErrNotFound is returned by PrimitiveStorage implementations when a key has
// no value.
var ErrNotFound = eris.New("key not found")

// PrimitiveStorage is the key/value layer the account store is built on.
// Two implementations exist: an in-memory map (the default) and a redis
// backend. Mutating calls made between StartTransaction and EndTransaction
// are applied atomically.
type PrimitiveStorage interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	Has(ctx context.Context, key string) (bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Keys returns every key that starts with prefix, in no particular
	// order. Callers that need determinism sort the result themselves.
	Keys(ctx context.Context, prefix string) ([]string, error)
	StartTransaction(ctx context.Context) (Transaction, error)
	Close(ctx context.Context) error
}

// Transaction buffers writes until EndTransaction applies them atomically.
type Transaction interface {
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	EndTransaction(ctx context.Context) error
}
