package contracts

import "context"

// Entry is one key/value pair written by Store.PutBatch
type Entry struct {
	Key   string
	Value []byte
}

// Store is a durable key-value store.
// PutBatch writes every entry or none of them.
type Store interface {
	Put(ctx context.Context, key string, value []byte) error
	PutBatch(ctx context.Context, entries []Entry) error

	// Get returns found=false with a nil error when the key is absent
	Get(ctx context.Context, key string) (value []byte, found bool, err error)

	Ping(ctx context.Context) error
	Close() error
}
