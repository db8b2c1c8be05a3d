package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/XavierBriggs/Tyche/internal/store"
	"github.com/XavierBriggs/Tyche/pkg/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct {
	contracts.Store
	getErr error
	putErr error
}

func (f *failingStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, f.getErr
}

func (f *failingStore) PutBatch(ctx context.Context, entries []contracts.Entry) error {
	return f.putErr
}

func TestWriteThenRead(t *testing.T) {
	ctx := context.Background()
	svc := NewService(store.NewMemoryStore(), nil)

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, svc.Write(ctx, 10, []byte(`{"Soccer":{}}`), at))

	entry, ok := svc.Read(ctx, 10)
	require.True(t, ok)
	assert.Equal(t, `{"Soccer":{}}`, string(entry.Raw))
	assert.True(t, at.Equal(entry.StoredAt))

	age, known := entry.Age(at.Add(90 * time.Second))
	assert.True(t, known)
	assert.Equal(t, 90*time.Second, age)
}

func TestKeysAreScopedPerNetwork(t *testing.T) {
	ctx := context.Background()
	svc := NewService(store.NewMemoryStore(), nil)

	require.NoError(t, svc.Write(ctx, 10, []byte(`{"op":1}`), time.Now()))

	_, ok := svc.Read(ctx, 8453)
	assert.False(t, ok)

	assert.Equal(t, "overtime-markets:10", MarketsKey(10))
	assert.Equal(t, "overtime-markets-timestamp:10", TimestampKey(10))
}

func TestReadWithoutTimestamp(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	require.NoError(t, mem.Put(ctx, MarketsKey(10), []byte(`{"Soccer":{}}`)))

	entry, ok := NewService(mem, nil).Read(ctx, 10)
	require.True(t, ok)
	assert.True(t, entry.StoredAt.IsZero())

	_, known := entry.Age(time.Now())
	assert.False(t, known)
}

func TestReadBadTimestamp(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	require.NoError(t, mem.Put(ctx, MarketsKey(10), []byte(`{}`)))
	require.NoError(t, mem.Put(ctx, TimestampKey(10), []byte("yesterday")))

	entry, ok := NewService(mem, nil).Read(ctx, 10)
	require.True(t, ok)
	assert.True(t, entry.StoredAt.IsZero())
}

func TestReadFailureIsMiss(t *testing.T) {
	svc := NewService(&failingStore{getErr: errors.New("connection refused")}, nil)

	_, ok := svc.Read(context.Background(), 10)
	assert.False(t, ok)
}

func TestWriteFailureIsReturned(t *testing.T) {
	svc := NewService(&failingStore{putErr: errors.New("quota exceeded")}, nil)

	err := svc.Write(context.Background(), 10, []byte(`{}`), time.Now())
	assert.Error(t, err)
}
