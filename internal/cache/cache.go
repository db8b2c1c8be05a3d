// Package cache keeps the last fetched markets payload of each network
// together with the time it was stored.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/XavierBriggs/Tyche/internal/metrics"
	"github.com/XavierBriggs/Tyche/pkg/contracts"
	"github.com/golang/glog"
)

const (
	// StoreName is the logical name of the markets store
	StoreName = "OvertimeMarketsDB/markets"

	marketsKeyFormat   = "overtime-markets:%d"
	timestampKeyFormat = "overtime-markets-timestamp:%d"
)

// MarketsKey returns the snapshot key of a network
func MarketsKey(networkID int64) string {
	return fmt.Sprintf(marketsKeyFormat, networkID)
}

// TimestampKey returns the stored-at key of a network
func TimestampKey(networkID int64) string {
	return fmt.Sprintf(timestampKeyFormat, networkID)
}

// CachedSnapshot is a raw markets payload read back from the store
type CachedSnapshot struct {
	Raw      []byte
	StoredAt time.Time // zero when the timestamp is missing or unreadable
}

// Age returns how old the entry is. An entry without a timestamp is
// infinitely old.
func (c CachedSnapshot) Age(now time.Time) (time.Duration, bool) {
	if c.StoredAt.IsZero() {
		return 0, false
	}
	return now.Sub(c.StoredAt), true
}

// Service reads and writes market snapshots through a Store
type Service struct {
	store   contracts.Store
	metrics *metrics.Metrics
}

// NewService creates a cache service. m may be nil.
func NewService(store contracts.Store, m *metrics.Metrics) *Service {
	return &Service{store: store, metrics: m}
}

// Read returns the cached snapshot of a network. Store failures are logged
// and reported as a miss.
func (s *Service) Read(ctx context.Context, networkID int64) (CachedSnapshot, bool) {
	raw, found, err := s.store.Get(ctx, MarketsKey(networkID))
	if err != nil {
		glog.Warningf("[Cache] read markets for network %d: %v", networkID, err)
		s.metrics.RecordCacheRead("error")
		return CachedSnapshot{}, false
	}
	if !found || len(raw) == 0 {
		s.metrics.RecordCacheRead("miss")
		return CachedSnapshot{}, false
	}

	entry := CachedSnapshot{Raw: raw}

	ts, found, err := s.store.Get(ctx, TimestampKey(networkID))
	switch {
	case err != nil:
		glog.Warningf("[Cache] read timestamp for network %d: %v", networkID, err)
	case found:
		storedAt, perr := time.Parse(time.RFC3339Nano, string(ts))
		if perr != nil {
			glog.Warningf("[Cache] bad timestamp %q for network %d", string(ts), networkID)
		} else {
			entry.StoredAt = storedAt
		}
	}

	s.metrics.RecordCacheRead("hit")
	return entry, true
}

// Write stores a snapshot and its timestamp in one batch
func (s *Service) Write(ctx context.Context, networkID int64, raw []byte, at time.Time) error {
	err := s.store.PutBatch(ctx, []contracts.Entry{
		{Key: MarketsKey(networkID), Value: raw},
		{Key: TimestampKey(networkID), Value: []byte(at.UTC().Format(time.RFC3339Nano))},
	})
	s.metrics.RecordCacheWrite(err == nil)
	if err != nil {
		return fmt.Errorf("write markets cache: %w", err)
	}
	return nil
}
