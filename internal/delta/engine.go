package delta

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/XavierBriggs/Tyche/pkg/models"
	"github.com/redis/go-redis/v9"
)

// ChangeType indicates the type of change detected
type ChangeType string

const (
	ChangeTypeNew           ChangeType = "new"
	ChangeTypeOddsOnly      ChangeType = "odds"
	ChangeTypeStatusOnly    ChangeType = "status"
	ChangeTypeOddsAndStatus ChangeType = "odds_and_status"
	ChangeTypeRemoved       ChangeType = "removed"
	ChangeTypeNone          ChangeType = "none"
)

// CachedMarket is the minimal market state kept for comparison
type CachedMarket struct {
	Odds     []float64 `json:"odds"`
	Status   int       `json:"status"`
	IsOpen   bool      `json:"is_open"`
	IsPaused bool      `json:"is_paused"`
}

// Delta represents a detected change on one market
type Delta struct {
	Key        string               `json:"key"`
	GameID     string               `json:"game_id"`
	TypeID     int                  `json:"type_id"`
	ChangeType ChangeType           `json:"change_type"`
	Market     *models.MarketRecord `json:"market,omitempty"` // nil for removed markets
	OldOdds    []float64            `json:"old_odds,omitempty"`
}

// Compare diffs two snapshots. Deltas are ordered by market key.
func Compare(old, current models.MarketSnapshot) []Delta {
	previous := make(map[string]models.MarketRecord)
	for _, m := range old.All() {
		previous[m.Key()] = m
	}

	deltas := make([]Delta, 0)
	seen := make(map[string]bool)

	for _, m := range current.All() {
		key := m.Key()
		seen[key] = true

		var cached *CachedMarket
		if prev, ok := previous[key]; ok {
			c := compact(prev)
			cached = &c
		}

		if d, changed := diff(key, m, cached); changed {
			deltas = append(deltas, d)
		}
	}

	for key, prev := range previous {
		if seen[key] {
			continue
		}
		deltas = append(deltas, Delta{
			Key:        key,
			GameID:     prev.GameID,
			TypeID:     prev.TypeID,
			ChangeType: ChangeTypeRemoved,
			OldOdds:    compact(prev).Odds,
		})
	}

	sort.Slice(deltas, func(i, j int) bool {
		return deltas[i].Key < deltas[j].Key
	})
	return deltas
}

// Engine detects changes against market state kept in Redis, so deltas
// survive restarts and are shared between replicas
type Engine struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewEngine creates a new Redis-backed delta detection engine
func NewEngine(redisClient *redis.Client, cacheTTL time.Duration) *Engine {
	return &Engine{
		redis: redisClient,
		ttl:   cacheTTL,
	}
}

// DetectChanges compares markets against Redis and returns only deltas.
// Removed markets are not reported; their keys expire with the TTL.
func (e *Engine) DetectChanges(ctx context.Context, networkID int64, markets []models.MarketRecord) ([]Delta, error) {
	if len(markets) == 0 {
		return nil, nil
	}

	keys := make([]string, len(markets))
	for i, m := range markets {
		keys[i] = e.buildKey(networkID, m)
	}

	cachedValues, err := e.redis.MGet(ctx, keys...).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	deltas := make([]Delta, 0, len(markets))
	for i, m := range markets {
		if d, changed := diff(m.Key(), m, decodeCached(cachedValues[i])); changed {
			deltas = append(deltas, d)
		}
	}

	return deltas, nil
}

// UpdateCache writes the current market state to Redis (write-through)
func (e *Engine) UpdateCache(ctx context.Context, networkID int64, markets []models.MarketRecord) error {
	if len(markets) == 0 {
		return nil
	}

	pipe := e.redis.Pipeline()

	for _, m := range markets {
		data, err := json.Marshal(compact(m))
		if err != nil {
			return fmt.Errorf("marshal cached market: %w", err)
		}
		pipe.Set(ctx, e.buildKey(networkID, m), data, e.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline exec: %w", err)
	}

	return nil
}

// buildKey creates a Redis key for a market
// Format: markets:current:{network_id}:{game_id}:{type_id}:{line}[:{player_id}]
func (e *Engine) buildKey(networkID int64, m models.MarketRecord) string {
	return fmt.Sprintf("markets:current:%d:%s", networkID, m.Key())
}

func decodeCached(value interface{}) *CachedMarket {
	cachedStr, ok := value.(string)
	if !ok {
		// Missing or corrupt, treat as new
		return nil
	}

	var cached CachedMarket
	if err := json.Unmarshal([]byte(cachedStr), &cached); err != nil {
		return nil
	}
	return &cached
}

func compact(m models.MarketRecord) CachedMarket {
	odds := make([]float64, len(m.Odds))
	for i, o := range m.Odds {
		v, _ := o.DecimalValue()
		odds[i] = v
	}
	return CachedMarket{
		Odds:     odds,
		Status:   m.Status,
		IsOpen:   m.IsOpen,
		IsPaused: m.IsPaused,
	}
}

// diff compares a market against its cached state
func diff(key string, m models.MarketRecord, cached *CachedMarket) (Delta, bool) {
	d := Delta{
		Key:    key,
		GameID: m.GameID,
		TypeID: m.TypeID,
		Market: &m,
	}

	if cached == nil {
		d.ChangeType = ChangeTypeNew
		return d, true
	}

	current := compact(m)
	oddsChanged := oddsChanged(current.Odds, cached.Odds)
	statusChanged := current.Status != cached.Status ||
		current.IsOpen != cached.IsOpen ||
		current.IsPaused != cached.IsPaused

	switch {
	case oddsChanged && statusChanged:
		d.ChangeType = ChangeTypeOddsAndStatus
	case oddsChanged:
		d.ChangeType = ChangeTypeOddsOnly
	case statusChanged:
		d.ChangeType = ChangeTypeStatusOnly
	default:
		return Delta{}, false
	}

	d.OldOdds = cached.Odds
	return d, true
}

// oddsChanged checks if any price moved
func oddsChanged(current, old []float64) bool {
	if len(current) != len(old) {
		return true
	}

	// Compare with small epsilon for float precision
	const epsilon = 0.0001
	for i := range current {
		diff := current[i] - old[i]
		if diff < 0 {
			diff = -diff
		}
		if diff > epsilon {
			return true
		}
	}
	return false
}
