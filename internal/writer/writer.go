// Package writer turns accepted market snapshots into deltas and fans them
// out: Redis Streams, the Postgres odds history and in-process sinks.
package writer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/XavierBriggs/Tyche/internal/delta"
	"github.com/XavierBriggs/Tyche/internal/loader"
	"github.com/XavierBriggs/Tyche/pkg/models"
	"github.com/golang/glog"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

const (
	defaultQueueSize = 64
	streamKeyFormat  = "markets.deltas.%d" // markets.deltas.10
)

// Sink receives every view and every non-empty delta batch
type Sink interface {
	PublishView(v loader.View)
	PublishDeltas(networkID int64, deltas []delta.Delta)
}

// Writer consumes loader views on a single goroutine. db, redis and the
// delta engine are all optional.
type Writer struct {
	db     *sql.DB
	redis  *redis.Client
	engine *delta.Engine
	sinks  []Sink

	views chan loader.View
	last  map[int64]models.MarketSnapshot // last remote snapshot per network

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// StreamMessage represents a message published to Redis Stream
type StreamMessage struct {
	NetworkID  int64            `json:"network_id"`
	Key        string           `json:"key"`
	GameID     string           `json:"game_id"`
	TypeID     int              `json:"type_id"`
	Sport      string           `json:"sport,omitempty"`
	ChangeType delta.ChangeType `json:"change_type"`
	Odds       []float64        `json:"odds,omitempty"`
	OldOdds    []float64        `json:"old_odds,omitempty"`
	IsOpen     bool             `json:"is_open"`
	FetchedAt  time.Time        `json:"fetched_at"`
}

// NewWriter creates a writer. A nil redis client disables the stream and the
// Redis delta engine, deltas are then computed against the previous snapshot
// held in memory.
func NewWriter(db *sql.DB, redisClient *redis.Client, cacheTTL time.Duration, sinks ...Sink) *Writer {
	w := &Writer{
		db:       db,
		redis:    redisClient,
		sinks:    sinks,
		views:    make(chan loader.View, defaultQueueSize),
		last:     make(map[int64]models.MarketSnapshot),
		stopChan: make(chan struct{}),
	}
	if redisClient != nil {
		w.engine = delta.NewEngine(redisClient, cacheTTL)
	}
	return w
}

// AddSink registers another sink. Call before Start.
func (w *Writer) AddSink(s Sink) {
	w.sinks = append(w.sinks, s)
}

// EnsureSchema creates the odds history table when a database is configured
func (w *Writer) EnsureSchema(ctx context.Context) error {
	if w.db == nil {
		return nil
	}

	query := `
		CREATE TABLE IF NOT EXISTS market_odds_history (
			id           BIGSERIAL PRIMARY KEY,
			network_id   BIGINT NOT NULL,
			market_key   TEXT NOT NULL,
			game_id      TEXT NOT NULL,
			type_id      INT NOT NULL,
			position     INT NOT NULL,
			decimal_odds DOUBLE PRECISION NOT NULL,
			change_type  TEXT NOT NULL,
			recorded_at  TIMESTAMPTZ NOT NULL
		)
	`
	if _, err := w.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create market_odds_history: %w", err)
	}
	return nil
}

// Observe queues a view. It never blocks: loaders call it while holding
// their lock, so a full queue drops the view.
func (w *Writer) Observe(v loader.View) {
	select {
	case w.views <- v:
	default:
		glog.Warningf("[Writer] queue full, dropping view for network %d (state=%s)", v.NetworkID, v.State)
	}
}

// Start begins consuming queued views
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case v := <-w.views:
				w.process(ctx, v)
			case <-w.stopChan:
				w.drain(ctx)
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop processes what is already queued and waits for the consumer to exit
func (w *Writer) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()
}

func (w *Writer) drain(ctx context.Context) {
	for {
		select {
		case v := <-w.views:
			w.process(ctx, v)
		default:
			return
		}
	}
}

// process executes the pipeline for one view: sinks → delta → history → stream
func (w *Writer) process(ctx context.Context, v loader.View) {
	for _, s := range w.sinks {
		s.PublishView(v)
	}

	if v.State != loader.StateReady {
		return
	}

	if v.Source == loader.SourceCache {
		// Cached data seeds the baseline, it never produces deltas
		if _, ok := w.last[v.NetworkID]; !ok {
			w.last[v.NetworkID] = v.Snapshot
		}
		return
	}
	if v.Source != loader.SourceRemote {
		return
	}

	start := time.Now()
	deltas, err := w.detect(ctx, v)
	if err != nil {
		glog.Errorf("[Writer] network %d: detect changes: %v", v.NetworkID, err)
		return
	}
	w.last[v.NetworkID] = v.Snapshot

	if len(deltas) == 0 {
		glog.V(1).Infof("[Writer] network %d: no changes", v.NetworkID)
		return
	}

	fetchedAt := v.LastUpdated
	if fetchedAt.IsZero() {
		fetchedAt = time.Now().UTC()
	}

	if err := w.insertOddsHistory(ctx, v.NetworkID, deltas, fetchedAt); err != nil {
		// Log but don't fail, the stream and sinks still get the batch
		glog.Errorf("[Writer] network %d: insert odds history: %v", v.NetworkID, err)
	}

	if err := w.publishToStream(ctx, v.NetworkID, deltas, fetchedAt); err != nil {
		glog.Errorf("[Writer] network %d: publish to stream: %v", v.NetworkID, err)
	}

	for _, s := range w.sinks {
		s.PublishDeltas(v.NetworkID, deltas)
	}

	glog.Infof("[Writer] network %d: %d deltas in %v", v.NetworkID, len(deltas), time.Since(start))
}

// detect diffs the view against Redis when available, otherwise against the
// previous snapshot in memory. Removed markets always come from the in-memory diff.
func (w *Writer) detect(ctx context.Context, v loader.View) ([]delta.Delta, error) {
	previous := w.last[v.NetworkID]

	if w.engine == nil {
		return delta.Compare(previous, v.Snapshot), nil
	}

	markets := v.Snapshot.All()
	deltas, err := w.engine.DetectChanges(ctx, v.NetworkID, markets)
	if err != nil {
		return nil, err
	}

	if previous != nil {
		for _, d := range delta.Compare(previous, v.Snapshot) {
			if d.ChangeType == delta.ChangeTypeRemoved {
				deltas = append(deltas, d)
			}
		}
	}

	if err := w.engine.UpdateCache(ctx, v.NetworkID, markets); err != nil {
		// Log but don't fail, cache will rebuild
		glog.Warningf("[Writer] network %d: update delta cache: %v", v.NetworkID, err)
	}

	return deltas, nil
}

// insertOddsHistory appends one row per priced outcome of every changed market
func (w *Writer) insertOddsHistory(ctx context.Context, networkID int64, deltas []delta.Delta, recordedAt time.Time) error {
	if w.db == nil {
		return nil
	}

	var (
		marketKeys  []string
		gameIDs     []string
		typeIDs     []int64
		positions   []int64
		decimals    []float64
		changeTypes []string
	)
	for _, d := range deltas {
		if d.Market == nil {
			continue
		}
		for pos, o := range d.Market.Odds {
			price, ok := o.DecimalValue()
			if !ok {
				continue
			}
			marketKeys = append(marketKeys, d.Key)
			gameIDs = append(gameIDs, d.GameID)
			typeIDs = append(typeIDs, int64(d.TypeID))
			positions = append(positions, int64(pos))
			decimals = append(decimals, price)
			changeTypes = append(changeTypes, string(d.ChangeType))
		}
	}
	if len(marketKeys) == 0 {
		return nil
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO market_odds_history (
			network_id, market_key, game_id, type_id, position,
			decimal_odds, change_type, recorded_at
		)
		SELECT $1, u.market_key, u.game_id, u.type_id, u.position,
		       u.decimal_odds, u.change_type, $2
		FROM UNNEST(
			$3::text[], $4::text[], $5::int[], $6::int[], $7::float8[], $8::text[]
		) AS u(market_key, game_id, type_id, position, decimal_odds, change_type)
	`

	if _, err := tx.ExecContext(ctx, query,
		networkID, recordedAt,
		pq.Array(marketKeys), pq.Array(gameIDs), pq.Array(typeIDs),
		pq.Array(positions), pq.Array(decimals), pq.Array(changeTypes),
	); err != nil {
		return fmt.Errorf("insert odds rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// publishToStream publishes deltas to the network's Redis Stream
func (w *Writer) publishToStream(ctx context.Context, networkID int64, deltas []delta.Delta, fetchedAt time.Time) error {
	if w.redis == nil {
		return nil
	}

	streamKey := fmt.Sprintf(streamKeyFormat, networkID)
	pipe := w.redis.Pipeline()

	for _, d := range deltas {
		msgJSON, err := json.Marshal(NewStreamMessage(networkID, d, fetchedAt))
		if err != nil {
			return fmt.Errorf("marshal stream message: %w", err)
		}

		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: streamKey,
			Values: map[string]interface{}{
				"data": msgJSON,
			},
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline exec for stream: %w", err)
	}
	return nil
}

// NewStreamMessage flattens a delta for the stream
func NewStreamMessage(networkID int64, d delta.Delta, fetchedAt time.Time) StreamMessage {
	msg := StreamMessage{
		NetworkID:  networkID,
		Key:        d.Key,
		GameID:     d.GameID,
		TypeID:     d.TypeID,
		ChangeType: d.ChangeType,
		OldOdds:    d.OldOdds,
		FetchedAt:  fetchedAt,
	}
	if d.Market != nil {
		msg.Sport = d.Market.Sport
		msg.IsOpen = d.Market.IsOpen
		msg.Odds = make([]float64, len(d.Market.Odds))
		for i, o := range d.Market.Odds {
			msg.Odds[i], _ = o.DecimalValue()
		}
	}
	return msg
}
