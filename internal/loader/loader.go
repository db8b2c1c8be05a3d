// Package loader decides, per network, whether the market snapshot comes from
// the durable cache, the vendor or both.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/XavierBriggs/Tyche/adapters/overtime"
	"github.com/XavierBriggs/Tyche/internal/cache"
	"github.com/XavierBriggs/Tyche/internal/metrics"
	"github.com/XavierBriggs/Tyche/pkg/contracts"
	"github.com/XavierBriggs/Tyche/pkg/models"
	"github.com/golang/glog"
)

// DefaultThreshold is how long a cached snapshot is served without a refresh
const DefaultThreshold = 5 * time.Minute

// ErrSuperseded is returned for a fetch whose result was discarded because a
// newer fetch started
var ErrSuperseded = errors.New("fetch superseded by a newer request")

// ErrNotLoaded is returned by Refresh before any network was loaded
var ErrNotLoaded = errors.New("no network loaded")

// Observer receives every view transition
type Observer func(View)

// Option configures a Loader
type Option func(*Loader)

// WithThreshold sets the staleness threshold
func WithThreshold(d time.Duration) Option {
	return func(l *Loader) {
		l.threshold = d
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(l *Loader) {
		l.now = now
	}
}

// WithMetrics attaches a metrics collector
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Loader) {
		l.metrics = m
	}
}

// Loader serves one network at a time. Load switches network; Refresh
// re-fetches the current one.
type Loader struct {
	vendor    contracts.MarketsSource
	cache     *cache.Service
	threshold time.Duration
	now       func() time.Time
	metrics   *metrics.Metrics

	mu        sync.Mutex
	view      View
	seq       uint64
	inflight  bool
	cancel    context.CancelFunc
	observers []Observer

	// persistMu orders cache writes so a superseded fetch never lands after
	// a newer one
	persistMu sync.Mutex

	wg sync.WaitGroup
}

// New creates a loader in the idle state
func New(vendor contracts.MarketsSource, cacheSvc *cache.Service, opts ...Option) *Loader {
	l := &Loader{
		vendor:    vendor,
		cache:     cacheSvc,
		threshold: DefaultThreshold,
		now:       time.Now,
		view:      View{State: StateIdle},
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Subscribe registers an observer. Observers run synchronously on the
// goroutine that caused the transition and must not call back into the loader.
func (l *Loader) Subscribe(o Observer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, o)
}

// View returns the current display state
func (l *Loader) View() View {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.view
}

// Threshold returns the staleness threshold
func (l *Loader) Threshold() time.Duration {
	return l.threshold
}

// Load shows the markets of a network. A fresh cache entry is shown with no
// remote call. A stale entry is shown at once and refreshed in the
// background. Anything else is fetched before returning.
func (l *Loader) Load(ctx context.Context, networkID int64) (View, error) {
	l.mu.Lock()
	if l.inflight && l.view.NetworkID == networkID {
		// A fetch for this network is already running; join it
		v := l.view
		l.mu.Unlock()
		return v, nil
	}
	if l.view.NetworkID != networkID {
		l.supersedeLocked()
	}
	l.setLocked(l.transition(networkID, StateLoading))
	l.mu.Unlock()

	entry, ok := l.cache.Read(ctx, networkID)
	if ok {
		snapshot, stats, err := models.ParseSnapshot(entry.Raw)
		if err == nil {
			return l.serveCached(ctx, networkID, entry, snapshot, stats), nil
		}
		glog.Warningf("[Loader] cached snapshot for network %d unusable, fetching: %v", networkID, err)
	}

	l.mu.Lock()
	if l.inflight || l.view.NetworkID != networkID {
		// Overtaken while reading the cache
		v := l.view
		l.mu.Unlock()
		return v, nil
	}
	seq, fetchCtx := l.beginFetchLocked(ctx, false)
	next := l.view
	next.State = StateFetchingRemote
	next.Seq = seq
	l.setLocked(next)
	l.mu.Unlock()

	return l.fetch(fetchCtx, networkID, seq)
}

// Refresh fetches the current network from the vendor, superseding any
// fetch in flight. It is the manual retry; nothing retries automatically.
func (l *Loader) Refresh(ctx context.Context) (View, error) {
	l.mu.Lock()
	if l.view.State == StateIdle {
		l.mu.Unlock()
		return View{State: StateIdle}, ErrNotLoaded
	}
	networkID := l.view.NetworkID
	seq, fetchCtx := l.beginFetchLocked(ctx, false)
	next := l.view
	next.State = StateFetchingRemote
	next.Err = ""
	next.Seq = seq
	l.setLocked(next)
	l.mu.Unlock()

	return l.fetch(fetchCtx, networkID, seq)
}

// Wait blocks until background fetches finish
func (l *Loader) Wait() {
	l.wg.Wait()
}

// Close cancels any fetch in flight and waits for it
func (l *Loader) Close() {
	l.mu.Lock()
	l.supersedeLocked()
	l.mu.Unlock()
	l.wg.Wait()
}

func (l *Loader) serveCached(ctx context.Context, networkID int64, entry cache.CachedSnapshot, snapshot models.MarketSnapshot, stats models.ParseStats) View {
	age, known := entry.Age(l.now())
	fresh := known && age <= l.threshold

	l.mu.Lock()
	if l.view.NetworkID != networkID || l.inflight {
		// Another Load or Refresh overtook this one
		v := l.view
		l.mu.Unlock()
		return v
	}

	next := View{
		NetworkID:   networkID,
		State:       StateReady,
		Source:      SourceCache,
		Snapshot:    snapshot,
		Stats:       stats,
		LastUpdated: entry.StoredAt,
	}

	if fresh {
		l.setLocked(next)
		l.mu.Unlock()
		l.metrics.UpdateSnapshot(networkID, snapshot.TotalMarkets(), stats.Rejected)
		return next
	}

	seq, fetchCtx := l.beginFetchLocked(ctx, true)
	next.State = StateStaleRefreshing
	next.Seq = seq
	l.setLocked(next)
	l.mu.Unlock()

	glog.Infof("[Loader] cached snapshot for network %d is %s old, refreshing in background", networkID, ageString(age, known))

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if _, err := l.fetch(fetchCtx, networkID, seq); err != nil && !errors.Is(err, ErrSuperseded) {
			glog.Warningf("[Loader] background refresh for network %d failed: %v", networkID, err)
		}
	}()

	return next
}

// beginFetchLocked supersedes any fetch in flight and returns the new
// sequence. Background fetches outlive the caller's context. Caller holds l.mu.
func (l *Loader) beginFetchLocked(ctx context.Context, background bool) (uint64, context.Context) {
	if background {
		ctx = context.WithoutCancel(ctx)
	}
	fetchCtx, cancel := context.WithCancel(ctx)

	l.supersedeLocked()
	l.cancel = cancel
	l.inflight = true
	return l.seq, fetchCtx
}

// finishLocked marks the current fetch as settled. Caller holds l.mu.
func (l *Loader) finishLocked() {
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.inflight = false
}

// supersedeLocked invalidates the fetch in flight, if any. Caller holds l.mu.
func (l *Loader) supersedeLocked() {
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.seq++
	l.inflight = false
}

// fetch performs one remote fetch and applies its result if seq is still
// the latest
func (l *Loader) fetch(ctx context.Context, networkID int64, seq uint64) (View, error) {
	raw, err := l.vendor.FetchMarkets(ctx, networkID)

	var (
		snapshot models.MarketSnapshot
		stats    models.ParseStats
	)
	if err == nil {
		snapshot, stats, err = models.ParseSnapshot(raw)
		if errors.Is(err, models.ErrEmptySnapshot) {
			// The vendor has nothing listed; that is a valid answer
			snapshot, err = models.MarketSnapshot{}, nil
		}
	}

	if err != nil {
		return l.fail(networkID, seq, err)
	}

	fetchedAt := l.now()

	// The sequence is rechecked under persistMu so a superseded response is
	// never written to the cache.
	l.persistMu.Lock()
	if !l.isLatest(seq) {
		l.persistMu.Unlock()
		return l.superseded(networkID, seq)
	}
	if werr := l.cache.Write(ctx, networkID, raw, fetchedAt); werr != nil {
		glog.Warningf("[Loader] persist snapshot for network %d: %v", networkID, werr)
	}
	l.persistMu.Unlock()

	l.mu.Lock()
	if l.seq != seq {
		l.mu.Unlock()
		return l.superseded(networkID, seq)
	}
	l.finishLocked()
	next := View{
		NetworkID:   networkID,
		State:       StateReady,
		Source:      SourceRemote,
		Snapshot:    snapshot,
		Stats:       stats,
		LastUpdated: fetchedAt,
		Seq:         seq,
	}
	l.setLocked(next)
	l.mu.Unlock()

	l.metrics.RecordFetch(networkID, "ok")
	l.metrics.UpdateSnapshot(networkID, snapshot.TotalMarkets(), stats.Rejected)
	if stats.Rejected > 0 {
		glog.Warningf("[Loader] network %d: dropped %d malformed market records", networkID, stats.Rejected)
	}
	glog.Infof("[Loader] network %d: loaded %d markets across %d sports", networkID, snapshot.TotalMarkets(), stats.Sports)

	return next, nil
}

// fail records a fetch error. Data already on display is kept.
func (l *Loader) fail(networkID int64, seq uint64, err error) (View, error) {
	l.mu.Lock()
	if l.seq != seq {
		l.mu.Unlock()
		return l.superseded(networkID, seq)
	}
	l.finishLocked()
	next := l.view
	next.State = StateError
	next.Err = errorMessage(err)
	next.Seq = seq
	l.setLocked(next)
	l.mu.Unlock()

	l.metrics.RecordFetch(networkID, "error")
	glog.Errorf("[Loader] fetch markets for network %d: %v", networkID, err)

	return next, fmt.Errorf("load markets for network %d: %w", networkID, err)
}

func (l *Loader) superseded(networkID int64, seq uint64) (View, error) {
	l.metrics.RecordSuperseded(networkID)
	glog.V(1).Infof("[Loader] discarded response %d for network %d", seq, networkID)

	v := l.View()
	v.Superseded = true
	return v, ErrSuperseded
}

func (l *Loader) isLatest(seq uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq == seq
}

// transition starts a new view for networkID. Data is kept across
// transitions within the same network and cleared on a network change.
func (l *Loader) transition(networkID int64, state State) View {
	if l.view.NetworkID == networkID && l.view.State != StateIdle {
		next := l.view
		next.State = state
		next.Err = ""
		return next
	}
	return View{NetworkID: networkID, State: state}
}

// setLocked stores a view and notifies observers. Caller holds l.mu.
func (l *Loader) setLocked(v View) {
	l.view = v
	for _, o := range l.observers {
		o(v)
	}
}

// errorMessage renders a fetch error the way it is shown to the bettor
func errorMessage(err error) string {
	var httpErr *overtime.HTTPError
	if errors.As(err, &httpErr) {
		return fmt.Sprintf("API request failed with status %d", httpErr.StatusCode)
	}
	var vendorErr *models.VendorError
	if errors.As(err, &vendorErr) {
		return vendorErr.Message
	}
	return err.Error()
}

func ageString(age time.Duration, known bool) string {
	if !known {
		return "of unknown age"
	}
	return age.Round(time.Second).String()
}
