package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/XavierBriggs/Tyche/internal/cache"
	"github.com/XavierBriggs/Tyche/internal/loader"
	"github.com/XavierBriggs/Tyche/internal/registry"
	"github.com/XavierBriggs/Tyche/internal/store"
	"github.com/XavierBriggs/Tyche/networks/optimism"
	"github.com/XavierBriggs/Tyche/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFixture(t *testing.T, interval time.Duration) (*Scheduler, *testutil.MockVendorAdapter, *loader.Manager) {
	t.Helper()

	cfg := optimism.DefaultConfig()
	cfg.RefreshInterval = interval

	reg := registry.NewNetworkRegistry(optimism.NetworkID)
	require.NoError(t, reg.Register(optimism.NewModuleWithConfig(cfg)))

	vendor := &testutil.MockVendorAdapter{}
	// Zero threshold: every scheduled load finds the cache stale
	mgr := loader.NewManager(vendor, cache.NewService(store.NewMemoryStore(), nil), loader.WithThreshold(0))
	t.Cleanup(mgr.Close)

	return NewScheduler(reg, mgr, 0), vendor, mgr
}

func TestScheduler_InitialLoad(t *testing.T) {
	s, vendor, mgr := newFixture(t, time.Hour)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Eventually(t, func() bool {
		return mgr.Get(optimism.NetworkID).View().State == loader.StateReady
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, vendor.MarketCalls())
}

func TestScheduler_RefreshesOnInterval(t *testing.T) {
	s, vendor, _ := newFixture(t, 20*time.Millisecond)

	require.NoError(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool {
		return vendor.MarketCalls() >= 3
	}, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	s.Stop()
}

func TestScheduler_NoReloadAfterError(t *testing.T) {
	s, vendor, mgr := newFixture(t, 10*time.Millisecond)

	var healthy atomic.Bool
	vendor.FetchMarketsFunc = func(ctx context.Context, networkID int64) ([]byte, error) {
		if !healthy.Load() {
			return nil, errors.New("connection refused")
		}
		return testutil.DefaultSnapshotJSON(), nil
	}

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	l := mgr.Get(optimism.NetworkID)
	require.Eventually(t, func() bool {
		return l.View().State == loader.StateError
	}, time.Second, 5*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, vendor.MarketCalls(), "errors are not retried on the timer")

	healthy.Store(true)
	_, err := l.Refresh(context.Background())
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return vendor.MarketCalls() >= 4
	}, 2*time.Second, 5*time.Millisecond, "reloads resume after a manual refresh")
}

func TestScheduler_StopsOnContextCancel(t *testing.T) {
	s, _, _ := newFixture(t, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}

func TestScheduler_NoNetworks(t *testing.T) {
	vendor := &testutil.MockVendorAdapter{}
	mgr := loader.NewManager(vendor, cache.NewService(store.NewMemoryStore(), nil))
	defer mgr.Close()

	s := NewScheduler(registry.NewNetworkRegistry(optimism.NetworkID), mgr, 0)
	assert.Error(t, s.Start(context.Background()))
}

func TestAddJitter(t *testing.T) {
	assert.Equal(t, time.Minute, addJitter(time.Minute, 0))

	for i := 0; i < 20; i++ {
		d := addJitter(time.Minute, 5)
		assert.GreaterOrEqual(t, d, time.Minute)
		assert.Less(t, d, time.Minute+5*time.Second)
	}
}
