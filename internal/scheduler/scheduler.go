package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/XavierBriggs/Tyche/internal/loader"
	"github.com/XavierBriggs/Tyche/internal/registry"
	"github.com/XavierBriggs/Tyche/pkg/contracts"
	"github.com/golang/glog"
)

// Scheduler keeps the markets snapshot of every registered network loaded
type Scheduler struct {
	networks      *registry.NetworkRegistry
	loaders       *loader.Manager
	jitterSeconds int

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler creates a new refresh scheduler
func NewScheduler(networks *registry.NetworkRegistry, loaders *loader.Manager, jitterSeconds int) *Scheduler {
	return &Scheduler{
		networks:      networks,
		loaders:       loaders,
		jitterSeconds: jitterSeconds,
		stopChan:      make(chan struct{}),
	}
}

// Start begins refreshing every registered network
func (s *Scheduler) Start(ctx context.Context) error {
	networks := s.networks.GetAll()
	if len(networks) == 0 {
		return fmt.Errorf("no networks registered")
	}

	for _, network := range networks {
		s.wg.Add(1)
		go func(network contracts.NetworkModule) {
			defer s.wg.Done()
			s.pollNetwork(ctx, network)
		}(network)

		fmt.Printf("✓ Started refreshing %s (every %v)\n", network.GetDisplayName(), network.GetRefreshInterval())
	}

	return nil
}

// Stop gracefully shuts down the scheduler
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}

// pollNetwork loads one network immediately, then again every interval.
// Each Load serves the cache while it is fresh and refreshes it once stale.
// Nothing is reloaded while the network shows a fetch error.
func (s *Scheduler) pollNetwork(ctx context.Context, network contracts.NetworkModule) {
	l := s.loaders.Get(network.GetNetworkID())

	s.load(ctx, l, network)

	timer := time.NewTimer(addJitter(network.GetRefreshInterval(), s.jitterSeconds))
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			if v := l.View(); v.NetworkID == network.GetNetworkID() && v.State == loader.StateError {
				// A failed fetch waits for a manual Refresh
				glog.V(1).Infof("[%s] skipping reload after error: %s", network.GetDisplayName(), v.Err)
			} else {
				s.load(ctx, l, network)
			}
			timer.Reset(addJitter(network.GetRefreshInterval(), s.jitterSeconds))

		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) load(ctx context.Context, l *loader.Loader, network contracts.NetworkModule) {
	start := time.Now()
	view, err := l.Load(ctx, network.GetNetworkID())
	switch {
	case errors.Is(err, loader.ErrSuperseded):
		glog.V(1).Infof("[%s] load superseded", network.GetDisplayName())
	case err != nil:
		glog.Warningf("[%s] load error: %v", network.GetDisplayName(), err)
	default:
		glog.V(1).Infof("[%s] load complete: state=%s source=%s markets=%d in %v",
			network.GetDisplayName(), view.State, view.Source, view.Snapshot.TotalMarkets(), time.Since(start))
	}
}

// addJitter adds random jitter to prevent synchronization
func addJitter(duration time.Duration, jitterSeconds int) time.Duration {
	if jitterSeconds <= 0 {
		return duration
	}

	jitter := time.Duration(rand.Intn(jitterSeconds)) * time.Second
	return duration + jitter
}
