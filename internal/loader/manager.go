package loader

import (
	"sync"

	"github.com/XavierBriggs/Tyche/internal/cache"
	"github.com/XavierBriggs/Tyche/pkg/contracts"
)

// Manager owns one Loader per network so concurrent consumers of different
// networks never supersede each other
type Manager struct {
	vendor    contracts.MarketsSource
	cache     *cache.Service
	opts      []Option
	observers []Observer

	loaders map[int64]*Loader
	mu      sync.Mutex
}

// NewManager creates a manager; opts apply to every loader it creates
func NewManager(vendor contracts.MarketsSource, cacheSvc *cache.Service, opts ...Option) *Manager {
	return &Manager{
		vendor:  vendor,
		cache:   cacheSvc,
		opts:    opts,
		loaders: make(map[int64]*Loader),
	}
}

// Subscribe registers an observer on every current and future loader
func (m *Manager) Subscribe(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.observers = append(m.observers, o)
	for _, l := range m.loaders {
		l.Subscribe(o)
	}
}

// Get returns the loader of a network, creating it on first use
func (m *Manager) Get(networkID int64) *Loader {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.loaders[networkID]; ok {
		return l
	}

	l := New(m.vendor, m.cache, m.opts...)
	for _, o := range m.observers {
		l.Subscribe(o)
	}
	m.loaders[networkID] = l
	return l
}

// Close stops every loader
func (m *Manager) Close() {
	m.mu.Lock()
	loaders := make([]*Loader, 0, len(m.loaders))
	for _, l := range m.loaders {
		loaders = append(loaders, l)
	}
	m.mu.Unlock()

	for _, l := range loaders {
		l.Close()
	}
}
