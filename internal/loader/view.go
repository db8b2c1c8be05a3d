package loader

import (
	"time"

	"github.com/XavierBriggs/Tyche/pkg/models"
)

// State is the display state of a loader
type State string

const (
	StateIdle            State = "idle"
	StateLoading         State = "loading"
	StateReady           State = "ready"
	StateStaleRefreshing State = "stale_refreshing"
	StateFetchingRemote  State = "fetching_remote"
	StateError           State = "error"
)

// Source names where the displayed snapshot came from
type Source string

const (
	SourceNone   Source = ""
	SourceCache  Source = "cache"
	SourceRemote Source = "remote"
)

// View is what a consumer displays for one network
type View struct {
	NetworkID   int64
	State       State
	Source      Source
	Snapshot    models.MarketSnapshot
	Stats       models.ParseStats
	LastUpdated time.Time // zero when unknown
	Err         string
	Seq         uint64 // fetch sequence that produced this view, 0 for cache
	Superseded  bool   // set only on views returned for a discarded fetch
}

// HasData reports whether the view carries a snapshot to display
func (v View) HasData() bool {
	return len(v.Snapshot) > 0
}

// Loading reports whether a fetch is still outstanding for the view
func (v View) Loading() bool {
	switch v.State {
	case StateLoading, StateStaleRefreshing, StateFetchingRemote:
		return true
	default:
		return false
	}
}
