package loader

import (
	"time"

	"github.com/XavierBriggs/Tyche/pkg/models"
)

const (
	// TopMarketsLimit is the size of the best-odds list
	TopMarketsLimit = 12

	// EndingSoonWindow bounds the ending soon list
	EndingSoonWindow = time.Hour
)

// Summary is the JSON form of a view
type Summary struct {
	NetworkID    int64                 `json:"networkId"`
	State        State                 `json:"state"`
	Source       Source                `json:"source,omitempty"`
	LastUpdated  *time.Time            `json:"lastUpdated,omitempty"`
	Error        string                `json:"error,omitempty"`
	TotalMarkets int                   `json:"totalMarkets"`
	Sports       []string              `json:"sports"`
	Rejected     int                   `json:"rejected,omitempty"`
	TopMarkets   []models.MarketRecord `json:"topMarkets"`
	EndingSoon   []models.MarketRecord `json:"endingSoon"`
}

// Summarize renders the view for display at now
func (v View) Summarize(now time.Time) Summary {
	s := Summary{
		NetworkID:    v.NetworkID,
		State:        v.State,
		Source:       v.Source,
		Error:        v.Err,
		TotalMarkets: v.Snapshot.TotalMarkets(),
		Sports:       v.Snapshot.Sports(),
		Rejected:     v.Stats.Rejected,
		TopMarkets:   v.Snapshot.TopByOdds(TopMarketsLimit),
		EndingSoon:   v.Snapshot.EndingWithin(now, EndingSoonWindow),
	}
	if !v.LastUpdated.IsZero() {
		t := v.LastUpdated
		s.LastUpdated = &t
	}
	return s
}
