package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

// MarketSnapshot is the vendor markets payload: sport -> league id -> markets
type MarketSnapshot map[string]map[string][]MarketRecord

var (
	// ErrVendorError matches any *VendorError
	ErrVendorError = errors.New("vendor reported error")

	// ErrEmptySnapshot is returned when a payload decodes but holds no sports
	ErrEmptySnapshot = errors.New("empty market snapshot")

	// ErrNoMarkets is returned when a selection has nothing to pick from
	ErrNoMarkets = errors.New("no markets ending soon")
)

// VendorError is an `error` field found in a vendor or proxy JSON body
type VendorError struct {
	Message string
}

func (e *VendorError) Error() string {
	return e.Message
}

// Is lets errors.Is(err, ErrVendorError) match every VendorError
func (e *VendorError) Is(target error) bool {
	return target == ErrVendorError
}

// ParseStats summarizes what the parse boundary kept and dropped
type ParseStats struct {
	Sports   int
	Leagues  int
	Markets  int
	Rejected int
}

// ParseSnapshot decodes a vendor markets payload into typed records.
// A top-level `error` field makes the whole payload invalid. Entries that do
// not decode, have no game id or carry no odds are dropped and counted.
func ParseSnapshot(raw []byte) (MarketSnapshot, ParseStats, error) {
	var stats ParseStats

	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, stats, fmt.Errorf("decode snapshot: %w", err)
	}

	if msg, ok := top["error"]; ok && !isNull(msg) {
		return nil, stats, &VendorError{Message: errorText(msg)}
	}

	snapshot := make(MarketSnapshot, len(top))
	for sport, sportRaw := range top {
		if sport == "error" {
			continue
		}

		var leagues map[string]json.RawMessage
		if err := json.Unmarshal(sportRaw, &leagues); err != nil {
			stats.Rejected++
			continue
		}

		parsed := make(map[string][]MarketRecord, len(leagues))
		for leagueID, leagueRaw := range leagues {
			var entries []json.RawMessage
			if err := json.Unmarshal(leagueRaw, &entries); err != nil {
				stats.Rejected++
				continue
			}

			records := make([]MarketRecord, 0, len(entries))
			for _, entry := range entries {
				var rec MarketRecord
				if err := json.Unmarshal(entry, &rec); err != nil {
					stats.Rejected++
					continue
				}
				if rec.GameID == "" || len(rec.Odds) == 0 {
					stats.Rejected++
					continue
				}
				records = append(records, rec)
			}

			parsed[leagueID] = records
			stats.Leagues++
			stats.Markets += len(records)
		}

		snapshot[sport] = parsed
		stats.Sports++
	}

	if len(snapshot) == 0 {
		return nil, stats, ErrEmptySnapshot
	}

	return snapshot, stats, nil
}

// CheckVendorError returns a *VendorError when body is a JSON object with an
// `error` field, nil otherwise
func CheckVendorError(body []byte) error {
	var probe struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil
	}
	if len(probe.Error) == 0 || isNull(probe.Error) {
		return nil
	}
	return &VendorError{Message: errorText(probe.Error)}
}

// TotalMarkets counts markets across all sports except futures
func (s MarketSnapshot) TotalMarkets() int {
	total := 0
	for sport, leagues := range s {
		if sport == FuturesSport {
			continue
		}
		for _, markets := range leagues {
			total += len(markets)
		}
	}
	return total
}

// Sports returns the sport names in the snapshot, futures included, sorted
func (s MarketSnapshot) Sports() []string {
	sports := make([]string, 0, len(s))
	for sport := range s {
		sports = append(sports, sport)
	}
	sort.Strings(sports)
	return sports
}

// All flattens the snapshot (futures excluded) in sport, league order
func (s MarketSnapshot) All() []MarketRecord {
	sports := make([]string, 0, len(s))
	for sport := range s {
		if sport != FuturesSport {
			sports = append(sports, sport)
		}
	}
	sort.Strings(sports)

	result := make([]MarketRecord, 0, s.TotalMarkets())
	for _, sport := range sports {
		leagues := s[sport]
		leagueIDs := make([]string, 0, len(leagues))
		for id := range leagues {
			leagueIDs = append(leagueIDs, id)
		}
		sort.Strings(leagueIDs)

		for _, id := range leagueIDs {
			result = append(result, leagues[id]...)
		}
	}
	return result
}

// TopByOdds returns up to n markets ordered by their best decimal price
func (s MarketSnapshot) TopByOdds(n int) []MarketRecord {
	all := s.All()
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].OddsScore() > all[j].OddsScore()
	})
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// EndingWithin returns markets maturing in [now, now+window], soonest first
func (s MarketSnapshot) EndingWithin(now time.Time, window time.Duration) []MarketRecord {
	end := now.Add(window)
	result := make([]MarketRecord, 0)
	for _, m := range s.All() {
		t, ok := m.MaturityTime()
		if !ok {
			continue
		}
		if !t.Before(now) && !t.After(end) {
			result = append(result, m)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		ti, _ := result[i].MaturityTime()
		tj, _ := result[j].MaturityTime()
		return ti.Before(tj)
	})
	return result
}

// Find looks a market up by game id and market type
func (s MarketSnapshot) Find(gameID string, typeID int) (MarketRecord, bool) {
	for _, leagues := range s {
		for _, markets := range leagues {
			for _, m := range markets {
				if m.GameID == gameID && m.TypeID == typeID {
					return m, true
				}
			}
		}
	}
	return MarketRecord{}, false
}

// PickLucky picks a random market and its best-priced position.
// intn must return a value in [0, n).
func PickLucky(markets []MarketRecord, intn func(n int) int) (MarketRecord, int, error) {
	if len(markets) == 0 {
		return MarketRecord{}, 0, ErrNoMarkets
	}
	market := markets[intn(len(markets))]
	return market, market.BestOddsIndex(), nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// errorText renders an error field that may be a string or any JSON value
func errorText(raw json.RawMessage) string {
	var msg string
	if err := json.Unmarshal(raw, &msg); err == nil {
		return msg
	}
	return string(bytes.TrimSpace(raw))
}
