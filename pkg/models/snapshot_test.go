package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func priced(gameID string, decimals ...float64) MarketRecord {
	odds := make([]Odds, 0, len(decimals))
	for _, d := range decimals {
		odds = append(odds, Odds{Decimal: d})
	}
	return MarketRecord{GameID: gameID, Odds: odds}
}

func maturing(gameID string, at time.Time) MarketRecord {
	m := priced(gameID, 1.9, 1.9)
	m.Maturity = at.Unix()
	return m
}

func TestParseSnapshot_DropsInvalidRecords(t *testing.T) {
	raw := []byte(`{
		"Soccer": {"100": [
			{"gameId": "0x1", "odds": [{"decimal": 1.5}, {"decimal": 2.6}]},
			{"gameId": "", "odds": [{"decimal": 2}]},
			{"gameId": "0x3", "odds": []},
			{"gameId": 5, "odds": [{"decimal": 2}]}
		]},
		"Futures": {"7": [{"gameId": "0xf", "odds": [{"decimal": 3}]}]}
	}`)

	snapshot, stats, err := ParseSnapshot(raw)
	require.NoError(t, err)

	assert.Equal(t, ParseStats{Sports: 2, Leagues: 2, Markets: 2, Rejected: 3}, stats)
	require.Len(t, snapshot["Soccer"]["100"], 1)
	assert.Equal(t, "0x1", snapshot["Soccer"]["100"][0].GameID)
	assert.Len(t, snapshot["Futures"]["7"], 1)
}

func TestParseSnapshot_MalformedSportAndLeague(t *testing.T) {
	raw := []byte(`{
		"Soccer": [1, 2],
		"Tennis": {"9": {"not": "a list"}, "10": [{"gameId": "0x1", "odds": [{"american": 120}]}]}
	}`)

	snapshot, stats, err := ParseSnapshot(raw)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Rejected)
	assert.Equal(t, 1, stats.Sports)
	assert.NotContains(t, snapshot, "Soccer")
	assert.Len(t, snapshot["Tennis"]["10"], 1)
}

func TestParseSnapshot_ErrorField(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		msg  string
	}{
		{"string", `{"error": "Network not supported"}`, "Network not supported"},
		{"object", `{"error": {"code": 500}}`, `{"code": 500}`},
		{"alongside data", `{"error": "stale", "Soccer": {"1": []}}`, "stale"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseSnapshot([]byte(tt.raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrVendorError))

			var vendorErr *VendorError
			require.True(t, errors.As(err, &vendorErr))
			assert.Equal(t, tt.msg, vendorErr.Message)
		})
	}
}

func TestParseSnapshot_NullErrorIsNotAnError(t *testing.T) {
	raw := []byte(`{"error": null, "Soccer": {"100": [{"gameId": "0x1", "odds": [{"decimal": 1.5}]}]}}`)

	snapshot, stats, err := ParseSnapshot(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"Soccer"}, snapshot.Sports())
	assert.Equal(t, 1, stats.Markets)
}

func TestParseSnapshot_Empty(t *testing.T) {
	for _, raw := range []string{`{}`, `{"error": null}`, `{"Soccer": "nope"}`} {
		_, _, err := ParseSnapshot([]byte(raw))
		assert.ErrorIs(t, err, ErrEmptySnapshot, raw)
	}
}

func TestParseSnapshot_NotJSON(t *testing.T) {
	_, _, err := ParseSnapshot([]byte(`<html>502 Bad Gateway</html>`))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrEmptySnapshot))
	assert.False(t, errors.Is(err, ErrVendorError))
}

func TestCheckVendorError(t *testing.T) {
	tests := []struct {
		body string
		msg  string // empty means no error
	}{
		{`{"error": "Invalid address"}`, "Invalid address"},
		{`{"error": 404}`, "404"},
		{`{"error": null}`, ""},
		{`{"open": []}`, ""},
		{`[1, 2, 3]`, ""},
		{`"error"`, ""},
		{`not json`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			err := CheckVendorError([]byte(tt.body))
			if tt.msg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.msg, err.Error())
		})
	}
}

func TestTotalMarketsAndAll_ExcludeFutures(t *testing.T) {
	snapshot := MarketSnapshot{
		"Soccer": {
			"200": {priced("0xs3", 2)},
			"100": {priced("0xs1", 2), priced("0xs2", 2)},
		},
		"Basketball": {"5": {priced("0xb1", 2)}},
		FuturesSport: {"9": {priced("0xf1", 50), priced("0xf2", 60)}},
	}

	assert.Equal(t, 4, snapshot.TotalMarkets())

	ids := make([]string, 0)
	for _, m := range snapshot.All() {
		ids = append(ids, m.GameID)
	}
	assert.Equal(t, []string{"0xb1", "0xs1", "0xs2", "0xs3"}, ids)

	assert.Equal(t, []string{"Basketball", FuturesSport, "Soccer"}, snapshot.Sports())
}

func TestTopByOdds(t *testing.T) {
	markets := make([]MarketRecord, 0, 15)
	for i := 0; i < 15; i++ {
		markets = append(markets, priced("0xd"+string(rune('a'+i)), 1.1+float64(i)*0.1))
	}
	american := MarketRecord{GameID: "0xam", Odds: []Odds{{American: 400}, {American: -500}}}
	markets = append(markets, american)

	snapshot := MarketSnapshot{
		"Soccer":     {"1": markets},
		FuturesSport: {"2": {priced("0xfut", 100)}},
	}

	top := snapshot.TopByOdds(12)
	require.Len(t, top, 12)
	assert.Equal(t, "0xam", top[0].GameID, "american +400 converts to 5.0")
	for i := 1; i < len(top); i++ {
		assert.GreaterOrEqual(t, top[i-1].OddsScore(), top[i].OddsScore())
		assert.NotEqual(t, "0xfut", top[i].GameID)
	}

	assert.Len(t, snapshot.TopByOdds(100), 16)
}

func TestEndingWithin(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	snapshot := MarketSnapshot{"Soccer": {"1": {
		maturing("0xend", now.Add(time.Hour)),
		maturing("0xlate", now.Add(time.Hour+time.Second)),
		maturing("0xnow", now),
		maturing("0xpast", now.Add(-time.Second)),
		maturing("0xmid", now.Add(20*time.Minute)),
		priced("0xundated", 2, 2),
	}}}

	ids := make([]string, 0)
	for _, m := range snapshot.EndingWithin(now, time.Hour) {
		ids = append(ids, m.GameID)
	}
	assert.Equal(t, []string{"0xnow", "0xmid", "0xend"}, ids)
}

func TestFind(t *testing.T) {
	total := priced("0xg", 1.9, 1.9)
	total.TypeID = 10001
	snapshot := MarketSnapshot{"Soccer": {"1": {priced("0xg", 2, 3), total}}}

	m, ok := snapshot.Find("0xg", 10001)
	require.True(t, ok)
	assert.Equal(t, 10001, m.TypeID)

	_, ok = snapshot.Find("0xg", 7)
	assert.False(t, ok)
}

func TestPickLucky(t *testing.T) {
	_, _, err := PickLucky(nil, func(n int) int { return 0 })
	assert.ErrorIs(t, err, ErrNoMarkets)

	markets := []MarketRecord{priced("0x1", 3, 1.2), priced("0x2", 1.5, 1.6, 4.0)}
	market, position, err := PickLucky(markets, func(n int) int {
		assert.Equal(t, 2, n)
		return 1
	})
	require.NoError(t, err)
	assert.Equal(t, "0x2", market.GameID)
	assert.Equal(t, PositionDraw, position)
}
