package models

import (
	"strconv"
	"strings"
	"time"
)

// Position indexes an outcome inside MarketRecord.Odds
const (
	PositionHome = 0
	PositionAway = 1
	PositionDraw = 2
)

// FuturesSport is excluded from market counts and flattened views
const FuturesSport = "Futures"

// MarketRecord is a single vendor market after the parse boundary.
// Only the fields the quote and display paths read are typed.
type MarketRecord struct {
	GameID            string               `json:"gameId"`
	Sport             string               `json:"sport"`
	LeagueID          int                  `json:"leagueId"`
	SubLeagueID       int                  `json:"subLeagueId"`
	LeagueName        string               `json:"leagueName,omitempty"`
	TournamentName    string               `json:"tournamentName,omitempty"`
	TypeID            int                  `json:"typeId"`
	Type              string               `json:"type,omitempty"`
	Maturity          int64                `json:"maturity"`
	MaturityDate      string               `json:"maturityDate,omitempty"`
	Status            int                  `json:"status"`
	Line              float64              `json:"line"`
	HomeTeam          string               `json:"homeTeam"`
	AwayTeam          string               `json:"awayTeam"`
	IsOpen            bool                 `json:"isOpen"`
	IsPaused          bool                 `json:"isPaused"`
	IsResolved        bool                 `json:"isResolved"`
	IsCancelled       bool                 `json:"isCancelled"`
	Odds              []Odds               `json:"odds"`
	Proof             []string             `json:"proof"`
	CombinedPositions [][]CombinedPosition `json:"combinedPositions"`
	PlayerProps       *PlayerProps         `json:"playerProps,omitempty"`
}

// CombinedPosition links a position to a parent market (same game parlays)
type CombinedPosition struct {
	TypeID   int     `json:"typeId"`
	Position int     `json:"position"`
	Line     float64 `json:"line"`
}

// PlayerProps identifies the player of a player prop market
type PlayerProps struct {
	PlayerID   int    `json:"playerId"`
	PlayerName string `json:"playerName,omitempty"`
}

// MaturityTime returns when the market matures.
// maturityDate wins over the unix maturity field when both are present.
func (m MarketRecord) MaturityTime() (time.Time, bool) {
	if m.MaturityDate != "" {
		if t, err := time.Parse(time.RFC3339, m.MaturityDate); err == nil {
			return t, true
		}
	}
	if m.Maturity > 0 {
		return time.Unix(m.Maturity, 0).UTC(), true
	}
	return time.Time{}, false
}

// BestOddsIndex returns the outcome index with the highest decimal price
func (m MarketRecord) BestOddsIndex() int {
	best := 0
	bestVal := -1.0
	for i, o := range m.Odds {
		if v, ok := o.DecimalValue(); ok && v > bestVal {
			bestVal = v
			best = i
		}
	}
	return best
}

// OddsScore is the best decimal price on the market, or -1 when no outcome is priced
func (m MarketRecord) OddsScore() float64 {
	score := -1.0
	for _, o := range m.Odds {
		if v, ok := o.DecimalValue(); ok && v > score {
			score = v
		}
	}
	return score
}

// HasDraw reports whether the market is three-way
func (m MarketRecord) HasDraw() bool {
	return len(m.Odds) > 2
}

// PositionLabel names an outcome the way it is shown to the bettor
func (m MarketRecord) PositionLabel(position int) string {
	switch position {
	case PositionHome:
		return m.HomeTeam
	case PositionAway:
		return m.AwayTeam
	case PositionDraw:
		return "Draw"
	default:
		return ""
	}
}

// Key identifies a market inside a snapshot: game, market type and line
func (m MarketRecord) Key() string {
	var b strings.Builder
	b.WriteString(m.GameID)
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(m.TypeID))
	b.WriteByte(':')
	b.WriteString(strconv.FormatFloat(m.Line, 'f', -1, 64))
	if m.PlayerProps != nil {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(m.PlayerProps.PlayerID))
	}
	return b.String()
}
