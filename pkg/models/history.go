package models

import (
	"encoding/json"
	"fmt"
)

// UserHistory is a bettor's tickets grouped by lifecycle
type UserHistory struct {
	Open      []Ticket `json:"open"`
	Claimable []Ticket `json:"claimable"`
	Closed    []Ticket `json:"closed"`
}

// Ticket is one placed bet, possibly a parlay of several markets
type Ticket struct {
	ID              string         `json:"id"`
	Timestamp       int64          `json:"timestamp"`
	Collateral      string         `json:"collateral"`
	Account         string         `json:"account"`
	BuyInAmount     float64        `json:"buyInAmount"`
	Fees            float64        `json:"fees"`
	TotalQuote      float64        `json:"totalQuote"`
	Payout          float64        `json:"payout"`
	NumOfMarkets    int            `json:"numOfMarkets"`
	Expiry          int64          `json:"expiry"`
	IsResolved      bool           `json:"isResolved"`
	IsPaused        bool           `json:"isPaused"`
	IsCancelled     bool           `json:"isCancelled"`
	IsLost          bool           `json:"isLost"`
	IsUserTheWinner bool           `json:"isUserTheWinner"`
	IsExercisable   bool           `json:"isExercisable"`
	IsClaimable     bool           `json:"isClaimable"`
	IsOpen          bool           `json:"isOpen"`
	FinalPayout     float64        `json:"finalPayout"`
	IsLive          bool           `json:"isLive"`
	SportMarkets    []TicketMarket `json:"sportMarkets"`
}

// TicketMarket is one leg of a placed ticket
type TicketMarket struct {
	GameID         string       `json:"gameId"`
	Sport          string       `json:"sport"`
	LeagueID       int          `json:"leagueId"`
	SubLeagueID    int          `json:"subLeagueId"`
	LeagueName     string       `json:"leagueName"`
	TypeID         int          `json:"typeId"`
	Type           string       `json:"type"`
	Maturity       int64        `json:"maturity"`
	MaturityDate   string       `json:"maturityDate"`
	HomeTeam       string       `json:"homeTeam"`
	AwayTeam       string       `json:"awayTeam"`
	HomeScore      *float64     `json:"homeScore"`
	AwayScore      *float64     `json:"awayScore"`
	IsOpen         bool         `json:"isOpen"`
	IsResolved     bool         `json:"isResolved"`
	IsCancelled    bool         `json:"isCancelled"`
	IsWinning      bool         `json:"isWinning"`
	Position       int          `json:"position"`
	Odd            float64      `json:"odd"`
	IsGameFinished bool         `json:"isGameFinished"`
	GameStatus     string       `json:"gameStatus"`
	PlayerProps    *PlayerProps `json:"playerProps,omitempty"`
}

// PotentialWin is the profit over the stake if the ticket wins
func (t Ticket) PotentialWin() float64 {
	return t.Payout - t.BuyInAmount
}

// ParseUserHistory decodes a vendor history payload; missing groups become empty
func ParseUserHistory(raw []byte) (*UserHistory, error) {
	if err := CheckVendorError(raw); err != nil {
		return nil, err
	}

	var history UserHistory
	if err := json.Unmarshal(raw, &history); err != nil {
		return nil, fmt.Errorf("decode user history: %w", err)
	}

	if history.Open == nil {
		history.Open = []Ticket{}
	}
	if history.Claimable == nil {
		history.Claimable = []Ticket{}
	}
	if history.Closed == nil {
		history.Closed = []Ticket{}
	}

	return &history, nil
}
