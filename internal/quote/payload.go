package quote

import (
	"strings"

	"github.com/XavierBriggs/Tyche/pkg/models"
)

// BuildTradeData derives the quote payload leg for a position on a market
func BuildTradeData(m models.MarketRecord, position int) models.TradeData {
	odds := make([]float64, len(m.Odds))
	for i, o := range m.Odds {
		odds[i] = o.NormalizedImplied
	}

	var playerID *int
	if m.PlayerProps != nil {
		id := m.PlayerProps.PlayerID
		playerID = &id
	}

	return models.TradeData{
		GameID:            m.GameID,
		SportID:           m.SubLeagueID,
		TypeID:            m.TypeID,
		Maturity:          m.Maturity,
		Status:            m.Status,
		Line:              m.Line,
		PlayerID:          playerID,
		Odds:              odds,
		MerkleProof:       m.Proof,
		Position:          position,
		CombinedPositions: m.CombinedPositions,
		Live:              false,
	}
}

// BuildRequest wraps a single leg into a quote request
func BuildRequest(m models.MarketRecord, position, buyInAmount int) *models.QuoteRequest {
	return &models.QuoteRequest{
		BuyInAmount: buyInAmount,
		TradeData:   []models.TradeData{BuildTradeData(m, position)},
	}
}

// ParseBuyIn reads a typed stake the way a number input is read: leading
// whitespace is skipped and the leading run of digits is the amount.
// ok is false for empty or non-numeric input.
func ParseBuyIn(s string) (int, bool) {
	s = strings.TrimSpace(s)
	n, digits := 0, 0
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		if n > (1<<31-1)/10 {
			return 0, false
		}
		n = n*10 + int(r-'0')
		digits++
	}
	if digits == 0 {
		return 0, false
	}
	return n, true
}
