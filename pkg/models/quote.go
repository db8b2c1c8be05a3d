package models

// MinBuyInAmount is the smallest stake, in whole USDC, the vendor will quote
const MinBuyInAmount = 3

// TradeData describes one leg of a ticket, as sent to the quote endpoint
type TradeData struct {
	GameID            string               `json:"gameId"`
	SportID           int                  `json:"sportId"`
	TypeID            int                  `json:"typeId"`
	Maturity          int64                `json:"maturity"`
	Status            int                  `json:"status"`
	Line              float64              `json:"line"`
	PlayerID          *int                 `json:"playerId,omitempty"`
	Odds              []float64            `json:"odds"`
	MerkleProof       []string             `json:"merkleProof"`
	Position          int                  `json:"position"`
	CombinedPositions [][]CombinedPosition `json:"combinedPositions"`
	Live              bool                 `json:"live"`
}

// QuoteRequest is the POST body of the vendor quote endpoint
type QuoteRequest struct {
	BuyInAmount int         `json:"buyInAmount"`
	TradeData   []TradeData `json:"tradeData"`
}

// QuoteResponse is the vendor quote body. Either Error or QuoteData.Error
// is set when the vendor refused to price the ticket.
type QuoteResponse struct {
	QuoteData     *QuoteData     `json:"quoteData,omitempty"`
	LiquidityData *LiquidityData `json:"liquidityData,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// QuoteData holds the priced ticket
type QuoteData struct {
	TotalQuote       *TotalQuote `json:"totalQuote,omitempty"`
	BuyInAmountInUsd float64     `json:"buyInAmountInUsd,omitempty"`
	Payout           *Amount     `json:"payout,omitempty"`
	PotentialProfit  *Profit     `json:"potentialProfit,omitempty"`
	Error            string      `json:"error,omitempty"`
}

// TotalQuote is the combined ticket price in every format the vendor returns
type TotalQuote struct {
	American          float64 `json:"american"`
	Decimal           float64 `json:"decimal"`
	NormalizedImplied float64 `json:"normalizedImplied"`
}

// Amount is a USD denominated value
type Amount struct {
	Usd float64 `json:"usd"`
}

// Profit is the potential profit of a ticket
type Profit struct {
	Usd        float64 `json:"usd"`
	Percentage float64 `json:"percentage"`
}

// LiquidityData reports how much the AMM can still take on this ticket
type LiquidityData struct {
	TicketLiquidityInUsd float64 `json:"ticketLiquidityInUsd"`
}

// ErrorMessage returns the vendor refusal, checking both places it can appear
func (q *QuoteResponse) ErrorMessage() string {
	if q == nil {
		return ""
	}
	if q.QuoteData != nil && q.QuoteData.Error != "" {
		return q.QuoteData.Error
	}
	return q.Error
}
