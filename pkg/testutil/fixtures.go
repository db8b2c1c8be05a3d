package testutil

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/XavierBriggs/Tyche/pkg/contracts"
	"github.com/XavierBriggs/Tyche/pkg/models"
)

// NewTestMarket creates a moneyline market maturing minutesUntilStart from now.
// Each decimal price becomes one position (home, away[, draw]).
func NewTestMarket(gameID, homeTeam, awayTeam string, minutesUntilStart float64, decimals ...float64) models.MarketRecord {
	maturity := time.Now().Add(time.Duration(minutesUntilStart * float64(time.Minute))).UTC()

	odds := make([]models.Odds, 0, len(decimals))
	for _, d := range decimals {
		odds = append(odds, models.Odds{
			Decimal:           d,
			NormalizedImplied: 1 / d,
		})
	}

	return models.MarketRecord{
		GameID:       gameID,
		Sport:        "Soccer",
		LeagueID:     100,
		SubLeagueID:  100,
		LeagueName:   "Test League",
		TypeID:       0,
		Type:         "winner",
		Maturity:     maturity.Unix(),
		MaturityDate: maturity.Format(time.RFC3339),
		Status:       0,
		HomeTeam:     homeTeam,
		AwayTeam:     awayTeam,
		IsOpen:       true,
		Odds:         odds,
		Proof:        []string{"0x" + gameID + "01", "0x" + gameID + "02"},
	}
}

// SnapshotJSON encodes markets under a single sport/league as a vendor payload
func SnapshotJSON(sport, leagueID string, markets ...models.MarketRecord) []byte {
	snapshot := models.MarketSnapshot{
		sport: {leagueID: markets},
	}
	body, err := json.Marshal(snapshot)
	if err != nil {
		panic(err)
	}
	return body
}

// DefaultSnapshotJSON returns a small valid payload with two soccer markets
func DefaultSnapshotJSON() []byte {
	return SnapshotJSON("Soccer", "100",
		NewTestMarket("0xabc", "Arsenal", "Chelsea", 30, 1.85, 2.10, 3.40),
		NewTestMarket("0xdef", "Milan", "Inter", 240, 2.50, 1.60),
	)
}

// NewQuoteResponse builds a priced quote with the given total decimal odds
func NewQuoteResponse(buyIn, decimal float64) *models.QuoteResponse {
	payout := buyIn * decimal
	return &models.QuoteResponse{
		QuoteData: &models.QuoteData{
			TotalQuote: &models.TotalQuote{
				Decimal:           decimal,
				NormalizedImplied: 1 / decimal,
			},
			BuyInAmountInUsd: buyIn,
			Payout:           &models.Amount{Usd: payout},
			PotentialProfit: &models.Profit{
				Usd:        payout - buyIn,
				Percentage: (payout - buyIn) / buyIn,
			},
		},
		LiquidityData: &models.LiquidityData{TicketLiquidityInUsd: 10000},
	}
}

// MockVendorAdapter is a test adapter that returns predetermined payloads
type MockVendorAdapter struct {
	FetchMarketsFunc     func(ctx context.Context, networkID int64) ([]byte, error)
	FetchUserHistoryFunc func(ctx context.Context, networkID int64, address string) ([]byte, error)
	RequestQuoteFunc     func(ctx context.Context, networkID int64, req *models.QuoteRequest) (*models.QuoteResponse, error)

	marketCalls int64
	quoteCalls  int64

	mu       sync.Mutex
	requests []models.QuoteRequest
}

var _ contracts.VendorAdapter = (*MockVendorAdapter)(nil)

func (m *MockVendorAdapter) FetchMarkets(ctx context.Context, networkID int64) ([]byte, error) {
	atomic.AddInt64(&m.marketCalls, 1)
	if m.FetchMarketsFunc != nil {
		return m.FetchMarketsFunc(ctx, networkID)
	}
	return DefaultSnapshotJSON(), nil
}

func (m *MockVendorAdapter) FetchUserHistory(ctx context.Context, networkID int64, address string) ([]byte, error) {
	if m.FetchUserHistoryFunc != nil {
		return m.FetchUserHistoryFunc(ctx, networkID, address)
	}
	return []byte(`{"open":[],"claimable":[],"closed":[]}`), nil
}

func (m *MockVendorAdapter) RequestQuote(ctx context.Context, networkID int64, req *models.QuoteRequest) (*models.QuoteResponse, error) {
	atomic.AddInt64(&m.quoteCalls, 1)
	m.mu.Lock()
	m.requests = append(m.requests, *req)
	m.mu.Unlock()

	if m.RequestQuoteFunc != nil {
		return m.RequestQuoteFunc(ctx, networkID, req)
	}
	return NewQuoteResponse(float64(req.BuyInAmount), 1.85), nil
}

// MarketCalls returns how many times FetchMarkets ran
func (m *MockVendorAdapter) MarketCalls() int {
	return int(atomic.LoadInt64(&m.marketCalls))
}

// QuoteCalls returns how many times RequestQuote ran
func (m *MockVendorAdapter) QuoteCalls() int {
	return int(atomic.LoadInt64(&m.quoteCalls))
}

// QuoteRequests returns copies of every quote request received
func (m *MockVendorAdapter) QuoteRequests() []models.QuoteRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.QuoteRequest, len(m.requests))
	copy(out, m.requests)
	return out
}
