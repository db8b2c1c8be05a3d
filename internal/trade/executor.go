package trade

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/XavierBriggs/Tyche/pkg/contracts"
	"github.com/XavierBriggs/Tyche/pkg/models"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/golang/glog"
)

// DefaultSlippage is the additional slippage accepted on the quoted price
const DefaultSlippage = 0.01

var (
	// ErrQuoteUnavailable is returned when a bet is placed without a priced quote
	ErrQuoteUnavailable = errors.New("quote unavailable")

	// ErrInsufficientAllowance is returned when the AMM may not spend the stake
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

// Executor places bets for one network
type Executor struct {
	chain    Chain
	network  contracts.NetworkModule
	referral common.Address
	slippage *big.Int
}

// NewExecutor creates an executor. A zero referral sends no referrer.
func NewExecutor(chain Chain, network contracts.NetworkModule, referral common.Address) *Executor {
	return &Executor{
		chain:    chain,
		network:  network,
		referral: referral,
		slippage: ParseEther(DefaultSlippage),
	}
}

// Allowance returns how much collateral the AMM may spend for the wallet
func (e *Executor) Allowance(ctx context.Context) (*big.Int, error) {
	return e.chain.Allowance(ctx,
		e.network.GetCollateralAddress(),
		e.chain.From(),
		e.network.GetSportsAMMAddress(),
	)
}

// Approve lets the AMM spend amount (whole collateral units, e.g. "100")
func (e *Executor) Approve(ctx context.Context, amount string) (*types.Transaction, error) {
	value, err := ParseUnits(amount, e.network.GetCollateralDecimals())
	if err != nil {
		return nil, err
	}

	tx, err := e.chain.Approve(ctx, e.network.GetCollateralAddress(), e.network.GetSportsAMMAddress(), value)
	if err != nil {
		glog.Errorf("[Trade] approve on %s failed: %v", e.network.GetDisplayName(), err)
		return nil, err
	}

	glog.Infof("[Trade] approve %s sent on %s: %s", amount, e.network.GetDisplayName(), tx.Hash().Hex())
	return tx, nil
}

// PlaceBet submits a single-leg ticket at the quoted price.
// The allowance is checked first; nothing is sent when it is short.
func (e *Executor) PlaceBet(ctx context.Context, market models.MarketRecord, position int, amount string, q *models.QuoteResponse) (*types.Transaction, error) {
	if q == nil || q.ErrorMessage() != "" || q.QuoteData == nil || q.QuoteData.TotalQuote == nil {
		return nil, ErrQuoteUnavailable
	}

	buyIn, err := ParseUnits(amount, e.network.GetCollateralDecimals())
	if err != nil {
		return nil, err
	}

	allowance, err := e.Allowance(ctx)
	if err != nil {
		glog.Errorf("[Trade] allowance check on %s failed: %v", e.network.GetDisplayName(), err)
		return nil, err
	}
	if allowance.Cmp(buyIn) < 0 {
		return nil, fmt.Errorf("%w: have %s, need %s", ErrInsufficientAllowance,
			FormatUnits(allowance, e.network.GetCollateralDecimals()), amount)
	}

	leg, err := NewTradeData(market, position)
	if err != nil {
		return nil, fmt.Errorf("encode trade data: %w", err)
	}

	args := TradeArgs{
		TradeData:     []TradeData{leg},
		BuyInAmount:   buyIn,
		ExpectedQuote: ParseEther(q.QuoteData.TotalQuote.NormalizedImplied),
		Slippage:      e.slippage,
		Referrer:      e.referral,
		Collateral:    e.network.GetCollateralAddress(),
		IsEth:         false,
	}

	tx, err := e.chain.Trade(ctx, e.network.GetSportsAMMAddress(), args)
	if err != nil {
		glog.Errorf("[Trade] bet on %s (%s) failed: %v", market.GameID, e.network.GetDisplayName(), err)
		return nil, err
	}

	glog.Infof("[Trade] bet %s on %s position %d sent: %s", amount, market.GameID, position, tx.Hash().Hex())
	return tx, nil
}
