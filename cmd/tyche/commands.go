package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/XavierBriggs/Tyche/internal/config"
	"github.com/XavierBriggs/Tyche/internal/loader"
	"github.com/XavierBriggs/Tyche/internal/quote"
	"github.com/XavierBriggs/Tyche/internal/trade"
	"github.com/XavierBriggs/Tyche/pkg/contracts"
	"github.com/XavierBriggs/Tyche/pkg/eth"
	"github.com/XavierBriggs/Tyche/pkg/models"
	"github.com/ethereum/go-ethereum/common"
)

const commandTimeout = 30 * time.Second

func runMarkets(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("markets", flag.ExitOnError)
	chainID := fs.Int64("network", 0, "chain id (0 or 1 browse the default network)")
	fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	network, err := a.networks.Resolve(*chainID)
	if err != nil {
		return err
	}

	v, err := loadView(ctx, a, network)
	if err != nil {
		return err
	}
	return printJSON(v.Summarize(time.Now()))
}

func runQuote(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("quote", flag.ExitOnError)
	chainID := fs.Int64("network", 0, "chain id")
	gameID := fs.String("game", "", "game id")
	typeID := fs.Int("type", 0, "market type id")
	position := fs.Int("position", 0, "outcome index (0 home, 1 away, 2 draw)")
	amount := fs.Int("amount", models.MinBuyInAmount, "stake in USDC")
	fs.Parse(args)

	if *gameID == "" {
		return errors.New("-game is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	network, err := a.networks.Resolve(*chainID)
	if err != nil {
		return err
	}

	market, err := findMarket(ctx, a, network, *gameID, *typeID)
	if err != nil {
		return err
	}

	d := quote.NewDebouncer(a.vendor, network.GetNetworkID(), a.metrics)
	defer d.Close()

	d.Select(market)
	if _, err := d.Update(ctx, *position, *amount); err != nil {
		return err
	}
	d.Wait()

	result := d.Result()
	printQuote(market, result)
	if result.Status == quote.StatusFailed {
		return errors.New(result.Err)
	}
	return nil
}

func runLucky(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("lucky", flag.ExitOnError)
	chainID := fs.Int64("network", 0, "chain id")
	amount := fs.Int("amount", quote.LuckyAmounts[0], "stake in USDC (3, 5 or 10)")
	fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	network, err := a.networks.Resolve(*chainID)
	if err != nil {
		return err
	}

	v, err := loadView(ctx, a, network)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	pick, err := quote.PickAndQuote(ctx, a.vendor, network.GetNetworkID(), v.Snapshot, *amount, time.Now(), rng.Intn)
	if err != nil {
		return err
	}

	printQuote(pick.Market, pick.Result)
	return nil
}

func runHistory(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	chainID := fs.Int64("network", 0, "chain id")
	address := fs.String("address", "", "wallet address")
	fs.Parse(args)

	if !common.IsHexAddress(*address) {
		return fmt.Errorf("invalid -address %q", *address)
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	network, err := a.networks.Resolve(*chainID)
	if err != nil {
		return err
	}

	raw, err := a.vendor.FetchUserHistory(ctx, network.GetNetworkID(), *address)
	if err != nil {
		return err
	}
	history, err := models.ParseUserHistory(raw)
	if err != nil {
		return err
	}

	fmt.Printf("%s on %s\n", *address, network.GetDisplayName())
	fmt.Printf("  open: %d  claimable: %d  closed: %d\n", len(history.Open), len(history.Claimable), len(history.Closed))
	for _, group := range []struct {
		name    string
		tickets []models.Ticket
	}{
		{"open", history.Open},
		{"claimable", history.Claimable},
		{"closed", history.Closed},
	} {
		for _, t := range group.tickets {
			fmt.Printf("  [%s] %s buy-in %.2f payout %.2f (%d market(s))\n",
				group.name, t.ID, t.BuyInAmount, t.Payout, t.NumOfMarkets)
		}
	}
	return nil
}

func runApprove(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("approve", flag.ExitOnError)
	chainID := fs.Int64("network", 0, "chain id")
	amount := fs.String("amount", "", "collateral amount to approve, e.g. 100")
	fs.Parse(args)

	if *amount == "" {
		return errors.New("-amount is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	network, err := a.networks.Resolve(*chainID)
	if err != nil {
		return err
	}

	exec, err := newExecutor(ctx, cfg, network)
	if err != nil {
		return err
	}

	tx, err := exec.Approve(ctx, *amount)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Approve sent: %s\n", tx.Hash().Hex())
	return nil
}

func runBet(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("bet", flag.ExitOnError)
	chainID := fs.Int64("network", 0, "chain id")
	gameID := fs.String("game", "", "game id")
	typeID := fs.Int("type", 0, "market type id")
	position := fs.Int("position", 0, "outcome index (0 home, 1 away, 2 draw)")
	amount := fs.Int("amount", models.MinBuyInAmount, "stake in USDC")
	fs.Parse(args)

	if *gameID == "" {
		return errors.New("-game is required")
	}
	if *amount < models.MinBuyInAmount {
		return fmt.Errorf("minimum buy-in is %d USDC", models.MinBuyInAmount)
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	network, err := a.networks.Resolve(*chainID)
	if err != nil {
		return err
	}

	exec, err := newExecutor(ctx, cfg, network)
	if err != nil {
		return err
	}

	market, err := findMarket(ctx, a, network, *gameID, *typeID)
	if err != nil {
		return err
	}
	if *position < 0 || *position >= len(market.Odds) {
		return fmt.Errorf("%w: %d", quote.ErrInvalidPosition, *position)
	}

	resp, err := a.vendor.RequestQuote(ctx, network.GetNetworkID(), quote.BuildRequest(market, *position, *amount))
	result := quote.Evaluate(resp, err)
	result.Position, result.BuyInAmount = *position, *amount
	printQuote(market, result)
	if result.Status != quote.StatusReady {
		return errors.New(result.Err)
	}

	tx, err := exec.PlaceBet(ctx, market, *position, strconv.Itoa(*amount), resp)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Bet sent: %s\n", tx.Hash().Hex())
	return nil
}

// loadView loads a network and waits for any background refresh
func loadView(ctx context.Context, a *app, network contracts.NetworkModule) (loader.View, error) {
	l := a.loaders.Get(network.GetNetworkID())

	v, err := l.Load(ctx, network.GetNetworkID())
	if err != nil && !v.HasData() {
		return v, err
	}
	l.Wait()

	v = l.View()
	if !v.HasData() {
		if v.Err != "" {
			return v, errors.New(v.Err)
		}
		return v, models.ErrEmptySnapshot
	}
	return v, nil
}

func findMarket(ctx context.Context, a *app, network contracts.NetworkModule, gameID string, typeID int) (models.MarketRecord, error) {
	v, err := loadView(ctx, a, network)
	if err != nil {
		return models.MarketRecord{}, err
	}
	market, ok := v.Snapshot.Find(gameID, typeID)
	if !ok {
		return models.MarketRecord{}, fmt.Errorf("market %s type %d not found on %s", gameID, typeID, network.GetDisplayName())
	}
	return market, nil
}

func newExecutor(ctx context.Context, cfg *config.Config, network contracts.NetworkModule) (*trade.Executor, error) {
	if !cfg.HasWallet() {
		return nil, errors.New("RPC_URL and WALLET_PRIVATE_KEY are required")
	}

	wallet, err := eth.NewWallet(cfg.Wallet.PrivateKey)
	if err != nil {
		return nil, err
	}

	chain, err := trade.Dial(ctx, cfg.Wallet.RPCURL, wallet, network)
	if err != nil {
		return nil, err
	}

	var referral common.Address
	if cfg.Wallet.Referral != "" {
		if !common.IsHexAddress(cfg.Wallet.Referral) {
			return nil, fmt.Errorf("invalid REFERRAL_ADDRESS %q", cfg.Wallet.Referral)
		}
		referral = common.HexToAddress(cfg.Wallet.Referral)
	}

	fmt.Printf("✓ Wallet %s on %s\n", wallet.AddressHex(), network.GetDisplayName())
	return trade.NewExecutor(chain, network, referral), nil
}

func printQuote(market models.MarketRecord, r quote.Result) {
	fmt.Printf("%s vs %s (%s)\n", market.HomeTeam, market.AwayTeam, market.GameID)
	fmt.Printf("  position: %s, stake: %d USDC\n", market.PositionLabel(r.Position), r.BuyInAmount)

	if r.Status != quote.StatusReady {
		fmt.Printf("  quote %s: %s\n", r.Status, r.Err)
		return
	}

	fmt.Printf("  odds: %s\n", r.DisplayOdds)
	if qd := r.Quote.QuoteData; qd != nil {
		if qd.Payout != nil {
			fmt.Printf("  payout: $%.2f\n", qd.Payout.Usd)
		}
		if qd.PotentialProfit != nil {
			fmt.Printf("  profit: $%.2f (%.2f%%)\n", qd.PotentialProfit.Usd, qd.PotentialProfit.Percentage*100)
		}
	}
	if ld := r.Quote.LiquidityData; ld != nil {
		fmt.Printf("  liquidity: $%.2f\n", ld.TicketLiquidityInUsd)
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
