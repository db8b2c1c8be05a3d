package trade

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/XavierBriggs/Tyche/pkg/contracts"
	"github.com/XavierBriggs/Tyche/pkg/eth"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ErrNoWallet is returned when a transaction is requested without a signing key
var ErrNoWallet = errors.New("no wallet configured")

// TradeArgs are the arguments of SportsAMMV2.trade
type TradeArgs struct {
	TradeData     []TradeData
	BuyInAmount   *big.Int
	ExpectedQuote *big.Int
	Slippage      *big.Int
	Referrer      common.Address
	Collateral    common.Address
	IsEth         bool
}

// Chain is the on-chain surface of the bet flow
type Chain interface {
	// From is the wallet address transactions are sent from
	From() common.Address

	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (*types.Transaction, error)
	Trade(ctx context.Context, amm common.Address, args TradeArgs) (*types.Transaction, error)
}

// EthChain talks to a JSON-RPC node with bound contracts
type EthChain struct {
	backend bind.ContractBackend
	wallet  *eth.Wallet // nil for read-only use
	chainID *big.Int
}

var _ Chain = (*EthChain)(nil)

// Dial connects to rpcURL. wallet may be nil; only Allowance then works.
func Dial(ctx context.Context, rpcURL string, wallet *eth.Wallet, network contracts.NetworkModule) (*EthChain, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("query chain id: %w", err)
	}
	if chainID.Int64() != network.GetNetworkID() {
		client.Close()
		return nil, fmt.Errorf("rpc is on chain %s, expected %d (%s)", chainID, network.GetNetworkID(), network.GetDisplayName())
	}

	return NewEthChain(client, wallet, chainID), nil
}

// NewEthChain wraps an existing backend
func NewEthChain(backend bind.ContractBackend, wallet *eth.Wallet, chainID *big.Int) *EthChain {
	return &EthChain{backend: backend, wallet: wallet, chainID: chainID}
}

// From returns the wallet address, or the zero address when read-only
func (c *EthChain) From() common.Address {
	if c.wallet == nil {
		return common.Address{}
	}
	return c.wallet.Address()
}

// Allowance reads ERC20.allowance(owner, spender)
func (c *EthChain) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	contract := bind.NewBoundContract(token, ERC20, c.backend, c.backend, c.backend)

	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "allowance", owner, spender); err != nil {
		return nil, fmt.Errorf("call allowance: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("call allowance: empty result")
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// Approve sends ERC20.approve(spender, amount)
func (c *EthChain) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (*types.Transaction, error) {
	opts, err := c.transactor(ctx)
	if err != nil {
		return nil, err
	}

	contract := bind.NewBoundContract(token, ERC20, c.backend, c.backend, c.backend)
	tx, err := contract.Transact(opts, "approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("send approve: %w", err)
	}
	return tx, nil
}

// Trade sends SportsAMMV2.trade
func (c *EthChain) Trade(ctx context.Context, amm common.Address, args TradeArgs) (*types.Transaction, error) {
	opts, err := c.transactor(ctx)
	if err != nil {
		return nil, err
	}

	contract := bind.NewBoundContract(amm, SportsAMMV2, c.backend, c.backend, c.backend)
	tx, err := contract.Transact(opts, "trade",
		args.TradeData, args.BuyInAmount, args.ExpectedQuote, args.Slippage,
		args.Referrer, args.Collateral, args.IsEth,
	)
	if err != nil {
		return nil, fmt.Errorf("send trade: %w", err)
	}
	return tx, nil
}

func (c *EthChain) transactor(ctx context.Context) (*bind.TransactOpts, error) {
	if c.wallet == nil {
		return nil, ErrNoWallet
	}
	opts, err := c.wallet.Transactor(c.chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	return opts, nil
}
