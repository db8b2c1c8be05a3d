package contracts

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// NetworkModule describes a chain the betting protocol is deployed on
type NetworkModule interface {
	// GetNetworkID returns the EVM chain id (e.g., 10 for Optimism)
	GetNetworkID() int64

	// GetDisplayName returns the human-readable name (e.g., "Optimism")
	GetDisplayName() string

	// GetSportsAMMAddress returns the SportsAMMV2 contract address
	GetSportsAMMAddress() common.Address

	// GetCollateralAddress returns the USDC contract address
	GetCollateralAddress() common.Address

	// GetCollateralDecimals returns the collateral token decimals
	GetCollateralDecimals() int32

	// GetRefreshInterval returns how often the scheduler reloads markets
	GetRefreshInterval() time.Duration
}
