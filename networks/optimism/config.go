package optimism

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// NetworkID is the Optimism mainnet chain id
const NetworkID int64 = 10

// Config contains Optimism deployment details for the betting protocol
type Config struct {
	NetworkID   int64
	DisplayName string

	// Protocol contracts
	SportsAMMAddress   common.Address
	CollateralAddress  common.Address
	CollateralDecimals int32

	// How often the scheduler reloads the markets snapshot
	RefreshInterval time.Duration
}

// DefaultConfig returns the Optimism mainnet deployment
func DefaultConfig() *Config {
	return &Config{
		NetworkID:   NetworkID,
		DisplayName: "Optimism",

		SportsAMMAddress:   common.HexToAddress("0xFb4e4811C7A811E098A556bD79B64c20b479E431"),
		CollateralAddress:  common.HexToAddress("0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85"), // native USDC
		CollateralDecimals: 6,

		RefreshInterval: 5 * time.Minute,
	}
}
