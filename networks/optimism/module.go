package optimism

import (
	"time"

	"github.com/XavierBriggs/Tyche/pkg/contracts"
	"github.com/ethereum/go-ethereum/common"
)

// Module implements the NetworkModule interface for Optimism
type Module struct {
	config *Config
}

var _ contracts.NetworkModule = (*Module)(nil)

// NewModule creates a new Optimism network module
func NewModule() *Module {
	return NewModuleWithConfig(DefaultConfig())
}

// NewModuleWithConfig creates a module from an explicit config (overrides, tests)
func NewModuleWithConfig(config *Config) *Module {
	return &Module{config: config}
}

// GetNetworkID returns the chain id
func (m *Module) GetNetworkID() int64 {
	return m.config.NetworkID
}

// GetDisplayName returns the human-readable name
func (m *Module) GetDisplayName() string {
	return m.config.DisplayName
}

// GetSportsAMMAddress returns the SportsAMMV2 address
func (m *Module) GetSportsAMMAddress() common.Address {
	return m.config.SportsAMMAddress
}

// GetCollateralAddress returns the USDC address
func (m *Module) GetCollateralAddress() common.Address {
	return m.config.CollateralAddress
}

// GetCollateralDecimals returns the USDC decimals
func (m *Module) GetCollateralDecimals() int32 {
	return m.config.CollateralDecimals
}

// GetRefreshInterval returns the scheduler reload interval
func (m *Module) GetRefreshInterval() time.Duration {
	return m.config.RefreshInterval
}
