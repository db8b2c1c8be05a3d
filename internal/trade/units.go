package trade

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

const etherDecimals = 18

// ParseUnits converts a decimal string to base units, e.g. "5" with 6
// decimals is 5000000. Excess precision is rounded half away from zero.
func ParseUnits(value string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", value, err)
	}
	return d.Shift(decimals).Round(0).BigInt(), nil
}

// ParseEther converts a float to 18-decimal fixed point using its shortest
// decimal representation
func ParseEther(value float64) *big.Int {
	return decimal.NewFromFloat(value).Shift(etherDecimals).Round(0).BigInt()
}

// FormatUnits renders base units as a decimal string
func FormatUnits(amount *big.Int, decimals int32) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -decimals).String()
}
