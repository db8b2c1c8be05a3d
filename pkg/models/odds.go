package models

import "math"

// Odds is one outcome price as quoted by the vendor.
// A market carries 2 entries (home, away) or 3 (home, away, draw).
type Odds struct {
	American          float64 `json:"american"`
	Decimal           float64 `json:"decimal"`
	NormalizedImplied float64 `json:"normalizedImplied"`
}

// DecimalValue returns the decimal price, converting from American odds when
// the vendor omitted the decimal field. ok is false when neither is usable.
func (o Odds) DecimalValue() (float64, bool) {
	if o.Decimal > 0 {
		return o.Decimal, true
	}
	return AmericanToDecimal(o.American)
}

// AmericanToDecimal converts American odds (+150, -110) to decimal odds
func AmericanToDecimal(american float64) (float64, bool) {
	if american == 0 {
		return 0, false
	}
	if american > 0 {
		return 1 + american/100, true
	}
	return 1 + 100/math.Abs(american), true
}
