package inscription

import "math"

// DefaultMinFeeRate is the fee-rate floor in sats/vbyte used when no
// configured floor is supplied.
const DefaultMinFeeRate = 0.1

// ClampFeeRate raises rate to floor when it is below it. Non-finite rates
// also resolve to floor. Rates are never rejected.
func ClampFeeRate(rate, floor float64) float64 {
	if floor <= 0 || math.IsNaN(floor) || math.IsInf(floor, 0) {
		floor = DefaultMinFeeRate
	}
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate < floor {
		return floor
	}
	return rate
}
