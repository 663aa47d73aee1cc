/*
This file contains conversions from SDK integer amounts to the float64 values
the metrics and the web responses report.
*/

package utils

import (
	"errors"
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

var (
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
)

// IntToFloat64 converts a non-negative SDK Int to float64. Precision is lost above 2^53.
func IntToFloat64(amount sdkmath.Int) (float64, error) {
	if amount.IsNil() {
		return 0, ErrAmountNil
	}
	if amount.IsNegative() {
		return 0, ErrAmountNegative
	}

	result, err := sdkmath.LegacyNewDecFromInt(amount).Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, result)
	}
	return result, nil
}

// CoinsToFloat64 converts every coin amount, keyed by denom.
func CoinsToFloat64(coins sdk.Coins) (map[string]float64, error) {
	out := make(map[string]float64, len(coins))
	for _, c := range coins {
		v, err := IntToFloat64(c.Amount)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.Denom, err)
		}
		out[c.Denom] = v
	}
	return out, nil
}
