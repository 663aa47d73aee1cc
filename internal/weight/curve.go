// Package weight converts a locked lp amount and its unlocking duration into reward weight.
//
// The multiplier is a quadratic through (1 day, 1x), (~0.5 year, 5x) and (1 year, 16x),
// evaluated in 18-decimal fixed point with every step truncated.
package weight

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/lpfarm/internal/types"
)

const maxAmountBits = 128

var (
	quadraticCoefficient = sdkmath.LegacyMustNewDecFromStr("0.000000000109498841")
	linearCoefficient    = sdkmath.LegacyMustNewDecFromStr("0.000249042009202369")
	curveDivisor         = sdkmath.LegacyMustNewDecFromStr("7791.996353100889432894")
	curveIntercept       = sdkmath.LegacyNewDec(246210981355969).QuoTruncate(sdkmath.LegacyNewDec(246918738317569))
)

// multiplier evaluates the curve. It does not check the duration range.
func multiplier(unlockingDuration uint64) sdkmath.LegacyDec {
	d := sdkmath.LegacyNewDecFromInt(sdkmath.NewIntFromUint64(unlockingDuration))

	quadratic := d.MulTruncate(d).MulTruncate(quadraticCoefficient).QuoTruncate(curveDivisor)
	linear := d.MulTruncate(linearCoefficient).QuoTruncate(curveDivisor)

	return quadratic.Add(linear).Add(curveIntercept)
}

func validate(amount sdkmath.Int, unlockingDuration uint64) error {
	if unlockingDuration < types.CurveMinDuration || unlockingDuration > types.CurveMaxDuration {
		return fmt.Errorf("%w: unlocking duration %d outside [%d, %d]",
			types.ErrInvalidWeight, unlockingDuration, types.CurveMinDuration, types.CurveMaxDuration)
	}
	if amount.IsNil() || amount.IsNegative() {
		return fmt.Errorf("%w: amount must be non-negative", types.ErrInvalidAmount)
	}
	if amount.BigInt().BitLen() > maxAmountBits {
		return fmt.Errorf("%w: amount exceeds %d bits", types.ErrInvalidAmount, maxAmountBits)
	}
	return nil
}

// Calculate returns floor(amount * multiplier(duration)), never less than amount.
func Calculate(amount sdkmath.Int, unlockingDuration uint64) (sdkmath.Int, error) {
	if err := validate(amount, unlockingDuration); err != nil {
		return sdkmath.Int{}, err
	}

	weight := sdkmath.LegacyNewDecFromInt(amount).MulTruncate(multiplier(unlockingDuration)).TruncateInt()
	if weight.LT(amount) {
		return amount, nil
	}
	return weight, nil
}

// Multiplier returns weight/amount truncated to 18 decimals, the effective boost of a position.
func Multiplier(amount sdkmath.Int, unlockingDuration uint64) (sdkmath.LegacyDec, error) {
	w, err := Calculate(amount, unlockingDuration)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	if amount.IsZero() {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: multiplier of a zero amount", types.ErrInvalidAmount)
	}
	return sdkmath.LegacyNewDecFromInt(w).QuoTruncate(sdkmath.LegacyNewDecFromInt(amount)), nil
}
