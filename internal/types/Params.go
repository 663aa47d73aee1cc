/*

This file contains the engine parameters. Defaults live in internal/config.

*/

package types

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

const (
	// CurveMinDuration is the shortest unlocking duration the weight curve accepts (1 day).
	CurveMinDuration uint64 = 86_400
	// CurveMaxDuration is the longest unlocking duration the weight curve accepts (1 year).
	CurveMaxDuration uint64 = 31_556_926
)

// MaxPenalty caps the emergency unlock penalty at 90% of the position.
var MaxPenalty = sdkmath.LegacyNewDecWithPrec(9, 1)

// Params holds every tunable of the engine.
type Params struct {
	// Owner is the admin allowed to close live farms and update parameters.
	Owner string `json:"owner"`
	// FeeCollector receives farm creation fees and emergency unlock penalties.
	FeeCollector string `json:"fee_collector"`
	// PoolManager is the trusted creator of lp denoms. It may also open positions on behalf of receivers.
	PoolManager string `json:"pool_manager"`

	CreateFarmFee      sdk.Coin `json:"create_farm_fee"`
	MaxConcurrentFarms uint32   `json:"max_concurrent_farms"`
	MaxFarmEpochBuffer uint64   `json:"max_farm_epoch_buffer"`
	// FarmExpirationTime is the number of seconds after the end epoch starts before anyone may close the farm.
	FarmExpirationTime  uint64      `json:"farm_expiration_time"`
	MinFarmAmount       sdkmath.Int `json:"min_farm_amount"`
	DefaultFarmDuration uint64      `json:"default_farm_duration"`

	MinUnlockingDuration    uint64            `json:"min_unlocking_duration"`
	MaxUnlockingDuration    uint64            `json:"max_unlocking_duration"`
	EmergencyUnlockPenalty  sdkmath.LegacyDec `json:"emergency_unlock_penalty"`
	MaxPositionsPerReceiver uint32            `json:"max_positions_per_receiver"`

	// MaxClaimEpochs bounds a single reward walk. Holders further behind claim incrementally.
	MaxClaimEpochs uint64 `json:"max_claim_epochs"`
}

// Validate checks every parameter for consistency.
func (p Params) Validate() error {
	for name, addr := range map[string]string{"owner": p.Owner, "fee_collector": p.FeeCollector, "pool_manager": p.PoolManager} {
		if err := ValidateAddress(addr); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidParams, name, err)
		}
	}
	if p.CreateFarmFee.Amount.IsNil() || p.CreateFarmFee.Validate() != nil {
		return fmt.Errorf("%w: create_farm_fee %s", ErrInvalidParams, p.CreateFarmFee)
	}
	if p.MaxConcurrentFarms == 0 {
		return fmt.Errorf("%w: max_concurrent_farms must be positive", ErrInvalidParams)
	}
	if p.MaxFarmEpochBuffer == 0 {
		return fmt.Errorf("%w: max_farm_epoch_buffer must be positive", ErrInvalidParams)
	}
	if p.FarmExpirationTime == 0 {
		return fmt.Errorf("%w: farm_expiration_time must be positive", ErrInvalidParams)
	}
	if p.MinFarmAmount.IsNil() || !p.MinFarmAmount.IsPositive() {
		return fmt.Errorf("%w: min_farm_amount must be positive", ErrInvalidParams)
	}
	if p.DefaultFarmDuration == 0 {
		return fmt.Errorf("%w: default_farm_duration must be positive", ErrInvalidParams)
	}
	if p.MinUnlockingDuration < CurveMinDuration || p.MaxUnlockingDuration > CurveMaxDuration ||
		p.MinUnlockingDuration > p.MaxUnlockingDuration {
		return fmt.Errorf("%w: unlocking durations [%d, %d] must lie within [%d, %d]",
			ErrInvalidParams, p.MinUnlockingDuration, p.MaxUnlockingDuration, CurveMinDuration, CurveMaxDuration)
	}
	if p.EmergencyUnlockPenalty.IsNil() || p.EmergencyUnlockPenalty.IsNegative() || p.EmergencyUnlockPenalty.GT(sdkmath.LegacyOneDec()) {
		return fmt.Errorf("%w: emergency_unlock_penalty must lie within [0, 1]", ErrInvalidParams)
	}
	if p.MaxPositionsPerReceiver == 0 {
		return fmt.Errorf("%w: max_positions_per_receiver must be positive", ErrInvalidParams)
	}
	if p.MaxClaimEpochs == 0 {
		return fmt.Errorf("%w: max_claim_epochs must be positive", ErrInvalidParams)
	}
	return nil
}

// ParamsUpdate carries the parameters an UpdateParams action changes. Nil fields are left untouched.
type ParamsUpdate struct {
	FeeCollector            *string            `json:"fee_collector,omitempty"`
	PoolManager             *string            `json:"pool_manager,omitempty"`
	CreateFarmFee           *sdk.Coin          `json:"create_farm_fee,omitempty"`
	MaxConcurrentFarms      *uint32            `json:"max_concurrent_farms,omitempty"`
	MaxFarmEpochBuffer      *uint64            `json:"max_farm_epoch_buffer,omitempty"`
	FarmExpirationTime      *uint64            `json:"farm_expiration_time,omitempty"`
	MinUnlockingDuration    *uint64            `json:"min_unlocking_duration,omitempty"`
	MaxUnlockingDuration    *uint64            `json:"max_unlocking_duration,omitempty"`
	EmergencyUnlockPenalty  *sdkmath.LegacyDec `json:"emergency_unlock_penalty,omitempty"`
	MaxPositionsPerReceiver *uint32            `json:"max_positions_per_receiver,omitempty"`
	MaxClaimEpochs          *uint64            `json:"max_claim_epochs,omitempty"`
}

// Apply returns a copy of p with the update applied. The result is not validated.
func (u ParamsUpdate) Apply(p Params) Params {
	if u.FeeCollector != nil {
		p.FeeCollector = *u.FeeCollector
	}
	if u.PoolManager != nil {
		p.PoolManager = *u.PoolManager
	}
	if u.CreateFarmFee != nil {
		p.CreateFarmFee = *u.CreateFarmFee
	}
	if u.MaxConcurrentFarms != nil {
		p.MaxConcurrentFarms = *u.MaxConcurrentFarms
	}
	if u.MaxFarmEpochBuffer != nil {
		p.MaxFarmEpochBuffer = *u.MaxFarmEpochBuffer
	}
	if u.FarmExpirationTime != nil {
		p.FarmExpirationTime = *u.FarmExpirationTime
	}
	if u.MinUnlockingDuration != nil {
		p.MinUnlockingDuration = *u.MinUnlockingDuration
	}
	if u.MaxUnlockingDuration != nil {
		p.MaxUnlockingDuration = *u.MaxUnlockingDuration
	}
	if u.EmergencyUnlockPenalty != nil {
		p.EmergencyUnlockPenalty = *u.EmergencyUnlockPenalty
	}
	if u.MaxPositionsPerReceiver != nil {
		p.MaxPositionsPerReceiver = *u.MaxPositionsPerReceiver
	}
	if u.MaxClaimEpochs != nil {
		p.MaxClaimEpochs = *u.MaxClaimEpochs
	}
	return p
}
