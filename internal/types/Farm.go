/*

This file contains the farm types: a funded reward pool emitting one asset
linearly over an epoch range to holders of a single lp denom.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

const (
	// ExplicitFarmPrefix is prepended to identifiers chosen by the farm creator.
	ExplicitFarmPrefix = "m-"
	// AutoFarmPrefix is prepended to identifiers generated from the farm counter.
	AutoFarmPrefix = "f-"
)

// Farm is a funded reward pool. FarmAsset.Amount is the total amount the farm will ever emit.
type Farm struct {
	Identifier          string      `json:"identifier"`
	Owner               string      `json:"owner"`
	LpDenom             string      `json:"lp_denom"`
	FarmAsset           sdk.Coin    `json:"farm_asset"`
	ClaimedAmount       sdkmath.Int `json:"claimed_amount"`
	EmissionRate        sdkmath.Int `json:"emission_rate"`
	StartEpoch          uint64      `json:"start_epoch"`
	PreliminaryEndEpoch uint64      `json:"preliminary_end_epoch"`
	LastEpochClaimed    uint64      `json:"last_epoch_claimed"`
}

// Remaining is the part of the farm asset that has not been claimed yet.
func (f Farm) Remaining() sdkmath.Int {
	return f.FarmAsset.Amount.Sub(f.ClaimedAmount)
}

// EmissionAt returns the amount emitted in the given epoch. The end epoch itself emits nothing.
func (f Farm) EmissionAt(epoch uint64) sdkmath.Int {
	if epoch < f.StartEpoch || epoch >= f.PreliminaryEndEpoch {
		return sdkmath.ZeroInt()
	}
	return f.EmissionRate
}

// FarmParams describes a farm to be created.
type FarmParams struct {
	LpDenom             string   `json:"lp_denom"`
	StartEpoch          *uint64  `json:"start_epoch,omitempty"`
	PreliminaryEndEpoch *uint64  `json:"preliminary_end_epoch,omitempty"`
	FarmAsset           sdk.Coin `json:"farm_asset"`
	Identifier          *string  `json:"identifier,omitempty"`
}
