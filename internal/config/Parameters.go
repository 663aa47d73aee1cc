/*

This file contains the default engine parameters and their environment overrides.

*/

package config

import (
	"fmt"
	"os"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/lpfarm/internal/types"
)

const (
	// DefaultFarmDuration is the farm length, in epochs, when no end epoch is given.
	DefaultFarmDuration uint64 = 14
	// MinFarmAmount is the smallest farm asset amount a farm can be created with.
	MinFarmAmount int64 = 1_000
	// ThirtyDays is the default farm expiration window, in seconds.
	ThirtyDays uint64 = 30 * 86_400
)

// DefaultParameters returns the baseline parameters for the given addresses.
// These values are used when no parameters were stored yet.
func DefaultParameters(owner, feeCollector, poolManager string) types.Params {
	return types.Params{
		Owner:        owner,
		FeeCollector: feeCollector,
		PoolManager:  poolManager,

		CreateFarmFee:      sdk.NewCoin("uelys", sdkmath.NewInt(1_000_000)),
		MaxConcurrentFarms: 7,  // per lp denom
		MaxFarmEpochBuffer: 14, // a farm may start at most two weeks of epochs ahead
		FarmExpirationTime: ThirtyDays,

		MinFarmAmount:       sdkmath.NewInt(MinFarmAmount),
		DefaultFarmDuration: DefaultFarmDuration,

		MinUnlockingDuration:    types.CurveMinDuration,
		MaxUnlockingDuration:    types.CurveMaxDuration,
		EmergencyUnlockPenalty:  sdkmath.LegacyNewDecWithPrec(2, 2), // 2%, scaled by remaining lock and multiplier
		MaxPositionsPerReceiver: 100,

		MaxClaimEpochs: 365,
	}
}

// LoadParameters builds the parameters from the environment: the three addresses are required,
// every other field falls back to DefaultParameters.
func LoadParameters() (types.Params, error) {
	log.Info().Msg("Loading engine parameters from environment variables...")

	owner, err := getEnv("PARAMS_OWNER")
	if err != nil {
		return types.Params{}, err
	}
	feeCollector, err := getEnv("FEE_COLLECTOR")
	if err != nil {
		return types.Params{}, err
	}
	poolManager, err := getEnv("POOL_MANAGER")
	if err != nil {
		return types.Params{}, err
	}

	params := DefaultParameters(owner, feeCollector, poolManager)

	if value, ok := os.LookupEnv("CREATE_FARM_FEE"); ok {
		fee, err := sdk.ParseCoinNormalized(value)
		if err != nil {
			return types.Params{}, fmt.Errorf("environment variable CREATE_FARM_FEE must be a coin, got %q: %w", value, err)
		}
		params.CreateFarmFee = fee
	}
	if value, ok := os.LookupEnv("EMERGENCY_UNLOCK_PENALTY"); ok {
		penalty, err := sdkmath.LegacyNewDecFromStr(value)
		if err != nil {
			return types.Params{}, fmt.Errorf("environment variable EMERGENCY_UNLOCK_PENALTY must be a decimal, got %q: %w", value, err)
		}
		params.EmergencyUnlockPenalty = penalty
	}

	uintOverrides := []struct {
		key    string
		target *uint64
	}{
		{"MAX_FARM_EPOCH_BUFFER", &params.MaxFarmEpochBuffer},
		{"FARM_EXPIRATION_TIME", &params.FarmExpirationTime},
		{"DEFAULT_FARM_DURATION", &params.DefaultFarmDuration},
		{"MIN_UNLOCKING_DURATION", &params.MinUnlockingDuration},
		{"MAX_UNLOCKING_DURATION", &params.MaxUnlockingDuration},
		{"MAX_CLAIM_EPOCHS", &params.MaxClaimEpochs},
	}
	for _, o := range uintOverrides {
		if _, ok := os.LookupEnv(o.key); !ok {
			continue
		}
		value, err := getEnvAsUint64(o.key)
		if err != nil {
			return types.Params{}, err
		}
		*o.target = value
	}

	for key, target := range map[string]*uint32{
		"MAX_CONCURRENT_FARMS":       &params.MaxConcurrentFarms,
		"MAX_POSITIONS_PER_RECEIVER": &params.MaxPositionsPerReceiver,
	} {
		if _, ok := os.LookupEnv(key); !ok {
			continue
		}
		value, err := getEnvAsUint64(key)
		if err != nil {
			return types.Params{}, err
		}
		if value > uint64(^uint32(0)) {
			return types.Params{}, fmt.Errorf("environment variable %s exceeds uint32", key)
		}
		*target = uint32(value)
	}

	if err := params.Validate(); err != nil {
		return types.Params{}, err
	}

	log.Debug().
		Str("owner", params.Owner).
		Str("fee_collector", params.FeeCollector).
		Str("pool_manager", params.PoolManager).
		Str("create_farm_fee", params.CreateFarmFee.String()).
		Msg("Engine parameters loaded successfully.")
	return params, nil
}
