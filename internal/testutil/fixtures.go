// Package testutil holds fixtures shared by the engine's package tests.
package testutil

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/lpfarm/internal/config"
	"github.com/elys-network/lpfarm/internal/epoch"
	"github.com/elys-network/lpfarm/internal/lpdenom"
	"github.com/elys-network/lpfarm/internal/store"
	"github.com/elys-network/lpfarm/internal/types"
)

const (
	Owner        = "owner"
	FeeCollector = "fee_collector"
	PoolManager  = "pool_manager"
	Alice        = "alice"
	Bob          = "bob"
	Carol        = "carol"

	LpDenom      = "factory/pool_manager/1.uLP"
	OtherLpDenom = "factory/pool_manager/2.uLP"
	RewardDenom  = "uusdc"
	OtherReward  = "uatom"
	FeeDenom     = "uom"

	EpochDuration = 24 * time.Hour
)

// Genesis is the start of epoch 1 in every test schedule.
var Genesis = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// Schedule returns the daily test schedule.
func Schedule() epoch.Schedule {
	return epoch.Schedule{Genesis: Genesis, Duration: EpochDuration}
}

// Params returns default parameters with a 1000uom creation fee.
func Params() types.Params {
	params := config.DefaultParameters(Owner, FeeCollector, PoolManager)
	params.CreateFarmFee = sdk.NewCoin(FeeDenom, sdkmath.NewInt(1_000))
	return params
}

// Env returns an environment frozen at the start of the given epoch.
func Env(epochID uint64, params types.Params) types.Env {
	schedule := Schedule()
	return types.Env{
		Epoch:    types.Epoch{ID: epochID, StartTime: schedule.EpochStartTime(epochID)},
		Now:      schedule.EpochStartTime(epochID),
		Params:   params,
		Schedule: schedule,
		LpDenoms: lpdenom.NewFactoryValidator(params.PoolManager),
	}
}

// OpenStore opens an in-memory store closed at the end of the test.
func OpenStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Coins builds sdk.Coins from alternating denom/amount pairs.
func Coins(pairs ...interface{}) sdk.Coins {
	coins := sdk.NewCoins()
	for i := 0; i+1 < len(pairs); i += 2 {
		coins = coins.Add(sdk.NewInt64Coin(pairs[i].(string), int64(pairs[i+1].(int))))
	}
	return coins
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
