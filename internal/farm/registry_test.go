package farm

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/lpfarm/internal/store"
	"github.com/elys-network/lpfarm/internal/testutil"
	"github.com/elys-network/lpfarm/internal/types"
)

type harness struct {
	t        *testing.T
	store    *store.Store
	registry *Registry
	params   types.Params
}

func newHarness(t *testing.T) *harness {
	return &harness{t: t, store: testutil.OpenStore(t), registry: NewRegistry(), params: testutil.Params()}
}

func (h *harness) create(epoch uint64, sender string, funds sdk.Coins, params types.FarmParams) (types.Farm, *types.Receipt, error) {
	receipt := types.NewReceipt("create_farm")
	var farm types.Farm
	err := h.store.Update(func(txn *store.Txn) error {
		var err error
		farm, err = h.registry.Create(txn, testutil.Env(epoch, h.params), sender, funds, params, receipt)
		return err
	})
	return farm, receipt, err
}

func (h *harness) expand(epoch uint64, sender string, funds sdk.Coins, id string) (types.Farm, error) {
	var farm types.Farm
	err := h.store.Update(func(txn *store.Txn) error {
		var err error
		farm, err = h.registry.Expand(txn, testutil.Env(epoch, h.params), sender, funds, id, types.NewReceipt("expand_farm"))
		return err
	})
	return farm, err
}

func (h *harness) close(epoch uint64, sender, id string) (*types.Receipt, error) {
	receipt := types.NewReceipt("close_farm")
	err := h.store.Update(func(txn *store.Txn) error {
		return h.registry.Close(txn, testutil.Env(epoch, h.params), sender, id, receipt)
	})
	return receipt, err
}

func (h *harness) farm(id string) (types.Farm, bool) {
	var farm types.Farm
	var found bool
	require.NoError(h.t, h.store.View(func(txn *store.Txn) error {
		var err error
		farm, found, err = txn.GetFarm(id)
		return err
	}))
	return farm, found
}

func farmParams(amount int64, start, end uint64) types.FarmParams {
	return types.FarmParams{
		LpDenom:             testutil.LpDenom,
		StartEpoch:          testutil.Ptr(start),
		PreliminaryEndEpoch: testutil.Ptr(end),
		FarmAsset:           sdk.NewInt64Coin(testutil.RewardDenom, amount),
	}
}

func TestCreateFarm(t *testing.T) {
	h := newHarness(t)

	farm, receipt, err := h.create(10, testutil.Alice, testutil.Coins(testutil.FeeDenom, 1_000, testutil.RewardDenom, 8_000), farmParams(8_000, 12, 16))
	require.NoError(t, err)

	assert.Equal(t, "f-1", farm.Identifier)
	assert.Equal(t, testutil.Alice, farm.Owner)
	assert.Equal(t, int64(2_000), farm.EmissionRate.Int64())
	assert.Equal(t, uint64(11), farm.LastEpochClaimed)
	assert.True(t, farm.ClaimedAmount.IsZero())

	assert.Equal(t, testutil.Coins(testutil.FeeDenom, 1_000), receipt.TransfersTo(testutil.FeeCollector))
	assert.Len(t, receipt.Transfers, 1)

	stored, found := h.farm("f-1")
	require.True(t, found)
	assert.Equal(t, farm.Owner, stored.Owner)
	assert.True(t, farm.FarmAsset.IsEqual(stored.FarmAsset))
	assert.True(t, stored.EmissionRate.Equal(farm.EmissionRate))
	assert.Equal(t, uint64(16), stored.PreliminaryEndEpoch)

	total := sdkmath.ZeroInt()
	for e := uint64(0); e < 30; e++ {
		total = total.Add(stored.EmissionAt(e))
	}
	assert.Equal(t, int64(8_000), total.Int64())
	assert.True(t, stored.EmissionAt(16).IsZero())
}

func TestCreateFarmDefaultsEpochs(t *testing.T) {
	h := newHarness(t)

	params := types.FarmParams{LpDenom: testutil.LpDenom, FarmAsset: sdk.NewInt64Coin(testutil.RewardDenom, 14_005)}
	farm, _, err := h.create(10, testutil.Alice, testutil.Coins(testutil.FeeDenom, 1_000, testutil.RewardDenom, 14_005), params)
	require.NoError(t, err)

	assert.Equal(t, uint64(11), farm.StartEpoch)
	assert.Equal(t, uint64(25), farm.PreliminaryEndEpoch)
	assert.Equal(t, int64(1_000), farm.EmissionRate.Int64())

	emitted := farm.EmissionRate.MulRaw(int64(farm.PreliminaryEndEpoch - farm.StartEpoch))
	assert.True(t, emitted.LTE(farm.FarmAsset.Amount))
}

func TestCreateFarmExplicitIdentifierCannotBeReused(t *testing.T) {
	h := newHarness(t)
	funds := testutil.Coins(testutil.FeeDenom, 1_000, testutil.RewardDenom, 4_000)
	params := farmParams(4_000, 12, 16)
	params.Identifier = testutil.Ptr("my_farm")

	farm, _, err := h.create(10, testutil.Alice, funds, params)
	require.NoError(t, err)
	assert.Equal(t, "m-my_farm", farm.Identifier)

	_, _, err = h.create(10, testutil.Bob, funds, params)
	require.ErrorIs(t, err, types.ErrFarmAlreadyExists)

	stored, _ := h.farm("m-my_farm")
	assert.Equal(t, testutil.Alice, stored.Owner)
	assert.Equal(t, int64(4_000), stored.FarmAsset.Amount.Int64())

	params.Identifier = testutil.Ptr("bad id!")
	_, _, err = h.create(10, testutil.Bob, funds, params)
	require.ErrorIs(t, err, types.ErrInvalidIdentifier)
}

func TestCreateFarmFee(t *testing.T) {
	params := farmParams(4_000, 12, 16)

	t.Run("missing", func(t *testing.T) {
		h := newHarness(t)
		_, _, err := h.create(10, testutil.Alice, testutil.Coins(testutil.RewardDenom, 4_000), params)
		require.ErrorIs(t, err, types.ErrFarmFeeMissing)
	})

	t.Run("underpaid", func(t *testing.T) {
		h := newHarness(t)
		_, _, err := h.create(10, testutil.Alice, testutil.Coins(testutil.FeeDenom, 999, testutil.RewardDenom, 4_000), params)
		require.ErrorIs(t, err, types.ErrFarmFeeNotPaid)
	})

	t.Run("overpaid in another denom is refunded", func(t *testing.T) {
		h := newHarness(t)
		_, receipt, err := h.create(10, testutil.Alice, testutil.Coins(testutil.FeeDenom, 1_500, testutil.RewardDenom, 4_000), params)
		require.NoError(t, err)
		assert.Equal(t, testutil.Coins(testutil.FeeDenom, 500), receipt.TransfersTo(testutil.Alice))
		assert.Equal(t, testutil.Coins(testutil.FeeDenom, 1_000), receipt.TransfersTo(testutil.FeeCollector))
	})

	t.Run("same denom requires the exact sum", func(t *testing.T) {
		h := newHarness(t)
		h.params.CreateFarmFee = sdk.NewInt64Coin(testutil.RewardDenom, 1_000)

		_, receipt, err := h.create(10, testutil.Alice, testutil.Coins(testutil.RewardDenom, 5_000), params)
		require.NoError(t, err)
		assert.Equal(t, testutil.Coins(testutil.RewardDenom, 1_000), receipt.TransfersTo(testutil.FeeCollector))

		params := params
		params.Identifier = testutil.Ptr("second")
		_, _, err = h.create(10, testutil.Alice, testutil.Coins(testutil.RewardDenom, 5_001), params)
		require.ErrorIs(t, err, types.ErrAssetMismatch)

		_, _, err = h.create(10, testutil.Alice, testutil.Coins(testutil.RewardDenom, 4_000), params)
		require.ErrorIs(t, err, types.ErrAssetMismatch)
	})

	t.Run("zero fee", func(t *testing.T) {
		h := newHarness(t)
		h.params.CreateFarmFee = sdk.NewInt64Coin(testutil.FeeDenom, 0)
		_, receipt, err := h.create(10, testutil.Alice, testutil.Coins(testutil.RewardDenom, 4_000), params)
		require.NoError(t, err)
		assert.Empty(t, receipt.Transfers)
	})

	t.Run("extra denoms are rejected", func(t *testing.T) {
		h := newHarness(t)
		_, _, err := h.create(10, testutil.Alice, testutil.Coins(testutil.FeeDenom, 1_000, testutil.RewardDenom, 4_000, testutil.OtherReward, 1), params)
		require.ErrorIs(t, err, types.ErrAssetMismatch)
	})

	t.Run("farm asset short", func(t *testing.T) {
		h := newHarness(t)
		_, _, err := h.create(10, testutil.Alice, testutil.Coins(testutil.FeeDenom, 1_000, testutil.RewardDenom, 3_999), params)
		require.ErrorIs(t, err, types.ErrAssetMismatch)
	})
}

func TestCreateFarmValidation(t *testing.T) {
	funds := func(amount int) sdk.Coins {
		return testutil.Coins(testutil.FeeDenom, 1_000, testutil.RewardDenom, amount)
	}

	cases := []struct {
		name   string
		params types.FarmParams
		funds  sdk.Coins
		err    error
	}{
		{"below minimum", farmParams(999, 12, 16), funds(999), types.ErrInvalidFarmAmount},
		{"start equals end", farmParams(4_000, 12, 12), funds(4_000), types.ErrFarmStartAfterEnd},
		{"start after end", farmParams(4_000, 14, 12), funds(4_000), types.ErrFarmStartAfterEnd},
		{"ends in the past", farmParams(4_000, 5, 10), funds(4_000), types.ErrFarmEndsInPast},
		{"starts too far", farmParams(4_000, 25, 40), funds(4_000), types.ErrFarmStartTooFar},
		{"rate rounds to zero", farmParams(1_000, 11, 1_200), funds(1_000), types.ErrInvalidFarmAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			_, _, err := h.create(10, testutil.Alice, tc.funds, tc.params)
			require.ErrorIs(t, err, tc.err)
		})
	}

	t.Run("untrusted lp denom", func(t *testing.T) {
		h := newHarness(t)
		params := farmParams(4_000, 12, 16)
		params.LpDenom = "factory/somebody/1.uLP"
		_, _, err := h.create(10, testutil.Alice, funds(4_000), params)
		require.ErrorIs(t, err, types.ErrInvalidLpDenom)
	})

	t.Run("start within buffer", func(t *testing.T) {
		h := newHarness(t)
		_, _, err := h.create(10, testutil.Alice, funds(4_000), farmParams(4_000, 24, 28))
		require.NoError(t, err)
	})
}

func TestCreateFarmConcurrencyCapClosesExpiredFarms(t *testing.T) {
	h := newHarness(t)
	h.params.MaxConcurrentFarms = 2
	funds := testutil.Coins(testutil.FeeDenom, 1_000, testutil.RewardDenom, 4_000)

	_, _, err := h.create(10, testutil.Alice, funds, farmParams(4_000, 12, 16))
	require.NoError(t, err)
	_, _, err = h.create(10, testutil.Bob, funds, farmParams(4_000, 12, 20))
	require.NoError(t, err)

	_, _, err = h.create(10, testutil.Carol, funds, farmParams(4_000, 12, 16))
	require.ErrorIs(t, err, types.ErrTooManyFarms)
	assert.Contains(t, err.Error(), "max 2")

	// f-1 ends at epoch 16; with a thirty day window it expires at the start of epoch 46
	_, _, err = h.create(45, testutil.Carol, funds, farmParams(4_000, 46, 50))
	require.ErrorIs(t, err, types.ErrTooManyFarms)

	_, receipt, err := h.create(46, testutil.Carol, funds, farmParams(4_000, 47, 51))
	require.NoError(t, err)
	assert.Equal(t, testutil.Coins(testutil.RewardDenom, 4_000), receipt.TransfersTo(testutil.Alice))

	_, found := h.farm("f-1")
	assert.False(t, found)
	_, found = h.farm("f-2")
	assert.True(t, found)
}

func TestExpandFarm(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.create(10, testutil.Alice, testutil.Coins(testutil.FeeDenom, 1_000, testutil.RewardDenom, 8_000), farmParams(8_000, 12, 16))
	require.NoError(t, err)

	_, err = h.expand(10, testutil.Bob, testutil.Coins(testutil.RewardDenom, 4_000), "f-1")
	require.ErrorIs(t, err, types.ErrUnauthorized)

	_, err = h.expand(10, testutil.Alice, testutil.Coins(testutil.RewardDenom, 3_000), "f-1")
	require.ErrorIs(t, err, types.ErrInvalidExpansionAmount)

	_, err = h.expand(10, testutil.Alice, testutil.Coins(testutil.OtherReward, 4_000), "f-1")
	require.ErrorIs(t, err, types.ErrAssetMismatch)

	_, err = h.expand(10, testutil.Alice, testutil.Coins(testutil.RewardDenom, 4_000, testutil.OtherReward, 1), "f-1")
	require.ErrorIs(t, err, types.ErrPayment)

	_, err = h.expand(10, testutil.Alice, testutil.Coins(testutil.RewardDenom, 4_000), "f-404")
	require.ErrorIs(t, err, types.ErrFarmNotFound)

	farm, err := h.expand(10, testutil.Alice, testutil.Coins(testutil.RewardDenom, 4_000), "f-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(18), farm.PreliminaryEndEpoch)
	assert.Equal(t, int64(12_000), farm.FarmAsset.Amount.Int64())
	assert.Equal(t, int64(2_000), farm.EmissionRate.Int64())

	// ends at 18, expires at the start of epoch 48
	_, err = h.expand(48, testutil.Alice, testutil.Coins(testutil.RewardDenom, 2_000), "f-1")
	require.ErrorIs(t, err, types.ErrFarmAlreadyExpired)
}

func TestCloseFarm(t *testing.T) {
	h := newHarness(t)
	funds := testutil.Coins(testutil.FeeDenom, 1_000, testutil.RewardDenom, 8_000)
	for i := 0; i < 3; i++ {
		_, _, err := h.create(10, testutil.Alice, funds, farmParams(8_000, 12, 16))
		require.NoError(t, err)
	}

	_, err := h.close(10, testutil.Bob, "f-1")
	require.ErrorIs(t, err, types.ErrUnauthorized)

	receipt, err := h.close(10, testutil.Alice, "f-1")
	require.NoError(t, err)
	assert.Equal(t, testutil.Coins(testutil.RewardDenom, 8_000), receipt.TransfersTo(testutil.Alice))

	receipt, err = h.close(10, testutil.Owner, "f-2")
	require.NoError(t, err)
	assert.Equal(t, testutil.Coins(testutil.RewardDenom, 8_000), receipt.TransfersTo(testutil.Alice))

	// partially claimed farms refund only the remainder, and expired farms can be closed by anyone
	require.NoError(t, h.store.Update(func(txn *store.Txn) error {
		farm, _, err := txn.GetFarm("f-3")
		require.NoError(t, err)
		farm.ClaimedAmount = sdkmath.NewInt(6_000)
		return txn.SetFarm(farm)
	}))
	receipt, err = h.close(46, testutil.Bob, "f-3")
	require.NoError(t, err)
	assert.Equal(t, testutil.Coins(testutil.RewardDenom, 2_000), receipt.TransfersTo(testutil.Alice))
	assert.Empty(t, receipt.TransfersTo(testutil.Bob))

	_, err = h.close(46, testutil.Alice, "f-3")
	require.ErrorIs(t, err, types.ErrFarmNotFound)
}

func TestIsExpired(t *testing.T) {
	params := testutil.Params()
	farm := types.Farm{PreliminaryEndEpoch: 16}

	assert.False(t, IsExpired(testutil.Env(16, params), farm))
	assert.False(t, IsExpired(testutil.Env(45, params), farm))
	assert.True(t, IsExpired(testutil.Env(46, params), farm))

	env := testutil.Env(45, params)
	env.Now = env.Now.Add(testutil.EpochDuration - 1)
	assert.False(t, IsExpired(env, farm))
}
