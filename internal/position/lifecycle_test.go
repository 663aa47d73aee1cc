package position

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/lpfarm/internal/farm"
	"github.com/elys-network/lpfarm/internal/ledger"
	"github.com/elys-network/lpfarm/internal/rewards"
	"github.com/elys-network/lpfarm/internal/store"
	"github.com/elys-network/lpfarm/internal/testutil"
	"github.com/elys-network/lpfarm/internal/types"
)

const (
	oneDay   uint64 = 86_400
	halfYear uint64 = 15_778_463
	oneYear  uint64 = 31_556_926
)

type harness struct {
	t         *testing.T
	store     *store.Store
	lifecycle *Lifecycle
	engine    *rewards.Engine
	params    types.Params
}

func newHarness(t *testing.T) *harness {
	engine := rewards.NewEngine()
	return &harness{
		t:         t,
		store:     testutil.OpenStore(t),
		lifecycle: NewLifecycle(engine),
		engine:    engine,
		params:    testutil.Params(),
	}
}

func (h *harness) env(epoch uint64) types.Env {
	return testutil.Env(epoch, h.params)
}

func (h *harness) create(env types.Env, sender string, funds sdk.Coins, req CreateRequest) (types.Position, *types.Receipt, error) {
	receipt := types.NewReceipt("create_position")
	var p types.Position
	err := h.store.Update(func(txn *store.Txn) error {
		var err error
		p, err = h.lifecycle.Create(txn, env, sender, funds, req, receipt)
		return err
	})
	return p, receipt, err
}

func (h *harness) mustCreate(epoch uint64, holder string, amount int, duration uint64) types.Position {
	h.t.Helper()
	p, _, err := h.create(h.env(epoch), holder, testutil.Coins(testutil.LpDenom, amount), CreateRequest{UnlockingDuration: duration})
	require.NoError(h.t, err)
	return p
}

func (h *harness) fill(env types.Env, sender string, funds sdk.Coins, req CreateRequest) (types.Position, error) {
	var p types.Position
	err := h.store.Update(func(txn *store.Txn) error {
		var err error
		p, err = h.lifecycle.Fill(txn, env, sender, funds, req, types.NewReceipt("fill_position"))
		return err
	})
	return p, err
}

func (h *harness) expand(env types.Env, sender string, funds sdk.Coins, id string) (types.Position, error) {
	var p types.Position
	err := h.store.Update(func(txn *store.Txn) error {
		var err error
		p, err = h.lifecycle.Expand(txn, env, sender, funds, id, types.NewReceipt("expand_position"))
		return err
	})
	return p, err
}

func (h *harness) close(env types.Env, sender, id string, amount *sdk.Coin) (types.Position, error) {
	var p types.Position
	err := h.store.Update(func(txn *store.Txn) error {
		var err error
		p, err = h.lifecycle.Close(txn, env, sender, id, amount, types.NewReceipt("close_position"))
		return err
	})
	return p, err
}

func (h *harness) withdraw(env types.Env, sender, id string, emergency bool) (*types.Receipt, error) {
	receipt := types.NewReceipt("withdraw_position")
	err := h.store.Update(func(txn *store.Txn) error {
		_, err := h.lifecycle.Withdraw(txn, env, sender, id, emergency, receipt)
		return err
	})
	return receipt, err
}

func (h *harness) position(id string) (types.Position, bool) {
	var p types.Position
	var found bool
	require.NoError(h.t, h.store.View(func(txn *store.Txn) error {
		var err error
		p, found, err = txn.GetPosition(id)
		return err
	}))
	return p, found
}

func (h *harness) weightAt(subject string, epoch uint64) int64 {
	h.t.Helper()
	var w sdkmath.Int
	require.NoError(h.t, h.store.View(func(txn *store.Txn) error {
		var err error
		w, err = ledger.New(txn).At(subject, testutil.LpDenom, epoch)
		return err
	}))
	return w.Int64()
}

func (h *harness) hasHistory(holder string) bool {
	var exists bool
	require.NoError(h.t, h.store.View(func(txn *store.Txn) error {
		var err error
		exists, err = ledger.New(txn).HasAny(holder, testutil.LpDenom)
		return err
	}))
	return exists
}

// assertAggregate checks that the aggregate at epoch equals the sum of the holders' weights.
func (h *harness) assertAggregate(epoch uint64, holders ...string) {
	h.t.Helper()
	sum := int64(0)
	for _, holder := range holders {
		sum += h.weightAt(holder, epoch)
	}
	assert.Equal(h.t, sum, h.weightAt(types.AggregateSubject, epoch), "aggregate at epoch %d", epoch)
}

func TestCreatePositionWritesNextEpochWeight(t *testing.T) {
	h := newHarness(t)

	p, receipt, err := h.create(h.env(10), testutil.Alice, testutil.Coins(testutil.LpDenom, 1_000), CreateRequest{UnlockingDuration: oneYear})
	require.NoError(t, err)
	assert.Equal(t, "p-1", p.Identifier)
	assert.Equal(t, testutil.Alice, p.Receiver)
	assert.Equal(t, types.PositionOpen, p.Status)
	assert.Nil(t, p.ExpiresAt)
	assert.Empty(t, receipt.Transfers)
	id, _ := receipt.Attribute("position_identifier")
	assert.Equal(t, "p-1", id)

	assert.Equal(t, int64(0), h.weightAt(testutil.Alice, 10))
	assert.Equal(t, int64(15_999), h.weightAt(testutil.Alice, 11))
	assert.Equal(t, int64(15_999), h.weightAt(types.AggregateSubject, 11))

	h.mustCreate(10, testutil.Alice, 1_000, oneDay)
	h.mustCreate(10, testutil.Bob, 2_000, oneDay)
	assert.Equal(t, int64(16_999), h.weightAt(testutil.Alice, 11))
	h.assertAggregate(11, testutil.Alice, testutil.Bob)
}

func TestCreatePositionValidation(t *testing.T) {
	h := newHarness(t)
	env := h.env(10)
	lp := testutil.Coins(testutil.LpDenom, 1_000)

	_, _, err := h.create(env, testutil.Alice, testutil.Coins(testutil.LpDenom, 1_000, testutil.OtherLpDenom, 1_000), CreateRequest{UnlockingDuration: oneDay})
	require.ErrorIs(t, err, types.ErrPayment)

	_, _, err = h.create(env, testutil.Alice, sdk.NewCoins(), CreateRequest{UnlockingDuration: oneDay})
	require.ErrorIs(t, err, types.ErrPayment)

	_, _, err = h.create(env, testutil.Alice, testutil.Coins(testutil.RewardDenom, 1_000), CreateRequest{UnlockingDuration: oneDay})
	require.ErrorIs(t, err, types.ErrInvalidLpDenom)

	_, _, err = h.create(env, testutil.Alice, lp, CreateRequest{UnlockingDuration: oneDay - 1})
	require.ErrorIs(t, err, types.ErrInvalidUnlockingDuration)

	_, _, err = h.create(env, testutil.Alice, lp, CreateRequest{UnlockingDuration: oneYear + 1})
	require.ErrorIs(t, err, types.ErrInvalidUnlockingDuration)

	_, _, err = h.create(env, testutil.Alice, lp, CreateRequest{UnlockingDuration: oneDay, Receiver: testutil.Ptr(testutil.Bob)})
	require.ErrorIs(t, err, types.ErrUnauthorized)

	_, _, err = h.create(env, testutil.Alice, lp, CreateRequest{UnlockingDuration: oneDay, Identifier: testutil.Ptr("not valid")})
	require.ErrorIs(t, err, types.ErrInvalidIdentifier)

	assert.Equal(t, int64(0), h.weightAt(types.AggregateSubject, 11))
}

func TestCreatePositionForAnotherReceiver(t *testing.T) {
	h := newHarness(t)

	p, _, err := h.create(h.env(10), testutil.PoolManager, testutil.Coins(testutil.LpDenom, 1_000),
		CreateRequest{UnlockingDuration: oneDay, Receiver: testutil.Ptr(testutil.Bob), Identifier: testutil.Ptr("bob_lp")})
	require.NoError(t, err)
	assert.Equal(t, "u-bob_lp", p.Identifier)
	assert.Equal(t, testutil.Bob, p.Receiver)
	assert.Equal(t, int64(1_000), h.weightAt(testutil.Bob, 11))
	assert.Equal(t, int64(0), h.weightAt(testutil.PoolManager, 11))

	_, _, err = h.create(h.env(10), testutil.Bob, testutil.Coins(testutil.LpDenom, 1_000),
		CreateRequest{UnlockingDuration: oneDay, Identifier: testutil.Ptr("bob_lp")})
	require.ErrorIs(t, err, types.ErrPositionAlreadyExists)
}

func TestCreatePositionLimit(t *testing.T) {
	h := newHarness(t)
	h.params.MaxPositionsPerReceiver = 2

	h.mustCreate(10, testutil.Alice, 1_000, oneDay)
	h.mustCreate(10, testutil.Alice, 1_000, oneDay)

	_, _, err := h.create(h.env(10), testutil.Alice, testutil.Coins(testutil.LpDenom, 1_000), CreateRequest{UnlockingDuration: oneDay})
	require.ErrorIs(t, err, types.ErrMaxPositionsExceeded)
	assert.Contains(t, err.Error(), "maximum of 2")

	// closing positions do not count against the open limit
	_, err = h.close(h.env(10), testutil.Alice, "p-1", nil)
	require.NoError(t, err)
	h.mustCreate(10, testutil.Alice, 1_000, oneDay)
}

func TestFillCreatesThenExpands(t *testing.T) {
	h := newHarness(t)
	req := CreateRequest{UnlockingDuration: oneDay, Receiver: testutil.Ptr(testutil.Bob), Identifier: testutil.Ptr("pool")}

	p, err := h.fill(h.env(10), testutil.PoolManager, testutil.Coins(testutil.LpDenom, 1_000), req)
	require.NoError(t, err)
	assert.Equal(t, "u-pool", p.Identifier)

	p, err = h.fill(h.env(11), testutil.PoolManager, testutil.Coins(testutil.LpDenom, 500), req)
	require.NoError(t, err)
	assert.Equal(t, "u-pool", p.Identifier)
	assert.Equal(t, int64(1_500), p.LpAsset.Amount.Int64())

	assert.Equal(t, int64(1_000), h.weightAt(testutil.Bob, 11))
	assert.Equal(t, int64(1_500), h.weightAt(testutil.Bob, 12))

	// without an identifier every fill opens a new position
	p, err = h.fill(h.env(11), testutil.Alice, testutil.Coins(testutil.LpDenom, 500), CreateRequest{UnlockingDuration: oneDay})
	require.NoError(t, err)
	assert.Equal(t, "p-1", p.Identifier)
}

func TestExpandPosition(t *testing.T) {
	h := newHarness(t)
	p := h.mustCreate(10, testutil.Alice, 1_000, oneDay)

	_, err := h.expand(h.env(10), testutil.Carol, testutil.Coins(testutil.LpDenom, 500), p.Identifier)
	require.ErrorIs(t, err, types.ErrUnauthorized)

	_, err = h.expand(h.env(10), testutil.Alice, testutil.Coins(testutil.OtherLpDenom, 500), p.Identifier)
	require.ErrorIs(t, err, types.ErrAssetMismatch)

	_, err = h.expand(h.env(10), testutil.Alice, testutil.Coins(testutil.LpDenom, 500), "p-404")
	require.ErrorIs(t, err, types.ErrPositionNotFound)

	expanded, err := h.expand(h.env(11), testutil.PoolManager, testutil.Coins(testutil.LpDenom, 500), p.Identifier)
	require.NoError(t, err)
	assert.Equal(t, int64(1_500), expanded.LpAsset.Amount.Int64())
	assert.Equal(t, int64(1_000), h.weightAt(testutil.Alice, 11))
	assert.Equal(t, int64(1_500), h.weightAt(testutil.Alice, 12))

	_, err = h.close(h.env(12), testutil.Alice, p.Identifier, nil)
	require.NoError(t, err)
	_, err = h.expand(h.env(12), testutil.Alice, testutil.Coins(testutil.LpDenom, 500), p.Identifier)
	require.ErrorIs(t, err, types.ErrPositionAlreadyClosed)
}

func TestFullCloseStartsUnlockingAndReconciles(t *testing.T) {
	h := newHarness(t)
	p := h.mustCreate(10, testutil.Alice, 1_000, oneYear)
	h.mustCreate(10, testutil.Bob, 1_000, oneDay)

	_, err := h.close(h.env(12), testutil.Bob, p.Identifier, nil)
	require.ErrorIs(t, err, types.ErrUnauthorized)

	closed, err := h.close(h.env(12), testutil.Alice, p.Identifier, nil)
	require.NoError(t, err)
	assert.Equal(t, p.Identifier, closed.Identifier)
	assert.Equal(t, types.PositionClosing, closed.Status)
	require.NotNil(t, closed.ExpiresAt)
	assert.True(t, h.env(12).Now.Add(time.Duration(oneYear)*time.Second).Equal(*closed.ExpiresAt))

	assert.False(t, h.hasHistory(testutil.Alice))
	assert.Equal(t, int64(1_000), h.weightAt(types.AggregateSubject, 13))
	h.assertAggregate(13, testutil.Alice, testutil.Bob)

	_, err = h.close(h.env(12), testutil.Alice, p.Identifier, nil)
	require.ErrorIs(t, err, types.ErrPositionAlreadyClosed)
}

func TestPartialCloseSpawnsClosingChild(t *testing.T) {
	h := newHarness(t)
	p := h.mustCreate(10, testutil.Alice, 1_000, oneDay)

	_, err := h.close(h.env(11), testutil.Alice, p.Identifier, testutil.Ptr(sdk.NewInt64Coin(testutil.LpDenom, 1_001)))
	require.ErrorIs(t, err, types.ErrInvalidAmount)
	_, err = h.close(h.env(11), testutil.Alice, p.Identifier, testutil.Ptr(sdk.NewInt64Coin(testutil.OtherLpDenom, 100)))
	require.ErrorIs(t, err, types.ErrAssetMismatch)

	child, err := h.close(h.env(11), testutil.Alice, p.Identifier, testutil.Ptr(sdk.NewInt64Coin(testutil.LpDenom, 400)))
	require.NoError(t, err)
	assert.Equal(t, "p-2", child.Identifier)
	assert.Equal(t, types.PositionClosing, child.Status)
	assert.Equal(t, int64(400), child.LpAsset.Amount.Int64())
	assert.Equal(t, oneDay, child.UnlockingDuration)

	parent, found := h.position(p.Identifier)
	require.True(t, found)
	assert.True(t, parent.IsOpen())
	assert.Equal(t, int64(600), parent.LpAsset.Amount.Int64())

	assert.True(t, h.hasHistory(testutil.Alice))
	assert.Equal(t, int64(1_000), h.weightAt(testutil.Alice, 11))
	assert.Equal(t, int64(600), h.weightAt(testutil.Alice, 12))
	h.assertAggregate(12, testutil.Alice)

	// closing the whole remainder through an explicit amount is a full close
	closed, err := h.close(h.env(11), testutil.Alice, p.Identifier, testutil.Ptr(sdk.NewInt64Coin(testutil.LpDenom, 600)))
	require.NoError(t, err)
	assert.Equal(t, p.Identifier, closed.Identifier)
	assert.False(t, h.hasHistory(testutil.Alice))
}

func TestCloseLimitCountsClosingPositions(t *testing.T) {
	h := newHarness(t)
	h.params.MaxPositionsPerReceiver = 1
	p := h.mustCreate(10, testutil.Alice, 1_000, oneDay)

	_, err := h.close(h.env(10), testutil.Alice, p.Identifier, testutil.Ptr(sdk.NewInt64Coin(testutil.LpDenom, 100)))
	require.NoError(t, err)
	_, err = h.close(h.env(10), testutil.Alice, p.Identifier, testutil.Ptr(sdk.NewInt64Coin(testutil.LpDenom, 100)))
	require.ErrorIs(t, err, types.ErrMaxPositionsExceeded)
}

func TestCloseRequiresClaimedRewards(t *testing.T) {
	h := newHarness(t)
	p := h.mustCreate(10, testutil.Alice, 1_000, oneDay)
	require.NoError(t, h.store.Update(func(txn *store.Txn) error {
		_, err := farm.NewRegistry().Create(txn, h.env(10), testutil.Owner,
			testutil.Coins(testutil.FeeDenom, 1_000, testutil.RewardDenom, 8_000),
			types.FarmParams{
				LpDenom:             testutil.LpDenom,
				StartEpoch:          testutil.Ptr(uint64(12)),
				PreliminaryEndEpoch: testutil.Ptr(uint64(16)),
				FarmAsset:           sdk.NewInt64Coin(testutil.RewardDenom, 8_000),
			}, types.NewReceipt("create_farm"))
		return err
	}))

	_, err := h.close(h.env(14), testutil.Alice, p.Identifier, nil)
	require.ErrorIs(t, err, types.ErrPendingRewards)
	_, err = h.withdraw(h.env(14), testutil.Alice, p.Identifier, true)
	require.ErrorIs(t, err, types.ErrPendingRewards)

	require.NoError(t, h.store.Update(func(txn *store.Txn) error {
		_, err := h.engine.Claim(txn, h.env(14), testutil.Alice, types.NewReceipt("claim_rewards"))
		return err
	}))
	_, err = h.close(h.env(14), testutil.Alice, p.Identifier, nil)
	require.NoError(t, err)
}

func TestWithdrawAfterUnlock(t *testing.T) {
	h := newHarness(t)
	p := h.mustCreate(10, testutil.Alice, 1_000, oneDay)

	_, err := h.withdraw(h.env(10), testutil.Alice, p.Identifier, false)
	require.ErrorIs(t, err, types.ErrPositionNotClosed)

	_, err = h.close(h.env(10), testutil.Alice, p.Identifier, nil)
	require.NoError(t, err)

	early := h.env(10)
	early.Now = early.Now.Add(time.Hour)
	_, err = h.withdraw(early, testutil.Alice, p.Identifier, false)
	require.ErrorIs(t, err, types.ErrPositionNotExpired)
	assert.Contains(t, err.Error(), "emergency")

	_, err = h.withdraw(h.env(11), testutil.Bob, p.Identifier, false)
	require.ErrorIs(t, err, types.ErrUnauthorized)

	receipt, err := h.withdraw(h.env(11), testutil.Alice, p.Identifier, false)
	require.NoError(t, err)
	assert.Equal(t, testutil.Coins(testutil.LpDenom, 1_000), receipt.TransfersTo(testutil.Alice))
	assert.Len(t, receipt.Transfers, 1)

	_, found := h.position(p.Identifier)
	assert.False(t, found)

	_, err = h.withdraw(h.env(11), testutil.Alice, p.Identifier, false)
	require.ErrorIs(t, err, types.ErrPositionNotFound)
}

func TestEmergencyWithdrawOpenPosition(t *testing.T) {
	h := newHarness(t)
	p := h.mustCreate(10, testutil.Alice, 1_000_000, oneYear)
	h.mustCreate(10, testutil.Alice, 1_000, oneDay)
	assert.Equal(t, int64(15_999_999+1_000), h.weightAt(testutil.Alice, 11))

	receipt, err := h.withdraw(h.env(11), testutil.Alice, p.Identifier, true)
	require.NoError(t, err)
	assert.Equal(t, testutil.Coins(testutil.LpDenom, 319_999), receipt.TransfersTo(testutil.FeeCollector))
	assert.Equal(t, testutil.Coins(testutil.LpDenom, 680_001), receipt.TransfersTo(testutil.Alice))
	fraction, _ := receipt.Attribute("penalty_fraction")
	assert.Equal(t, "0.319999980000000000", fraction)

	assert.Equal(t, int64(1_000), h.weightAt(testutil.Alice, 12))
	h.assertAggregate(12, testutil.Alice)
}

func TestEmergencyWithdrawClosingPosition(t *testing.T) {
	h := newHarness(t)
	p := h.mustCreate(10, testutil.Alice, 1_000_000, oneYear)
	_, err := h.close(h.env(10), testutil.Alice, p.Identifier, nil)
	require.NoError(t, err)

	halfway := h.env(10)
	halfway.Now = halfway.Now.Add(time.Duration(halfYear) * time.Second)
	receipt, err := h.withdraw(halfway, testutil.Alice, p.Identifier, true)
	require.NoError(t, err)
	assert.Equal(t, testutil.Coins(testutil.LpDenom, 159_999), receipt.TransfersTo(testutil.FeeCollector))
	assert.Equal(t, testutil.Coins(testutil.LpDenom, 840_001), receipt.TransfersTo(testutil.Alice))
}

func TestEmergencyPenalty(t *testing.T) {
	now := testutil.Genesis
	open := func(amount int64, duration uint64) types.Position {
		return types.Position{
			LpAsset:           sdk.NewInt64Coin(testutil.LpDenom, amount),
			UnlockingDuration: duration,
			Status:            types.PositionOpen,
		}
	}
	closing := func(amount int64, duration uint64, left time.Duration) types.Position {
		p := open(amount, duration)
		p.StartClosing(now.Add(left - time.Duration(duration)*time.Second))
		return p
	}

	twoPercent := sdkmath.LegacyNewDecWithPrec(2, 2)
	cases := []struct {
		name     string
		position types.Position
		base     sdkmath.LegacyDec
		penalty  int64
	}{
		{"open one year", open(1_000, oneYear), twoPercent, 319},
		{"open one year large", open(1_000_000, oneYear), twoPercent, 319_999},
		{"open one day", open(1_000_000, oneDay), twoPercent, 20_000},
		{"capped", open(1_000_000, oneYear), sdkmath.LegacyNewDecWithPrec(1, 1), 900_000},
		{"half the lock left", closing(1_000_000, oneYear, time.Duration(halfYear)*time.Second), twoPercent, 159_999},
		{"expired", closing(1_000_000, oneYear, 0), twoPercent, 0},
		{"no base penalty", open(1_000_000, oneYear), sdkmath.LegacyZeroDec(), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fraction, penalty, err := EmergencyPenalty(tc.position, tc.base, now)
			require.NoError(t, err)
			assert.Equal(t, tc.penalty, penalty.Int64())
			assert.True(t, fraction.LTE(types.MaxPenalty))
		})
	}
}

func TestAggregateTracksHoldersThroughChurn(t *testing.T) {
	h := newHarness(t)
	holders := []string{testutil.Alice, testutil.Bob, testutil.Carol}

	a := h.mustCreate(10, testutil.Alice, 1_000, oneYear)
	b := h.mustCreate(10, testutil.Bob, 3_000, halfYear)
	h.assertAggregate(11, holders...)

	_, err := h.close(h.env(11), testutil.Alice, a.Identifier, testutil.Ptr(sdk.NewInt64Coin(testutil.LpDenom, 250)))
	require.NoError(t, err)
	c := h.mustCreate(11, testutil.Carol, 700, oneDay)
	h.assertAggregate(12, holders...)

	_, err = h.withdraw(h.env(12), testutil.Bob, b.Identifier, true)
	require.NoError(t, err)
	_, err = h.expand(h.env(12), testutil.Carol, testutil.Coins(testutil.LpDenom, 300), c.Identifier)
	require.NoError(t, err)
	h.assertAggregate(13, holders...)

	_, err = h.close(h.env(13), testutil.Alice, a.Identifier, nil)
	require.NoError(t, err)
	_, err = h.close(h.env(13), testutil.Carol, c.Identifier, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), h.weightAt(types.AggregateSubject, 14))

	h.mustCreate(14, testutil.Bob, 1_000, oneDay)
	assert.Equal(t, int64(1_000), h.weightAt(types.AggregateSubject, 15))
	h.assertAggregate(15, holders...)
}
