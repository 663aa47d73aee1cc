package state

import (
	"context"
	"testing"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/lpfarm/internal/testutil"
	"github.com/elys-network/lpfarm/internal/types"
)

func TestJournal(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	journal := NewJournal()

	t.Run("checkpoint never moves backwards", func(t *testing.T) {
		_, found, err := journal.LoadCheckpoint(ctx)
		require.NoError(t, err)
		assert.False(t, found)

		require.NoError(t, journal.SaveCheckpoint(ctx, 12))
		require.NoError(t, journal.SaveCheckpoint(ctx, 9))
		epoch, found, err := journal.LoadCheckpoint(ctx)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, uint64(12), epoch)

		require.NoError(t, ResetEpochCheckpoint(ctx))
		_, found, err = journal.LoadCheckpoint(ctx)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("parameters are versioned", func(t *testing.T) {
		params := testutil.Params()
		version, err := SaveParameters(ctx, params)
		require.NoError(t, err)
		assert.Equal(t, 1, version)

		version, err = SaveParameters(ctx, params)
		require.NoError(t, err)
		assert.Equal(t, 1, version, "identical parameters do not create a version")

		params.MaxClaimEpochs = 5
		require.NoError(t, journal.SaveParameters(ctx, params))

		active, version, err := LoadActiveParameters(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, version)
		assert.Equal(t, uint64(5), active.MaxClaimEpochs)
		assert.True(t, active.EmergencyUnlockPenalty.Equal(params.EmergencyUnlockPenalty))
		assert.Equal(t, params.CreateFarmFee.String(), active.CreateFarmFee.String())

		count, err := CountParameterVersions(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("receipts round trip and filter", func(t *testing.T) {
		base := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

		claim := types.NewReceipt("claim_rewards")
		claim.AddAttribute("receiver", testutil.Alice)
		claim.AddTransfer(testutil.Alice, sdk.NewInt64Coin(testutil.RewardDenom, 8_000))

		withdraw := types.NewReceipt("withdraw_position")
		withdraw.AddTransfer(testutil.Bob, sdk.NewInt64Coin(testutil.LpDenom, 680_001))
		withdraw.AddTransfer(testutil.FeeCollector, sdk.NewInt64Coin(testutil.LpDenom, 319_999))

		records := []types.ReceiptRecord{
			{Action: "claim_rewards", Sender: testutil.Alice, Epoch: 16, Success: true, Receipt: claim, Timestamp: base},
			{Action: "create_farm", Sender: testutil.Bob, Epoch: 16, Error: "farm creation fee was not sent", Timestamp: base.Add(time.Second)},
			{Action: "withdraw_position", Sender: testutil.Bob, Epoch: 17, Success: true, Receipt: withdraw, Timestamp: base.Add(2 * time.Second)},
		}
		for _, record := range records {
			require.NoError(t, journal.RecordReceipt(ctx, record))
		}

		all, err := journal.RecentReceipts(ctx, ReceiptFilter{}, 0)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "withdraw_position", all[0].Action)
		assert.Equal(t, uint64(17), all[0].Epoch)
		require.NotNil(t, all[0].Receipt)
		assert.Equal(t, int64(319_999), all[0].Receipt.TransfersTo(testutil.FeeCollector).AmountOf(testutil.LpDenom).Int64())

		failed := all[1]
		assert.False(t, failed.Success)
		assert.Nil(t, failed.Receipt)
		assert.Equal(t, "farm creation fee was not sent", failed.Error)

		claims := all[2]
		require.NotNil(t, claims.Receipt)
		receiver, _ := claims.Receipt.Attribute("receiver")
		assert.Equal(t, testutil.Alice, receiver)

		byAction, err := journal.RecentReceipts(ctx, ReceiptFilter{Action: "create_farm"}, 10)
		require.NoError(t, err)
		require.Len(t, byAction, 1)
		assert.Equal(t, testutil.Bob, byAction[0].Sender)

		// the fee collector never sent anything but received a penalty
		byRecipient, err := journal.RecentReceipts(ctx, ReceiptFilter{Address: testutil.FeeCollector}, 10)
		require.NoError(t, err)
		require.Len(t, byRecipient, 1)
		assert.Equal(t, "withdraw_position", byRecipient[0].Action)

		summaries, err := journal.ActionSummaries(ctx)
		require.NoError(t, err)
		require.Len(t, summaries, 3)
		assert.Equal(t, "claim_rewards", summaries[0].Action)
		assert.Equal(t, "create_farm", summaries[1].Action)
		assert.Equal(t, 1, summaries[1].Failed)
		assert.Equal(t, 0, summaries[1].Succeeded)
		assert.Equal(t, 1, summaries[2].Total)
	})

	t.Run("drop schema", func(t *testing.T) {
		require.NoError(t, DropSchema())
		_, _, err := journal.LoadCheckpoint(ctx)
		require.Error(t, err)
		require.NoError(t, EnsureSchema())
	})
}
