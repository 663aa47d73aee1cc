package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/lpfarm/internal/types"
)

func setRequired(t *testing.T) {
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("EPOCH_GENESIS", "2025-01-01T00:00:00Z")
	t.Setenv("EPOCH_DURATION", "24h")
}

func TestLoadConfig(t *testing.T) {
	setRequired(t)
	t.Setenv("LOOP_INTERVAL", "30s")
	t.Setenv("ENABLE_TX_ENDPOINT", "true")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("SETTLEMENT_ADDRESS", "settlement")

	require.NoError(t, LoadConfig())
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), EpochGenesis.UTC())
	assert.Equal(t, 24*time.Hour, EpochDuration)
	assert.Equal(t, 30*time.Second, LoopInterval)
	assert.True(t, EnableTxEndpoint)
	assert.True(t, JournalEnabled())
	assert.Equal(t, 5432, DBPort)
	assert.Equal(t, "settlement", SettlementAddress)
	assert.Equal(t, "console", LogFormat)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad genesis", "EPOCH_GENESIS", "yesterday"},
		{"zero duration", "EPOCH_DURATION", "0s"},
		{"bad duration", "EPOCH_DURATION", "daily"},
		{"bad loop interval", "LOOP_INTERVAL", "-1s"},
		{"bad bool", "ENABLE_TX_ENDPOINT", "perhaps"},
		{"bad db port", "DB_PORT", "five"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.value)
			require.Error(t, LoadConfig())
		})
	}
}

func TestLoadParameters(t *testing.T) {
	t.Setenv("PARAMS_OWNER", "owner")
	t.Setenv("FEE_COLLECTOR", "fee_collector")
	t.Setenv("POOL_MANAGER", "pool_manager")
	t.Setenv("CREATE_FARM_FEE", "500uom")
	t.Setenv("EMERGENCY_UNLOCK_PENALTY", "0.05")
	t.Setenv("MAX_CLAIM_EPOCHS", "30")
	t.Setenv("MAX_CONCURRENT_FARMS", "3")

	params, err := LoadParameters()
	require.NoError(t, err)
	assert.Equal(t, "500uom", params.CreateFarmFee.String())
	assert.Equal(t, "0.050000000000000000", params.EmergencyUnlockPenalty.String())
	assert.Equal(t, uint64(30), params.MaxClaimEpochs)
	assert.Equal(t, uint32(3), params.MaxConcurrentFarms)
	assert.Equal(t, DefaultFarmDuration, params.DefaultFarmDuration)
}

func TestLoadParametersErrors(t *testing.T) {
	t.Setenv("PARAMS_OWNER", "owner")
	t.Setenv("FEE_COLLECTOR", "fee_collector")
	t.Setenv("POOL_MANAGER", "pool_manager")

	t.Setenv("EMERGENCY_UNLOCK_PENALTY", "1.5")
	_, err := LoadParameters()
	require.ErrorIs(t, err, types.ErrInvalidParams)

	t.Setenv("EMERGENCY_UNLOCK_PENALTY", "0.02")
	t.Setenv("MAX_POSITIONS_PER_RECEIVER", "99999999999")
	_, err = LoadParameters()
	require.Error(t, err)
}

func TestDefaultParametersAreValid(t *testing.T) {
	require.NoError(t, DefaultParameters("owner", "fee_collector", "pool_manager").Validate())
}
