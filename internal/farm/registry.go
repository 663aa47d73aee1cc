// Package farm manages funded reward pools: creation with its fee, expansion, expiry and closing.
package farm

import (
	"fmt"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog"

	"github.com/elys-network/lpfarm/internal/logger"
	"github.com/elys-network/lpfarm/internal/store"
	"github.com/elys-network/lpfarm/internal/types"
)

// Registry executes the farm transitions.
type Registry struct {
	logger zerolog.Logger
}

// NewRegistry creates a farm registry.
func NewRegistry() *Registry {
	return &Registry{logger: logger.GetForComponent("farm_registry")}
}

// IsExpired reports whether the farm's expiration window has passed. Expiry does not depend on
// how much of the farm was claimed.
func IsExpired(env types.Env, farm types.Farm) bool {
	endStart := env.Schedule.EpochStartTime(farm.PreliminaryEndEpoch)
	expiresAt := endStart.Add(time.Duration(env.Params.FarmExpirationTime) * time.Second)
	return !env.Now.Before(expiresAt)
}

// Create validates and stores a new farm. Expired farms on the same lp denom are closed first,
// refunding their own owners, so they do not hold a concurrency slot forever.
func (r *Registry) Create(txn *store.Txn, env types.Env, sender string, funds sdk.Coins, params types.FarmParams, receipt *types.Receipt) (types.Farm, error) {
	if err := types.ValidateAddress(sender); err != nil {
		return types.Farm{}, err
	}
	if params.FarmAsset.Amount.IsNil() || params.FarmAsset.Validate() != nil {
		return types.Farm{}, fmt.Errorf("%w: farm asset %s", types.ErrInvalidAmount, params.FarmAsset)
	}
	if err := env.LpDenoms.ValidateLpDenom(params.LpDenom); err != nil {
		return types.Farm{}, err
	}
	if params.Identifier != nil {
		if err := types.ValidateIdentifier(*params.Identifier); err != nil {
			return types.Farm{}, err
		}
	}

	existing, err := txn.FarmsByLpDenom(params.LpDenom, "", 0)
	if err != nil {
		return types.Farm{}, err
	}
	live := 0
	for _, f := range existing {
		if !IsExpired(env, f) {
			live++
			continue
		}
		if err := r.close(txn, f, receipt); err != nil {
			return types.Farm{}, err
		}
		r.logger.Info().Str("farm", f.Identifier).Str("owner", f.Owner).Msg("Closed expired farm while creating a new one")
	}
	if live >= int(env.Params.MaxConcurrentFarms) {
		return types.Farm{}, fmt.Errorf("%w: max %d on %s", types.ErrTooManyFarms, env.Params.MaxConcurrentFarms, params.LpDenom)
	}

	if params.FarmAsset.Amount.LT(env.Params.MinFarmAmount) {
		return types.Farm{}, fmt.Errorf("%w: min %s, got %s", types.ErrInvalidFarmAmount, env.Params.MinFarmAmount, params.FarmAsset.Amount)
	}

	if err := r.processCreationFee(env, sender, funds, params, receipt); err != nil {
		return types.Farm{}, err
	}
	if err := assertFarmAsset(env.Params.CreateFarmFee, funds, params); err != nil {
		return types.Farm{}, err
	}

	start, end, err := validateEpochs(env, params)
	if err != nil {
		return types.Farm{}, err
	}

	var identifier string
	if params.Identifier != nil {
		identifier = types.ExplicitFarmPrefix + *params.Identifier
	} else {
		next, err := txn.NextFarmID()
		if err != nil {
			return types.Farm{}, err
		}
		identifier = types.AutoFarmPrefix + strconv.FormatUint(next, 10)
	}
	if _, found, err := txn.GetFarm(identifier); err != nil {
		return types.Farm{}, err
	} else if found {
		return types.Farm{}, fmt.Errorf("%w: %s", types.ErrFarmAlreadyExists, identifier)
	}

	// the end epoch is excluded from emission
	emissionRate := params.FarmAsset.Amount.Quo(sdkmath.NewIntFromUint64(end - start))
	if !emissionRate.IsPositive() {
		return types.Farm{}, fmt.Errorf("%w: %s cannot be spread over %d epochs",
			types.ErrInvalidFarmAmount, params.FarmAsset, end-start)
	}

	var lastEpochClaimed uint64
	if start > 0 {
		lastEpochClaimed = start - 1
	}

	farm := types.Farm{
		Identifier:          identifier,
		Owner:               sender,
		LpDenom:             params.LpDenom,
		FarmAsset:           params.FarmAsset,
		ClaimedAmount:       sdkmath.ZeroInt(),
		EmissionRate:        emissionRate,
		StartEpoch:          start,
		PreliminaryEndEpoch: end,
		LastEpochClaimed:    lastEpochClaimed,
	}
	if err := txn.SetFarm(farm); err != nil {
		return types.Farm{}, err
	}

	receipt.AddAttribute("farm_identifier", farm.Identifier)
	receipt.AddAttribute("farm_creator", farm.Owner)
	receipt.AddAttribute("lp_denom", farm.LpDenom)
	receipt.AddAttribute("farm_asset", farm.FarmAsset.String())
	receipt.AddAttribute("start_epoch", strconv.FormatUint(start, 10))
	receipt.AddAttribute("preliminary_end_epoch", strconv.FormatUint(end, 10))
	receipt.AddAttribute("emission_rate", emissionRate.String())

	r.logger.Info().
		Str("farm", farm.Identifier).
		Str("lp_denom", farm.LpDenom).
		Str("asset", farm.FarmAsset.String()).
		Uint64("start_epoch", start).
		Uint64("end_epoch", end).
		Msg("Farm created")
	return farm, nil
}

// processCreationFee routes the creation fee to the fee collector. When the fee is paid in a
// denom other than the farm asset, any overpayment is refunded to the sender.
func (r *Registry) processCreationFee(env types.Env, sender string, funds sdk.Coins, params types.FarmParams, receipt *types.Receipt) error {
	fee := env.Params.CreateFarmFee
	if fee.Amount.IsNil() || fee.Amount.IsZero() {
		return nil
	}

	paid := funds.AmountOf(fee.Denom)
	if paid.IsZero() {
		return fmt.Errorf("%w: requires %s", types.ErrFarmFeeMissing, fee)
	}
	if paid.LT(fee.Amount) {
		return fmt.Errorf("%w: paid %s%s, requires %s", types.ErrFarmFeeNotPaid, paid, fee.Denom, fee)
	}
	if paid.GT(fee.Amount) {
		if fee.Denom == params.FarmAsset.Denom {
			if !params.FarmAsset.Amount.Add(fee.Amount).Equal(paid) {
				return fmt.Errorf("%w: sent %s%s, expected fee %s plus farm asset %s",
					types.ErrAssetMismatch, paid, fee.Denom, fee, params.FarmAsset)
			}
		} else {
			receipt.AddTransfer(sender, sdk.NewCoin(fee.Denom, paid.Sub(fee.Amount)))
		}
	}

	receipt.AddTransfer(env.Params.FeeCollector, fee)
	return nil
}

// assertFarmAsset checks the farm asset was sent in full and nothing else was attached.
func assertFarmAsset(fee sdk.Coin, funds sdk.Coins, params types.FarmParams) error {
	feeCharged := fee.Amount.IsPositive()
	for _, c := range funds {
		if c.Denom != params.FarmAsset.Denom && !(feeCharged && c.Denom == fee.Denom) {
			return fmt.Errorf("%w: unexpected %s", types.ErrAssetMismatch, c)
		}
	}

	sent := funds.AmountOf(params.FarmAsset.Denom)
	expected := params.FarmAsset.Amount
	if feeCharged && fee.Denom == params.FarmAsset.Denom {
		expected = expected.Add(fee.Amount)
	}
	if !sent.Equal(expected) {
		return fmt.Errorf("%w: sent %s%s, expected %s%s", types.ErrAssetMismatch, sent, params.FarmAsset.Denom, expected, params.FarmAsset.Denom)
	}
	return nil
}

func validateEpochs(env types.Env, params types.FarmParams) (uint64, uint64, error) {
	current := env.Epoch.ID

	start := current + 1
	if params.StartEpoch != nil {
		start = *params.StartEpoch
	}
	end := start + env.Params.DefaultFarmDuration
	if params.PreliminaryEndEpoch != nil {
		end = *params.PreliminaryEndEpoch
	}

	if start >= end {
		return 0, 0, fmt.Errorf("%w: start %d, end %d", types.ErrFarmStartAfterEnd, start, end)
	}
	if end <= current {
		return 0, 0, fmt.Errorf("%w: end %d, current %d", types.ErrFarmEndsInPast, end, current)
	}
	if start > current+env.Params.MaxFarmEpochBuffer {
		return 0, 0, fmt.Errorf("%w: start %d, latest allowed %d", types.ErrFarmStartTooFar, start, current+env.Params.MaxFarmEpochBuffer)
	}
	return start, end, nil
}

// Expand adds rewards to a live farm, extending its end epoch at the same emission rate.
func (r *Registry) Expand(txn *store.Txn, env types.Env, sender string, funds sdk.Coins, identifier string, receipt *types.Receipt) (types.Farm, error) {
	farm, found, err := txn.GetFarm(identifier)
	if err != nil {
		return types.Farm{}, err
	}
	if !found {
		return types.Farm{}, fmt.Errorf("%w: %s", types.ErrFarmNotFound, identifier)
	}
	if farm.Owner != sender {
		return types.Farm{}, fmt.Errorf("%w: only the farm owner can expand %s", types.ErrUnauthorized, identifier)
	}
	if IsExpired(env, farm) {
		return types.Farm{}, fmt.Errorf("%w: %s", types.ErrFarmAlreadyExpired, identifier)
	}
	if len(funds) != 1 {
		return types.Farm{}, fmt.Errorf("%w: got %s", types.ErrPayment, funds)
	}
	added := funds[0]
	if added.Denom != farm.FarmAsset.Denom {
		return types.Farm{}, fmt.Errorf("%w: farm emits %s, got %s", types.ErrAssetMismatch, farm.FarmAsset.Denom, added.Denom)
	}
	if !added.Amount.IsPositive() || !added.Amount.Mod(farm.EmissionRate).IsZero() {
		return types.Farm{}, fmt.Errorf("%w: %s is not a multiple of %s", types.ErrInvalidExpansionAmount, added.Amount, farm.EmissionRate)
	}

	extraEpochs := added.Amount.Quo(farm.EmissionRate)
	if !extraEpochs.IsUint64() || farm.PreliminaryEndEpoch+extraEpochs.Uint64() < farm.PreliminaryEndEpoch {
		return types.Farm{}, fmt.Errorf("%w: end epoch overflow", types.ErrArithmetic)
	}
	farm.FarmAsset.Amount = farm.FarmAsset.Amount.Add(added.Amount)
	farm.PreliminaryEndEpoch += extraEpochs.Uint64()

	if err := txn.SetFarm(farm); err != nil {
		return types.Farm{}, err
	}

	receipt.AddAttribute("farm_identifier", farm.Identifier)
	receipt.AddAttribute("expanded_by", added.String())
	receipt.AddAttribute("preliminary_end_epoch", strconv.FormatUint(farm.PreliminaryEndEpoch, 10))

	r.logger.Info().
		Str("farm", farm.Identifier).
		Str("added", added.String()).
		Uint64("end_epoch", farm.PreliminaryEndEpoch).
		Msg("Farm expanded")
	return farm, nil
}

// Close removes a farm and refunds what is left to its owner. Anyone may close an expired farm;
// otherwise only its owner or the admin.
func (r *Registry) Close(txn *store.Txn, env types.Env, sender, identifier string, receipt *types.Receipt) error {
	farm, found, err := txn.GetFarm(identifier)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", types.ErrFarmNotFound, identifier)
	}
	if !IsExpired(env, farm) && sender != farm.Owner && sender != env.Params.Owner {
		return fmt.Errorf("%w: only the farm owner or the admin can close live farm %s", types.ErrUnauthorized, identifier)
	}
	if err := r.close(txn, farm, receipt); err != nil {
		return err
	}
	receipt.AddAttribute("farm_identifier", farm.Identifier)
	r.logger.Info().Str("farm", farm.Identifier).Str("closed_by", sender).Msg("Farm closed")
	return nil
}

func (r *Registry) close(txn *store.Txn, farm types.Farm, receipt *types.Receipt) error {
	remaining := farm.Remaining()
	if remaining.IsNegative() {
		return fmt.Errorf("%w: farm %s claimed more than its total", types.ErrArithmetic, farm.Identifier)
	}
	receipt.AddTransfer(farm.Owner, sdk.NewCoin(farm.FarmAsset.Denom, remaining))
	return txn.DeleteFarm(farm)
}
