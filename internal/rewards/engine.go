// Package rewards walks the unclaimed epochs of a holder and splits every matching farm's
// emission by the holder's share of the aggregate weight at each epoch.
package rewards

import (
	"fmt"
	"sort"
	"strconv"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog"

	"github.com/elys-network/lpfarm/internal/ledger"
	"github.com/elys-network/lpfarm/internal/logger"
	"github.com/elys-network/lpfarm/internal/store"
	"github.com/elys-network/lpfarm/internal/types"
)

// FarmClaim is what one farm owes the holder for the walked range.
type FarmClaim struct {
	FarmIdentifier string
	Amount         sdk.Coin
}

// Result is a reward walk. Rewards is aggregated by denom; FarmClaims keeps the per-farm split.
type Result struct {
	types.RewardsResponse
	FarmClaims []FarmClaim
	// WalkedEpochs is the number of epochs in the walk window.
	WalkedEpochs uint64
}

// Engine computes and claims rewards.
type Engine struct {
	logger zerolog.Logger
}

// NewEngine creates a reward engine.
func NewEngine() *Engine {
	return &Engine{logger: logger.GetForComponent("reward_engine")}
}

type window struct {
	lpDenom string
	from    uint64
}

// Compute walks the holder's unclaimed epochs without writing anything.
func (e *Engine) Compute(txn *store.Txn, env types.Env, holder string) (Result, error) {
	result, _, err := e.walk(txn, env, holder)
	return result, err
}

// HasPendingRewards reports whether a claim would pay out or advance the walk.
func (e *Engine) HasPendingRewards(txn *store.Txn, env types.Env, holder string) (bool, error) {
	result, _, err := e.walk(txn, env, holder)
	if err != nil {
		return false, err
	}
	return result.Pending(), nil
}

// Claim performs the walk, records each farm's claimed amount, advances the holder's last
// claimed epoch and queues the payout on the receipt.
func (e *Engine) Claim(txn *store.Txn, env types.Env, holder string, receipt *types.Receipt) (Result, error) {
	open, err := txn.OpenPositions(holder)
	if err != nil {
		return Result{}, err
	}
	if len(open) == 0 {
		return Result{}, fmt.Errorf("%w: %s", types.ErrNoOpenPositions, holder)
	}

	result, farms, err := e.walk(txn, env, holder)
	if err != nil {
		return Result{}, err
	}

	for _, claim := range result.FarmClaims {
		farm := farms[claim.FarmIdentifier]
		farm.ClaimedAmount = farm.ClaimedAmount.Add(claim.Amount.Amount)
		if farm.ClaimedAmount.GT(farm.FarmAsset.Amount) {
			return Result{}, fmt.Errorf("%w: farm %s would pay out %s of %s",
				types.ErrArithmetic, farm.Identifier, farm.ClaimedAmount, farm.FarmAsset.Amount)
		}
		farm.LastEpochClaimed = max(farm.LastEpochClaimed, min(result.ThroughEpoch, farm.PreliminaryEndEpoch-1))
		if err := txn.SetFarm(farm); err != nil {
			return Result{}, err
		}
	}

	if result.WalkedEpochs > 0 {
		if err := txn.SetLastClaimedEpoch(holder, result.ThroughEpoch); err != nil {
			return Result{}, err
		}
	}

	for _, coin := range result.Rewards {
		receipt.AddTransfer(holder, coin)
	}
	receipt.AddAttribute("receiver", holder)
	receipt.AddAttribute("rewards", result.Rewards.String())
	receipt.AddAttribute("through_epoch", strconv.FormatUint(result.ThroughEpoch, 10))
	receipt.AddAttribute("complete", strconv.FormatBool(result.Complete))

	e.logger.Info().
		Str("holder", holder).
		Str("rewards", result.Rewards.String()).
		Uint64("through_epoch", result.ThroughEpoch).
		Bool("complete", result.Complete).
		Msg("Rewards claimed")
	return result, nil
}

// walk returns the result and the farms it read, keyed by identifier.
func (e *Engine) walk(txn *store.Txn, env types.Env, holder string) (Result, map[string]types.Farm, error) {
	result := Result{RewardsResponse: types.RewardsResponse{Rewards: sdk.NewCoins(), Complete: true}}
	farms := make(map[string]types.Farm)

	// epochs strictly before the current one are final
	if env.Epoch.ID == 0 {
		return result, farms, nil
	}
	lastFinished := env.Epoch.ID - 1
	result.ThroughEpoch = lastFinished

	windows, err := e.windows(txn, holder)
	if err != nil {
		return Result{}, nil, err
	}
	if len(windows) == 0 {
		return result, farms, nil
	}

	earliest := windows[0].from
	for _, w := range windows[1:] {
		earliest = min(earliest, w.from)
	}
	if earliest > lastFinished {
		return result, farms, nil
	}

	walkEnd := lastFinished
	if limit := env.Params.MaxClaimEpochs; limit > 0 && walkEnd-earliest+1 > limit {
		walkEnd = earliest + limit - 1
		result.Complete = false
	}
	result.ThroughEpoch = walkEnd
	result.WalkedEpochs = walkEnd - earliest + 1

	history := ledger.New(txn)
	for _, w := range windows {
		if w.from > walkEnd {
			continue
		}
		claims, err := e.walkDenom(txn, history, holder, w, walkEnd, farms)
		if err != nil {
			return Result{}, nil, err
		}
		for _, claim := range claims {
			result.FarmClaims = append(result.FarmClaims, claim)
			result.Rewards = result.Rewards.Add(claim.Amount)
		}
	}
	return result, farms, nil
}

// windows returns one walk window per distinct lp denom of the holder's open positions.
func (e *Engine) windows(txn *store.Txn, holder string) ([]window, error) {
	open, err := txn.OpenPositions(holder)
	if err != nil {
		return nil, err
	}
	denoms := make(map[string]struct{})
	for _, p := range open {
		denoms[p.LpAsset.Denom] = struct{}{}
	}
	sorted := make([]string, 0, len(denoms))
	for d := range denoms {
		sorted = append(sorted, d)
	}
	sort.Strings(sorted)

	lastClaimed, claimedBefore, err := txn.LastClaimedEpoch(holder)
	if err != nil {
		return nil, err
	}
	history := ledger.New(txn)

	windows := make([]window, 0, len(sorted))
	for _, denom := range sorted {
		if claimedBefore {
			windows = append(windows, window{lpDenom: denom, from: lastClaimed + 1})
			continue
		}
		first, found, err := history.First(holder, denom)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		windows = append(windows, window{lpDenom: denom, from: first})
	}
	return windows, nil
}

func (e *Engine) walkDenom(txn *store.Txn, history *ledger.History, holder string, w window, walkEnd uint64, seen map[string]types.Farm) ([]FarmClaim, error) {
	farms, err := txn.FarmsByLpDenom(w.lpDenom, "", 0)
	if err != nil {
		return nil, err
	}
	if len(farms) == 0 {
		return nil, nil
	}

	aggregate, err := history.Series(types.AggregateSubject, w.lpDenom, w.from, walkEnd)
	if err != nil {
		return nil, err
	}
	holderWeights, err := history.Series(holder, w.lpDenom, w.from, walkEnd)
	if err != nil {
		return nil, err
	}

	var claims []FarmClaim
	for _, farm := range farms {
		if farm.PreliminaryEndEpoch == 0 {
			continue
		}
		from := max(w.from, farm.StartEpoch)
		to := min(walkEnd, farm.PreliminaryEndEpoch-1)
		if from > to {
			continue
		}

		remaining := farm.Remaining()
		owed := sdkmath.ZeroInt()
		for epoch := from; epoch <= to && remaining.IsPositive(); epoch++ {
			total := aggregate.At(epoch)
			if total.IsZero() {
				continue
			}
			share := holderWeights.At(epoch)
			if share.IsZero() {
				continue
			}
			if share.GT(total) {
				return nil, fmt.Errorf("%w: %s holds %s of %s total weight on %s at epoch %d",
					types.ErrArithmetic, holder, share, total, w.lpDenom, epoch)
			}
			reward := farm.EmissionAt(epoch).Mul(share).Quo(total)
			if reward.GT(remaining) {
				reward = remaining
			}
			owed = owed.Add(reward)
			remaining = remaining.Sub(reward)
		}

		seen[farm.Identifier] = farm
		if owed.IsPositive() {
			claims = append(claims, FarmClaim{FarmIdentifier: farm.Identifier, Amount: sdk.NewCoin(farm.FarmAsset.Denom, owed)})
		}
		e.logger.Debug().
			Str("holder", holder).
			Str("farm", farm.Identifier).
			Uint64("from", from).
			Uint64("to", to).
			Str("owed", owed.String()).
			Msg("Walked farm")
	}
	return claims, nil
}
