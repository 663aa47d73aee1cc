// Package position runs the position state machine and keeps the weight ledger in step with it.
//
// Every mutation recomputes the holder's weight for the touched lp denom and writes it for the
// next epoch. When a holder is left without open positions the holder's history and last
// claimed epoch are dropped, so a later re-entry starts a fresh walk.
package position

import (
	"fmt"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog"

	"github.com/elys-network/lpfarm/internal/ledger"
	"github.com/elys-network/lpfarm/internal/logger"
	"github.com/elys-network/lpfarm/internal/rewards"
	"github.com/elys-network/lpfarm/internal/store"
	"github.com/elys-network/lpfarm/internal/types"
	"github.com/elys-network/lpfarm/internal/weight"
)

// Lifecycle executes position transitions.
type Lifecycle struct {
	logger  zerolog.Logger
	rewards *rewards.Engine
}

// NewLifecycle creates a position lifecycle that checks pending rewards with engine.
func NewLifecycle(engine *rewards.Engine) *Lifecycle {
	return &Lifecycle{
		logger:  logger.GetForComponent("position_lifecycle"),
		rewards: engine,
	}
}

// CreateRequest carries the optional inputs of a create or fill.
type CreateRequest struct {
	Identifier        *string
	UnlockingDuration uint64
	Receiver          *string
}

func singleCoin(funds sdk.Coins) (sdk.Coin, error) {
	if len(funds) != 1 || !funds[0].Amount.IsPositive() {
		return sdk.Coin{}, fmt.Errorf("%w: expected exactly one coin, got %s", types.ErrPayment, funds)
	}
	return funds[0], nil
}

// Create locks the sent lp tokens in a new open position.
func (l *Lifecycle) Create(txn *store.Txn, env types.Env, sender string, funds sdk.Coins, req CreateRequest, receipt *types.Receipt) (types.Position, error) {
	if err := types.ValidateAddress(sender); err != nil {
		return types.Position{}, err
	}
	lpAsset, err := singleCoin(funds)
	if err != nil {
		return types.Position{}, err
	}
	if err := env.LpDenoms.ValidateLpDenom(lpAsset.Denom); err != nil {
		return types.Position{}, err
	}
	if req.UnlockingDuration < env.Params.MinUnlockingDuration || req.UnlockingDuration > env.Params.MaxUnlockingDuration {
		return types.Position{}, fmt.Errorf("%w: %d outside [%d, %d]", types.ErrInvalidUnlockingDuration,
			req.UnlockingDuration, env.Params.MinUnlockingDuration, env.Params.MaxUnlockingDuration)
	}

	receiver := sender
	if req.Receiver != nil && *req.Receiver != sender {
		if sender != env.Params.PoolManager {
			return types.Position{}, fmt.Errorf("%w: only the pool manager can open positions for others", types.ErrUnauthorized)
		}
		if err := types.ValidateAddress(*req.Receiver); err != nil {
			return types.Position{}, err
		}
		receiver = *req.Receiver
	}

	var identifier string
	if req.Identifier != nil {
		if err := types.ValidateIdentifier(*req.Identifier); err != nil {
			return types.Position{}, err
		}
		identifier = types.ExplicitPositionPrefix + *req.Identifier
	} else {
		next, err := txn.NextPositionID()
		if err != nil {
			return types.Position{}, err
		}
		identifier = types.AutoPositionPrefix + strconv.FormatUint(next, 10)
	}
	if _, found, err := txn.GetPosition(identifier); err != nil {
		return types.Position{}, err
	} else if found {
		return types.Position{}, fmt.Errorf("%w: %s", types.ErrPositionAlreadyExists, identifier)
	}

	open, _, err := txn.CountPositions(receiver)
	if err != nil {
		return types.Position{}, err
	}
	if open >= int(env.Params.MaxPositionsPerReceiver) {
		return types.Position{}, fmt.Errorf("%w: %s already holds the maximum of %d open positions",
			types.ErrMaxPositionsExceeded, receiver, env.Params.MaxPositionsPerReceiver)
	}

	position := types.Position{
		Identifier:        identifier,
		Receiver:          receiver,
		LpAsset:           lpAsset,
		UnlockingDuration: req.UnlockingDuration,
		Status:            types.PositionOpen,
	}
	if err := txn.SetPosition(position); err != nil {
		return types.Position{}, err
	}
	if err := l.refreshWeight(txn, env, receiver, lpAsset.Denom); err != nil {
		return types.Position{}, err
	}

	receipt.AddAttribute("position_identifier", position.Identifier)
	receipt.AddAttribute("receiver", position.Receiver)
	receipt.AddAttribute("lp_asset", position.LpAsset.String())
	receipt.AddAttribute("unlocking_duration", strconv.FormatUint(position.UnlockingDuration, 10))

	l.logger.Info().
		Str("position", position.Identifier).
		Str("receiver", receiver).
		Str("lp_asset", lpAsset.String()).
		Uint64("unlocking_duration", req.UnlockingDuration).
		Msg("Position created")
	return position, nil
}

// Fill tops up the named position when it exists and is open for the receiver, and creates
// it otherwise.
func (l *Lifecycle) Fill(txn *store.Txn, env types.Env, sender string, funds sdk.Coins, req CreateRequest, receipt *types.Receipt) (types.Position, error) {
	if req.Identifier != nil {
		receiver := sender
		if req.Receiver != nil {
			receiver = *req.Receiver
		}
		existing, found, err := txn.GetPosition(types.ExplicitPositionPrefix + *req.Identifier)
		if err != nil {
			return types.Position{}, err
		}
		if found && existing.IsOpen() && existing.Receiver == receiver {
			return l.Expand(txn, env, sender, funds, existing.Identifier, receipt)
		}
	}
	return l.Create(txn, env, sender, funds, req, receipt)
}

// Expand adds lp tokens of the same denom to an open position.
func (l *Lifecycle) Expand(txn *store.Txn, env types.Env, sender string, funds sdk.Coins, identifier string, receipt *types.Receipt) (types.Position, error) {
	position, err := getPosition(txn, identifier)
	if err != nil {
		return types.Position{}, err
	}
	if sender != position.Receiver && sender != env.Params.PoolManager {
		return types.Position{}, fmt.Errorf("%w: %s does not own %s", types.ErrUnauthorized, sender, identifier)
	}
	if !position.IsOpen() {
		return types.Position{}, fmt.Errorf("%w: %s", types.ErrPositionAlreadyClosed, identifier)
	}
	added, err := singleCoin(funds)
	if err != nil {
		return types.Position{}, err
	}
	if added.Denom != position.LpAsset.Denom {
		return types.Position{}, fmt.Errorf("%w: position holds %s, got %s", types.ErrAssetMismatch, position.LpAsset.Denom, added.Denom)
	}

	position.LpAsset = position.LpAsset.Add(added)
	if err := txn.SetPosition(position); err != nil {
		return types.Position{}, err
	}
	if err := l.refreshWeight(txn, env, position.Receiver, position.LpAsset.Denom); err != nil {
		return types.Position{}, err
	}

	receipt.AddAttribute("position_identifier", position.Identifier)
	receipt.AddAttribute("expanded_by", added.String())
	receipt.AddAttribute("lp_asset", position.LpAsset.String())

	l.logger.Info().Str("position", position.Identifier).Str("added", added.String()).Msg("Position expanded")
	return position, nil
}

// Close starts unlocking a position. A partial close detaches amount into a new closing
// position and leaves the rest open. Rewards must be claimed first.
func (l *Lifecycle) Close(txn *store.Txn, env types.Env, sender, identifier string, amount *sdk.Coin, receipt *types.Receipt) (types.Position, error) {
	position, err := getPosition(txn, identifier)
	if err != nil {
		return types.Position{}, err
	}
	if sender != position.Receiver {
		return types.Position{}, fmt.Errorf("%w: only the receiver can close %s", types.ErrUnauthorized, identifier)
	}
	if !position.IsOpen() {
		return types.Position{}, fmt.Errorf("%w: %s", types.ErrPositionAlreadyClosed, identifier)
	}
	if err := l.requireNoPendingRewards(txn, env, position.Receiver); err != nil {
		return types.Position{}, err
	}

	_, closing, err := txn.CountPositions(position.Receiver)
	if err != nil {
		return types.Position{}, err
	}
	if closing >= int(env.Params.MaxPositionsPerReceiver) {
		return types.Position{}, fmt.Errorf("%w: %s already has the maximum of %d closing positions",
			types.ErrMaxPositionsExceeded, position.Receiver, env.Params.MaxPositionsPerReceiver)
	}

	closed := position
	if amount != nil {
		if amount.Denom != position.LpAsset.Denom {
			return types.Position{}, fmt.Errorf("%w: position holds %s, asked to close %s", types.ErrAssetMismatch, position.LpAsset.Denom, amount.Denom)
		}
		if amount.Amount.IsNil() || !amount.Amount.IsPositive() || amount.Amount.GT(position.LpAsset.Amount) {
			return types.Position{}, fmt.Errorf("%w: cannot close %s of %s", types.ErrInvalidAmount, amount, position.LpAsset)
		}
	}

	if amount != nil && amount.Amount.LT(position.LpAsset.Amount) {
		next, err := txn.NextPositionID()
		if err != nil {
			return types.Position{}, err
		}
		closed = types.Position{
			Identifier:        types.AutoPositionPrefix + strconv.FormatUint(next, 10),
			Receiver:          position.Receiver,
			LpAsset:           *amount,
			UnlockingDuration: position.UnlockingDuration,
		}
		if _, found, err := txn.GetPosition(closed.Identifier); err != nil {
			return types.Position{}, err
		} else if found {
			return types.Position{}, fmt.Errorf("%w: %s", types.ErrPositionAlreadyExists, closed.Identifier)
		}
		position.LpAsset = position.LpAsset.Sub(*amount)
		if err := txn.SetPosition(position); err != nil {
			return types.Position{}, err
		}
	}

	closed.StartClosing(env.Now)
	if err := txn.SetPosition(closed); err != nil {
		return types.Position{}, err
	}
	if err := l.refreshWeight(txn, env, closed.Receiver, closed.LpAsset.Denom); err != nil {
		return types.Position{}, err
	}
	if err := l.reconcile(txn, closed.Receiver, closed.LpAsset.Denom); err != nil {
		return types.Position{}, err
	}

	receipt.AddAttribute("position_identifier", closed.Identifier)
	receipt.AddAttribute("closed_amount", closed.LpAsset.String())
	receipt.AddAttribute("expires_at", closed.ExpiresAt.Format(time.RFC3339))
	if closed.Identifier != position.Identifier {
		receipt.AddAttribute("parent_position", position.Identifier)
	}

	l.logger.Info().
		Str("position", closed.Identifier).
		Str("amount", closed.LpAsset.String()).
		Time("expires_at", *closed.ExpiresAt).
		Msg("Position closing")
	return closed, nil
}

// Withdraw returns the principal of a position and removes it. Without emergency the position
// must be closing and past its unlock time; with emergency it may be withdrawn at any time at
// the cost of a penalty paid to the fee collector.
func (l *Lifecycle) Withdraw(txn *store.Txn, env types.Env, sender, identifier string, emergency bool, receipt *types.Receipt) (types.Position, error) {
	position, err := getPosition(txn, identifier)
	if err != nil {
		return types.Position{}, err
	}
	if sender != position.Receiver {
		return types.Position{}, fmt.Errorf("%w: only the receiver can withdraw %s", types.ErrUnauthorized, identifier)
	}
	if err := l.requireNoPendingRewards(txn, env, position.Receiver); err != nil {
		return types.Position{}, err
	}

	payout := position.LpAsset
	if emergency {
		fraction, penalty, err := EmergencyPenalty(position, env.Params.EmergencyUnlockPenalty, env.Now)
		if err != nil {
			return types.Position{}, err
		}
		payout = position.LpAsset.SubAmount(penalty)
		receipt.AddTransfer(env.Params.FeeCollector, sdk.NewCoin(position.LpAsset.Denom, penalty))
		receipt.AddAttribute("penalty_fraction", fraction.String())
		receipt.AddAttribute("penalty", sdk.NewCoin(position.LpAsset.Denom, penalty).String())
	} else {
		if position.IsOpen() {
			return types.Position{}, fmt.Errorf("%w: close %s and wait for it to unlock, or use an emergency unlock",
				types.ErrPositionNotClosed, identifier)
		}
		if !position.IsExpired(env.Now) {
			return types.Position{}, fmt.Errorf("%w: %s unlocks at %s, use an emergency unlock to withdraw earlier",
				types.ErrPositionNotExpired, identifier, position.ExpiresAt.Format(time.RFC3339))
		}
	}

	wasOpen := position.IsOpen()
	if err := txn.DeletePosition(position); err != nil {
		return types.Position{}, err
	}
	if wasOpen {
		if err := l.refreshWeight(txn, env, position.Receiver, position.LpAsset.Denom); err != nil {
			return types.Position{}, err
		}
	}
	if err := l.reconcile(txn, position.Receiver, position.LpAsset.Denom); err != nil {
		return types.Position{}, err
	}

	receipt.AddTransfer(position.Receiver, payout)
	receipt.AddAttribute("position_identifier", position.Identifier)
	receipt.AddAttribute("withdrawn", payout.String())
	receipt.AddAttribute("emergency", strconv.FormatBool(emergency))

	l.logger.Info().
		Str("position", position.Identifier).
		Str("payout", payout.String()).
		Bool("emergency", emergency).
		Msg("Position withdrawn")
	return position, nil
}

// EmergencyPenalty returns the penalty fraction and amount for withdrawing position at now:
// base * remaining lock share * duration multiplier, capped at types.MaxPenalty. Open positions
// have their whole lock ahead of them; expired ones pay nothing.
func EmergencyPenalty(position types.Position, base sdkmath.LegacyDec, now time.Time) (sdkmath.LegacyDec, sdkmath.Int, error) {
	remaining := sdkmath.LegacyOneDec()
	if !position.IsOpen() {
		switch {
		case position.ExpiresAt == nil || !now.Before(*position.ExpiresAt):
			remaining = sdkmath.LegacyZeroDec()
		case position.UnlockingDuration > 0:
			left := uint64(position.ExpiresAt.Sub(now) / time.Second)
			remaining = sdkmath.LegacyNewDecFromInt(sdkmath.NewIntFromUint64(left)).
				QuoTruncate(sdkmath.LegacyNewDecFromInt(sdkmath.NewIntFromUint64(position.UnlockingDuration)))
			if remaining.GT(sdkmath.LegacyOneDec()) {
				remaining = sdkmath.LegacyOneDec()
			}
		}
	}

	multiplier, err := weight.Multiplier(position.LpAsset.Amount, position.UnlockingDuration)
	if err != nil {
		return sdkmath.LegacyDec{}, sdkmath.Int{}, err
	}

	fraction := base.MulTruncate(remaining).MulTruncate(multiplier)
	if fraction.GT(types.MaxPenalty) {
		fraction = types.MaxPenalty
	}
	penalty := sdkmath.LegacyNewDecFromInt(position.LpAsset.Amount).MulTruncate(fraction).TruncateInt()
	return fraction, penalty, nil
}

// HolderWeight sums the weight of holder's open positions in lpDenom.
func HolderWeight(txn *store.Txn, holder, lpDenom string) (sdkmath.Int, error) {
	open, err := txn.OpenPositions(holder)
	if err != nil {
		return sdkmath.Int{}, err
	}
	total := sdkmath.ZeroInt()
	for _, p := range open {
		if p.LpAsset.Denom != lpDenom {
			continue
		}
		w, err := weight.Calculate(p.LpAsset.Amount, p.UnlockingDuration)
		if err != nil {
			return sdkmath.Int{}, err
		}
		total = total.Add(w)
	}
	return total, nil
}

// refreshWeight writes the holder's current open weight for the next epoch.
func (l *Lifecycle) refreshWeight(txn *store.Txn, env types.Env, holder, lpDenom string) error {
	w, err := HolderWeight(txn, holder, lpDenom)
	if err != nil {
		return err
	}
	target := env.NextEpoch()
	if err := ledger.New(txn).ApplyHolderWeight(holder, lpDenom, w, target); err != nil {
		return err
	}
	l.logger.Debug().Str("holder", holder).Str("lp_denom", lpDenom).Str("weight", w.String()).Uint64("epoch", target).Msg("Holder weight updated")
	return nil
}

// reconcile drops the holder's history for lpDenom once no open position remains in it, and the
// last claimed epoch once no open position remains at all.
func (l *Lifecycle) reconcile(txn *store.Txn, holder, lpDenom string) error {
	open, err := txn.OpenPositions(holder)
	if err != nil {
		return err
	}
	inDenom := false
	for _, p := range open {
		if p.LpAsset.Denom == lpDenom {
			inDenom = true
			break
		}
	}
	if !inDenom {
		if err := ledger.New(txn).Clear(holder, lpDenom); err != nil {
			return err
		}
	}
	if len(open) == 0 {
		if err := txn.DeleteLastClaimedEpoch(holder); err != nil {
			return err
		}
	}
	return nil
}

func (l *Lifecycle) requireNoPendingRewards(txn *store.Txn, env types.Env, holder string) error {
	pending, err := l.rewards.HasPendingRewards(txn, env, holder)
	if err != nil {
		return err
	}
	if pending {
		return fmt.Errorf("%w: claim the rewards of %s first", types.ErrPendingRewards, holder)
	}
	return nil
}

func getPosition(txn *store.Txn, identifier string) (types.Position, error) {
	position, found, err := txn.GetPosition(identifier)
	if err != nil {
		return types.Position{}, err
	}
	if !found {
		return types.Position{}, fmt.Errorf("%w: %s", types.ErrPositionNotFound, identifier)
	}
	return position, nil
}
