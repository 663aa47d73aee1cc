// Package manager is the single entry point of the engine: it sequences actions into store
// transactions, reacts to epoch changes and serves the read-only queries.
package manager

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/elys-network/lpfarm/internal/epoch"
	"github.com/elys-network/lpfarm/internal/farm"
	"github.com/elys-network/lpfarm/internal/ledger"
	"github.com/elys-network/lpfarm/internal/logger"
	"github.com/elys-network/lpfarm/internal/lpdenom"
	"github.com/elys-network/lpfarm/internal/metrics"
	"github.com/elys-network/lpfarm/internal/position"
	"github.com/elys-network/lpfarm/internal/rewards"
	"github.com/elys-network/lpfarm/internal/store"
	"github.com/elys-network/lpfarm/internal/types"
)

// Journal persists action outcomes, parameter versions and the epoch checkpoint outside the state store.
type Journal interface {
	RecordReceipt(ctx context.Context, record types.ReceiptRecord) error
	SaveParameters(ctx context.Context, params types.Params) error
	SaveCheckpoint(ctx context.Context, epoch uint64) error
	LoadCheckpoint(ctx context.Context) (uint64, bool, error)
}

// Manager runs the engine. Actions are serialized; queries read a consistent snapshot.
type Manager struct {
	logger    zerolog.Logger
	store     *store.Store
	clock     epoch.Clock
	journal   Journal
	lpDenoms  types.LpDenomValidator
	farms     *farm.Registry
	positions *position.Lifecycle
	rewards   *rewards.Engine

	mu        sync.Mutex
	lastEpoch uint64
	tickCount int
}

// Config holds the dependencies of a Manager.
type Config struct {
	Store *store.Store
	Clock epoch.Clock
	// Params seeds the store on first start. Stored parameters win afterwards.
	Params types.Params
	// LpDenoms overrides the factory denom check built from the pool manager parameter.
	LpDenoms types.LpDenomValidator
	// Journal is optional.
	Journal Journal
}

// New creates a manager, storing cfg.Params when the store holds none yet.
func New(ctx context.Context, cfg Config) (*Manager, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("manager configuration validation failed: %w", err)
	}

	engine := rewards.NewEngine()
	m := &Manager{
		logger:    logger.GetForComponent("manager"),
		store:     cfg.Store,
		clock:     cfg.Clock,
		journal:   cfg.Journal,
		lpDenoms:  cfg.LpDenoms,
		farms:     farm.NewRegistry(),
		positions: position.NewLifecycle(engine),
		rewards:   engine,
	}

	err := m.store.Update(func(txn *store.Txn) error {
		stored, found, err := txn.Params()
		if err != nil {
			return err
		}
		if found {
			m.logger.Info().Str("owner", stored.Owner).Msg("Using stored parameters")
			return nil
		}
		if err := cfg.Params.Validate(); err != nil {
			return err
		}
		m.logger.Info().Str("owner", cfg.Params.Owner).Msg("Storing initial parameters")
		return txn.SetParams(cfg.Params)
	})
	if err != nil {
		return nil, fmt.Errorf("initialize parameters: %w", err)
	}

	m.archiveParams(ctx)
	if m.journal != nil {
		checkpoint, found, err := m.journal.LoadCheckpoint(ctx)
		if err != nil {
			m.logger.Warn().Err(err).Msg("Could not load epoch checkpoint, starting from scratch")
		} else if found {
			m.lastEpoch = checkpoint
			m.logger.Info().Uint64("epoch", checkpoint).Msg("Resumed from epoch checkpoint")
		}
	}
	return m, nil
}

func validateConfig(cfg Config) error {
	if cfg.Store == nil {
		return fmt.Errorf("store cannot be nil")
	}
	if cfg.Clock == nil {
		return fmt.Errorf("epoch clock cannot be nil")
	}
	return nil
}

func (m *Manager) env(ctx context.Context, txn *store.Txn) (types.Env, error) {
	current, err := m.clock.CurrentEpoch(ctx)
	if err != nil {
		return types.Env{}, fmt.Errorf("read current epoch: %w", err)
	}
	params, found, err := txn.Params()
	if err != nil {
		return types.Env{}, err
	}
	if !found {
		return types.Env{}, fmt.Errorf("%w: no parameters stored", types.ErrInvalidParams)
	}
	lpDenoms := m.lpDenoms
	if lpDenoms == nil {
		lpDenoms = lpdenom.NewFactoryValidator(params.PoolManager)
	}
	return types.Env{
		Epoch:    current,
		Now:      m.clock.Now(),
		Params:   params,
		Schedule: m.clock,
		LpDenoms: lpDenoms,
	}, nil
}

// Execute runs msg as one transaction. Nothing is written when it fails.
func (m *Manager) Execute(ctx context.Context, msg types.Msg) (*types.Receipt, error) {
	if msg.Action == nil {
		return nil, fmt.Errorf("%w: missing action", types.ErrUnknownAction)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	action := msg.Action.Type()
	receipt := types.NewReceipt(action)
	var env types.Env

	err := m.store.Update(func(txn *store.Txn) error {
		var err error
		if env, err = m.env(ctx, txn); err != nil {
			return err
		}
		if err := msg.Funds.Validate(); err != nil {
			return fmt.Errorf("%w: %w", types.ErrPayment, err)
		}
		return m.dispatch(txn, env, msg, receipt)
	})

	metrics.RecordAction(action, err, time.Since(start))
	m.record(ctx, msg, env.Epoch.ID, receipt, err)

	if err != nil {
		m.logger.Warn().
			Err(err).
			Str("action", action).
			Str("sender", msg.Sender).
			Str("category", string(types.ErrorCategory(err))).
			Msg("Action rejected")
		return nil, err
	}

	m.recordOutcome(msg, receipt)
	if _, ok := msg.Action.(types.UpdateParams); ok {
		m.archiveParams(ctx)
	}
	m.logger.Info().
		Str("action", action).
		Str("sender", msg.Sender).
		Int("transfers", len(receipt.Transfers)).
		Dur("took", time.Since(start)).
		Msg("Action executed")
	return receipt, nil
}

func (m *Manager) dispatch(txn *store.Txn, env types.Env, msg types.Msg, receipt *types.Receipt) error {
	switch a := msg.Action.(type) {
	case types.CreateFarm:
		_, err := m.farms.Create(txn, env, msg.Sender, msg.Funds, a.Params, receipt)
		return err
	case types.ExpandFarm:
		_, err := m.farms.Expand(txn, env, msg.Sender, msg.Funds, a.Identifier, receipt)
		return err
	case types.CloseFarm:
		if err := nonPayable(msg.Funds); err != nil {
			return err
		}
		return m.farms.Close(txn, env, msg.Sender, a.Identifier, receipt)
	case types.CreatePosition:
		req := position.CreateRequest{Identifier: a.Identifier, UnlockingDuration: a.UnlockingDuration, Receiver: a.Receiver}
		_, err := m.positions.Create(txn, env, msg.Sender, msg.Funds, req, receipt)
		return err
	case types.FillPosition:
		req := position.CreateRequest{Identifier: a.Identifier, UnlockingDuration: a.UnlockingDuration, Receiver: a.Receiver}
		_, err := m.positions.Fill(txn, env, msg.Sender, msg.Funds, req, receipt)
		return err
	case types.ExpandPosition:
		_, err := m.positions.Expand(txn, env, msg.Sender, msg.Funds, a.Identifier, receipt)
		return err
	case types.ClosePosition:
		if err := nonPayable(msg.Funds); err != nil {
			return err
		}
		_, err := m.positions.Close(txn, env, msg.Sender, a.Identifier, a.LpAsset, receipt)
		return err
	case types.WithdrawPosition:
		if err := nonPayable(msg.Funds); err != nil {
			return err
		}
		_, err := m.positions.Withdraw(txn, env, msg.Sender, a.Identifier, a.EmergencyUnlock, receipt)
		return err
	case types.ClaimRewards:
		if err := nonPayable(msg.Funds); err != nil {
			return err
		}
		result, err := m.rewards.Claim(txn, env, msg.Sender, receipt)
		if err == nil {
			receipt.AddAttribute("walked_epochs", strconv.FormatUint(result.WalkedEpochs, 10))
		}
		return err
	case types.UpdateParams:
		if err := nonPayable(msg.Funds); err != nil {
			return err
		}
		return m.updateParams(txn, env, msg.Sender, a.Update, receipt)
	default:
		return fmt.Errorf("%w: %T", types.ErrUnknownAction, msg.Action)
	}
}

func nonPayable(funds sdk.Coins) error {
	if !funds.IsZero() {
		return fmt.Errorf("%w: action does not accept funds, got %s", types.ErrPayment, funds)
	}
	return nil
}

func (m *Manager) updateParams(txn *store.Txn, env types.Env, sender string, update types.ParamsUpdate, receipt *types.Receipt) error {
	if sender != env.Params.Owner {
		return fmt.Errorf("%w: only the owner can update parameters", types.ErrUnauthorized)
	}
	updated := update.Apply(env.Params)
	if err := updated.Validate(); err != nil {
		return err
	}
	if err := txn.SetParams(updated); err != nil {
		return err
	}
	receipt.AddAttribute("updated_by", sender)
	m.logger.Info().Str("owner", sender).Msg("Parameters updated")
	return nil
}

// recordOutcome feeds the committed receipt to the metrics.
func (m *Manager) recordOutcome(msg types.Msg, receipt *types.Receipt) {
	switch msg.Action.(type) {
	case types.ClaimRewards:
		walked, _ := receipt.Attribute("walked_epochs")
		n, _ := strconv.ParseUint(walked, 10, 64)
		metrics.RecordClaim(receipt.TransfersTo(msg.Sender), n)
	case types.WithdrawPosition:
		if raw, ok := receipt.Attribute("penalty"); ok {
			if penalty, err := sdk.ParseCoinNormalized(raw); err == nil {
				metrics.RecordPenalty(penalty)
			}
		}
	}
}

// record journals the outcome. Journal failures never fail the action.
func (m *Manager) record(ctx context.Context, msg types.Msg, epochID uint64, receipt *types.Receipt, execErr error) {
	if m.journal == nil {
		return
	}
	rec := types.ReceiptRecord{
		Action:    msg.Action.Type(),
		Sender:    msg.Sender,
		Epoch:     epochID,
		Success:   execErr == nil,
		Timestamp: time.Now().UTC(),
	}
	if execErr != nil {
		rec.Error = execErr.Error()
	} else {
		rec.Receipt = receipt
	}
	if err := m.journal.RecordReceipt(ctx, rec); err != nil {
		m.logger.Error().Err(err).Str("action", rec.Action).Msg("Failed to journal receipt")
	}
}

func (m *Manager) archiveParams(ctx context.Context) {
	if m.journal == nil {
		return
	}
	params, err := m.Params(ctx)
	if err == nil {
		err = m.journal.SaveParameters(ctx, params)
	}
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to archive parameters")
	}
}

// OnEpochChanged forward-fills the aggregate weight of every tracked denom at ep. Delivering
// the same epoch twice is harmless.
func (m *Manager) OnEpochChanged(ctx context.Context, ep types.Epoch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var filled int
	err := m.store.Update(func(txn *store.Txn) error {
		var err error
		filled, err = ledger.New(txn).ForwardFill(ep.ID)
		return err
	})
	if err != nil {
		return fmt.Errorf("forward fill epoch %d: %w", ep.ID, err)
	}

	if ep.ID > m.lastEpoch {
		m.lastEpoch = ep.ID
	}
	metrics.SetCurrentEpoch(ep.ID)
	m.logger.Info().Uint64("epoch", ep.ID).Int("denoms_filled", filled).Msg("Epoch changed")

	if m.journal != nil {
		if err := m.journal.SaveCheckpoint(ctx, ep.ID); err != nil {
			m.logger.Error().Err(err).Uint64("epoch", ep.ID).Msg("Failed to save epoch checkpoint")
		}
	}
	return nil
}

// RunLoop polls the clock every interval and fires OnEpochChanged whenever a new epoch starts.
func (m *Manager) RunLoop(ctx context.Context, interval time.Duration) {
	m.logger.Info().Dur("interval", interval).Msg("Starting epoch loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("Epoch loop stopped due to context cancellation")
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Manager) tick(ctx context.Context) {
	m.tickCount++
	tickLogger := m.logger.With().Str("tick_id", uuid.New().String()).Int("tick", m.tickCount).Logger()

	current, err := m.clock.CurrentEpoch(ctx)
	if err != nil {
		tickLogger.Error().Err(err).Msg("Tick aborted: failed to read the current epoch")
		return
	}

	m.mu.Lock()
	last := m.lastEpoch
	m.mu.Unlock()

	if current.ID <= last && last != 0 {
		tickLogger.Debug().Uint64("epoch", current.ID).Msg("No new epoch")
		return
	}
	if err := m.OnEpochChanged(ctx, current); err != nil {
		tickLogger.Error().Err(err).Msg("Tick failed")
	}
}

// LastEpoch is the most recent epoch OnEpochChanged handled.
func (m *Manager) LastEpoch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastEpoch
}

// FarmsFilter selects farms. At most one field should be set; an empty filter lists every farm.
type FarmsFilter struct {
	LpDenom   string
	FarmAsset string
}

// PositionsFilter selects positions. Open, when set, keeps only open or only closing ones and
// applies to Receiver listings.
type PositionsFilter struct {
	Receiver string
	Open     *bool
}

// Params returns the stored parameters.
func (m *Manager) Params(ctx context.Context) (types.Params, error) {
	var params types.Params
	err := m.store.View(func(txn *store.Txn) error {
		var found bool
		var err error
		params, found, err = txn.Params()
		if err == nil && !found {
			err = fmt.Errorf("%w: no parameters stored", types.ErrInvalidParams)
		}
		return err
	})
	return params, err
}

// CurrentEpoch asks the clock for the current epoch.
func (m *Manager) CurrentEpoch(ctx context.Context) (types.Epoch, error) {
	return m.clock.CurrentEpoch(ctx)
}

// Farm returns one farm.
func (m *Manager) Farm(ctx context.Context, identifier string) (types.Farm, error) {
	var f types.Farm
	err := m.store.View(func(txn *store.Txn) error {
		var found bool
		var err error
		f, found, err = txn.GetFarm(identifier)
		if err == nil && !found {
			err = fmt.Errorf("%w: %s", types.ErrFarmNotFound, identifier)
		}
		return err
	})
	return f, err
}

// Farms lists farms matching filter, ordered by identifier.
func (m *Manager) Farms(ctx context.Context, filter FarmsFilter, startAfter string, limit int) ([]types.Farm, error) {
	limit = store.PageLimit(limit)
	var farms []types.Farm
	err := m.store.View(func(txn *store.Txn) error {
		var err error
		switch {
		case filter.LpDenom != "":
			farms, err = txn.FarmsByLpDenom(filter.LpDenom, startAfter, limit)
		case filter.FarmAsset != "":
			farms, err = txn.FarmsByAsset(filter.FarmAsset, startAfter, limit)
		default:
			farms, err = txn.Farms(startAfter, limit)
		}
		return err
	})
	return farms, err
}

// Position returns one position.
func (m *Manager) Position(ctx context.Context, identifier string) (types.Position, error) {
	var p types.Position
	err := m.store.View(func(txn *store.Txn) error {
		var found bool
		var err error
		p, found, err = txn.GetPosition(identifier)
		if err == nil && !found {
			err = fmt.Errorf("%w: %s", types.ErrPositionNotFound, identifier)
		}
		return err
	})
	return p, err
}

// Positions lists positions matching filter, ordered by identifier.
func (m *Manager) Positions(ctx context.Context, filter PositionsFilter, startAfter string, limit int) ([]types.Position, error) {
	limit = store.PageLimit(limit)
	var positions []types.Position
	err := m.store.View(func(txn *store.Txn) error {
		var err error
		if filter.Receiver != "" {
			positions, err = txn.PositionsByReceiver(filter.Receiver, filter.Open, startAfter, limit)
		} else {
			positions, err = txn.Positions(startAfter, limit)
		}
		return err
	})
	return positions, err
}

// Rewards computes what address could claim now.
func (m *Manager) Rewards(ctx context.Context, address string) (types.RewardsResponse, error) {
	if err := types.ValidateAddress(address); err != nil {
		return types.RewardsResponse{}, err
	}
	var result rewards.Result
	err := m.store.View(func(txn *store.Txn) error {
		env, err := m.env(ctx, txn)
		if err != nil {
			return err
		}
		result, err = m.rewards.Compute(txn, env, address)
		return err
	})
	return result.RewardsResponse, err
}

// LpWeight returns the snapshot written for (address, lpDenom) exactly at epoch. Pass
// types.AggregateSubject as address for the denom's aggregate.
func (m *Manager) LpWeight(ctx context.Context, address, lpDenom string, epochID uint64) (types.LpWeight, error) {
	if address != types.AggregateSubject {
		if err := types.ValidateAddress(address); err != nil {
			return types.LpWeight{}, err
		}
	}
	if strings.TrimSpace(lpDenom) == "" {
		return types.LpWeight{}, fmt.Errorf("%w: empty lp denom", types.ErrInvalidLpDenom)
	}

	var result types.LpWeight
	err := m.store.View(func(txn *store.Txn) error {
		w, found, err := ledger.New(txn).Get(address, lpDenom, epochID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: %s on %s at epoch %d", types.ErrLpWeightNotFound, address, lpDenom, epochID)
		}
		result = types.LpWeight{Address: address, LpDenom: lpDenom, Epoch: epochID, Weight: w}
		return nil
	})
	return result, err
}
