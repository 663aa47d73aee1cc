package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/elys-network/lpfarm/internal/types"
)

func (t *Txn) nextCounter(key []byte) (uint64, error) {
	raw, found, err := t.Get(key)
	if err != nil {
		return 0, err
	}
	var current uint64
	if found {
		current = binary.BigEndian.Uint64(raw)
	}
	next := current + 1
	if err := t.Set(key, Uint64Key(next)); err != nil {
		return 0, err
	}
	return next, nil
}

// NextFarmID increments and returns the farm counter.
func (t *Txn) NextFarmID() (uint64, error) {
	return t.nextCounter(keyFarmCounter)
}

// NextPositionID increments and returns the position counter.
func (t *Txn) NextPositionID() (uint64, error) {
	return t.nextCounter(keyPositionCounter)
}

// LastClaimedEpoch returns the epoch through which addr's rewards were accounted.
func (t *Txn) LastClaimedEpoch(addr string) (uint64, bool, error) {
	raw, found, err := t.Get(lastClaimedKey(addr))
	if err != nil || !found {
		return 0, false, err
	}
	return binary.BigEndian.Uint64(raw), true, nil
}

// SetLastClaimedEpoch records the epoch through which addr's rewards were accounted.
func (t *Txn) SetLastClaimedEpoch(addr string, epoch uint64) error {
	return t.Set(lastClaimedKey(addr), Uint64Key(epoch))
}

// DeleteLastClaimedEpoch forgets addr's claim progress.
func (t *Txn) DeleteLastClaimedEpoch(addr string) error {
	return t.Delete(lastClaimedKey(addr))
}

// Params loads the stored parameters.
func (t *Txn) Params() (types.Params, bool, error) {
	raw, found, err := t.Get(keyParams)
	if err != nil || !found {
		return types.Params{}, false, err
	}
	var params types.Params
	if err := json.Unmarshal(raw, &params); err != nil {
		return types.Params{}, false, fmt.Errorf("decode params: %w", err)
	}
	return params, true, nil
}

// SetParams stores the parameters.
func (t *Txn) SetParams(params types.Params) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	return t.Set(keyParams, raw)
}
