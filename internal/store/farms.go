package store

import (
	"encoding/json"
	"fmt"

	"github.com/elys-network/lpfarm/internal/types"
)

const (
	// DefaultPageLimit is used when a query does not ask for a limit.
	DefaultPageLimit = 10
	// MaxPageLimit caps every paginated query.
	MaxPageLimit = 100
)

// PageLimit clamps a requested page size into [1, MaxPageLimit].
func PageLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageLimit
	}
	if limit > MaxPageLimit {
		return MaxPageLimit
	}
	return limit
}

// GetFarm loads a farm by identifier.
func (t *Txn) GetFarm(id string) (types.Farm, bool, error) {
	raw, found, err := t.Get(farmKey(id))
	if err != nil || !found {
		return types.Farm{}, false, err
	}
	var farm types.Farm
	if err := json.Unmarshal(raw, &farm); err != nil {
		return types.Farm{}, false, fmt.Errorf("decode farm %s: %w", id, err)
	}
	return farm, true, nil
}

// SetFarm writes a farm and its secondary indices.
func (t *Txn) SetFarm(farm types.Farm) error {
	raw, err := json.Marshal(farm)
	if err != nil {
		return fmt.Errorf("encode farm %s: %w", farm.Identifier, err)
	}
	if err := t.Set(farmKey(farm.Identifier), raw); err != nil {
		return err
	}
	if err := t.Set(farmByLpDenomKey(farm.LpDenom, farm.Identifier), []byte{}); err != nil {
		return err
	}
	return t.Set(farmByAssetKey(farm.FarmAsset.Denom, farm.Identifier), []byte{})
}

// DeleteFarm removes a farm and its secondary indices.
func (t *Txn) DeleteFarm(farm types.Farm) error {
	if err := t.Delete(farmKey(farm.Identifier)); err != nil {
		return err
	}
	if err := t.Delete(farmByLpDenomKey(farm.LpDenom, farm.Identifier)); err != nil {
		return err
	}
	return t.Delete(farmByAssetKey(farm.FarmAsset.Denom, farm.Identifier))
}

// Farms lists farms ordered by identifier.
func (t *Txn) Farms(startAfter string, limit int) ([]types.Farm, error) {
	var after []byte
	if startAfter != "" {
		after = farmKey(startAfter)
	}
	entries, err := t.Scan(prefixFarm, after, limit)
	if err != nil {
		return nil, err
	}
	farms := make([]types.Farm, 0, len(entries))
	for _, kv := range entries {
		var farm types.Farm
		if err := json.Unmarshal(kv.Value, &farm); err != nil {
			return nil, fmt.Errorf("decode farm %s: %w", kv.Key[len(prefixFarm):], err)
		}
		farms = append(farms, farm)
	}
	return farms, nil
}

// FarmsByLpDenom lists the farms rewarding holders of lpDenom. A zero limit returns all of them.
func (t *Txn) FarmsByLpDenom(lpDenom, startAfter string, limit int) ([]types.Farm, error) {
	return t.farmsByIndex(withSep(join(prefixFarmByLpDenom, lpDenom)), startAfter, limit)
}

// FarmsByAsset lists the farms emitting denom. A zero limit returns all of them.
func (t *Txn) FarmsByAsset(denom, startAfter string, limit int) ([]types.Farm, error) {
	return t.farmsByIndex(withSep(join(prefixFarmByAsset, denom)), startAfter, limit)
}

func (t *Txn) farmsByIndex(prefix []byte, startAfter string, limit int) ([]types.Farm, error) {
	var after []byte
	if startAfter != "" {
		after = append(append([]byte{}, prefix...), startAfter...)
	}
	entries, err := t.Scan(prefix, after, limit)
	if err != nil {
		return nil, err
	}
	farms := make([]types.Farm, 0, len(entries))
	for _, kv := range entries {
		id := string(kv.Key[len(prefix):])
		farm, found, err := t.GetFarm(id)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("farm index points at missing farm %s", id)
		}
		farms = append(farms, farm)
	}
	return farms, nil
}
