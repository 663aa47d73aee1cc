package store

import (
	"encoding/json"
	"fmt"

	"github.com/elys-network/lpfarm/internal/types"
)

// GetPosition loads a position by identifier.
func (t *Txn) GetPosition(id string) (types.Position, bool, error) {
	raw, found, err := t.Get(positionKey(id))
	if err != nil || !found {
		return types.Position{}, false, err
	}
	var position types.Position
	if err := json.Unmarshal(raw, &position); err != nil {
		return types.Position{}, false, fmt.Errorf("decode position %s: %w", id, err)
	}
	return position, true, nil
}

// SetPosition writes a position and its receiver index.
func (t *Txn) SetPosition(position types.Position) error {
	raw, err := json.Marshal(position)
	if err != nil {
		return fmt.Errorf("encode position %s: %w", position.Identifier, err)
	}
	if err := t.Set(positionKey(position.Identifier), raw); err != nil {
		return err
	}
	return t.Set(positionByReceiverKey(position.Receiver, position.Identifier), []byte{})
}

// DeletePosition removes a position and its receiver index.
func (t *Txn) DeletePosition(position types.Position) error {
	if err := t.Delete(positionKey(position.Identifier)); err != nil {
		return err
	}
	return t.Delete(positionByReceiverKey(position.Receiver, position.Identifier))
}

// Positions lists every position ordered by identifier.
func (t *Txn) Positions(startAfter string, limit int) ([]types.Position, error) {
	var after []byte
	if startAfter != "" {
		after = positionKey(startAfter)
	}
	entries, err := t.Scan(prefixPosition, after, limit)
	if err != nil {
		return nil, err
	}
	positions := make([]types.Position, 0, len(entries))
	for _, kv := range entries {
		var position types.Position
		if err := json.Unmarshal(kv.Value, &position); err != nil {
			return nil, fmt.Errorf("decode position %s: %w", kv.Key[len(prefixPosition):], err)
		}
		positions = append(positions, position)
	}
	return positions, nil
}

// PositionsByReceiver lists the receiver's positions ordered by identifier, optionally
// keeping only open (or only closing) ones. A zero limit returns all of them.
func (t *Txn) PositionsByReceiver(receiver string, open *bool, startAfter string, limit int) ([]types.Position, error) {
	prefix := withSep(join(prefixPositionByRecv, receiver))
	var after []byte
	if startAfter != "" {
		after = append(append([]byte{}, prefix...), startAfter...)
	}
	entries, err := t.Scan(prefix, after, 0)
	if err != nil {
		return nil, err
	}

	positions := make([]types.Position, 0, len(entries))
	for _, kv := range entries {
		id := string(kv.Key[len(prefix):])
		position, found, err := t.GetPosition(id)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("position index points at missing position %s", id)
		}
		if open != nil && position.IsOpen() != *open {
			continue
		}
		positions = append(positions, position)
		if limit > 0 && len(positions) >= limit {
			break
		}
	}
	return positions, nil
}

// OpenPositions returns every open position of receiver.
func (t *Txn) OpenPositions(receiver string) ([]types.Position, error) {
	open := true
	return t.PositionsByReceiver(receiver, &open, "", 0)
}

// CountPositions returns how many open and closing positions receiver holds.
func (t *Txn) CountPositions(receiver string) (open, closing int, err error) {
	positions, err := t.PositionsByReceiver(receiver, nil, "", 0)
	if err != nil {
		return 0, 0, err
	}
	for _, p := range positions {
		if p.IsOpen() {
			open++
		} else {
			closing++
		}
	}
	return open, closing, nil
}
