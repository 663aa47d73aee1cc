/*

This file contains the position types: lp tokens locked by a receiver for a chosen unlocking duration.

*/

package types

import (
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"
)

const (
	// ExplicitPositionPrefix is prepended to identifiers chosen by the position creator.
	ExplicitPositionPrefix = "u-"
	// AutoPositionPrefix is prepended to identifiers generated from the position counter.
	AutoPositionPrefix = "p-"
)

// PositionStatus is either open (earning rewards) or closing (waiting for its unlock time).
type PositionStatus string

const (
	PositionOpen    PositionStatus = "open"
	PositionClosing PositionStatus = "closing"
)

// Position locks LpAsset for UnlockingDuration seconds once closed.
type Position struct {
	Identifier        string         `json:"identifier"`
	Receiver          string         `json:"receiver"`
	LpAsset           sdk.Coin       `json:"lp_asset"`
	UnlockingDuration uint64         `json:"unlocking_duration"`
	Status            PositionStatus `json:"status"`
	ExpiresAt         *time.Time     `json:"expires_at,omitempty"`
}

// IsOpen reports whether the position still contributes weight.
func (p Position) IsOpen() bool {
	return p.Status == PositionOpen
}

// IsExpired reports whether a closing position reached its unlock time.
func (p Position) IsExpired(now time.Time) bool {
	return p.Status == PositionClosing && p.ExpiresAt != nil && !now.Before(*p.ExpiresAt)
}

// StartClosing flips the position to closing, unlocking UnlockingDuration seconds after now.
func (p *Position) StartClosing(now time.Time) {
	expiresAt := now.Add(time.Duration(p.UnlockingDuration) * time.Second).UTC()
	p.Status = PositionClosing
	p.ExpiresAt = &expiresAt
}
