package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

// TransferIntent asks the external bank primitive to move Coin to Recipient.
// The engine never moves value itself.
type TransferIntent struct {
	Recipient string   `json:"recipient"`
	Coin      sdk.Coin `json:"coin"`
}

// Attribute is a key/value pair describing what a transition did.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Receipt is the outcome of a committed transition.
type Receipt struct {
	Action     string           `json:"action"`
	Attributes []Attribute      `json:"attributes"`
	Transfers  []TransferIntent `json:"transfers"`
}

// NewReceipt starts an empty receipt for the named action.
func NewReceipt(action string) *Receipt {
	return &Receipt{Action: action, Attributes: []Attribute{}, Transfers: []TransferIntent{}}
}

// AddAttribute appends a key/value attribute.
func (r *Receipt) AddAttribute(key, value string) {
	r.Attributes = append(r.Attributes, Attribute{Key: key, Value: value})
}

// AddTransfer appends a transfer intent. Zero amounts are dropped.
func (r *Receipt) AddTransfer(recipient string, coin sdk.Coin) {
	if coin.Amount.IsNil() || !coin.Amount.IsPositive() {
		return
	}
	r.Transfers = append(r.Transfers, TransferIntent{Recipient: recipient, Coin: coin})
}

// Attribute returns the value of the first attribute named key.
func (r Receipt) Attribute(key string) (string, bool) {
	for _, a := range r.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// TransfersTo sums every intent addressed to recipient.
func (r Receipt) TransfersTo(recipient string) sdk.Coins {
	total := sdk.NewCoins()
	for _, t := range r.Transfers {
		if t.Recipient == recipient {
			total = total.Add(t.Coin)
		}
	}
	return total
}

// RewardsResponse is the result of a reward query.
type RewardsResponse struct {
	Rewards sdk.Coins `json:"rewards"`
	// ThroughEpoch is the last epoch the walk covered.
	ThroughEpoch uint64 `json:"through_epoch"`
	// Complete is false when the walk stopped at MaxClaimEpochs before reaching the last finished epoch.
	Complete bool `json:"complete"`
}

// Pending reports whether claiming would move anything.
func (r RewardsResponse) Pending() bool {
	return !r.Rewards.IsZero() || !r.Complete
}

// LpWeight is a single ledger snapshot.
type LpWeight struct {
	Address string      `json:"address"`
	LpDenom string      `json:"lp_denom"`
	Epoch   uint64      `json:"epoch"`
	Weight  sdkmath.Int `json:"weight"`
}

// ReceiptRecord is a journaled action outcome. Receipt is nil when the action failed.
type ReceiptRecord struct {
	Action    string    `json:"action"`
	Sender    string    `json:"sender"`
	Epoch     uint64    `json:"epoch"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Receipt   *Receipt  `json:"receipt,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
