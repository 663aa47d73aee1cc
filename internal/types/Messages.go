/*

This file contains the closed set of actions the engine executes, and the receipts it produces.

*/

package types

import (
	"encoding/json"
	"fmt"

	sdk "github.com/cosmos/cosmos-sdk/types"
)

// Action is one of the variants declared below. The set is closed: dispatch is an explicit type switch.
type Action interface {
	Type() string
	isAction()
}

type CreateFarm struct {
	Params FarmParams `json:"params"`
}

type ExpandFarm struct {
	Identifier string `json:"identifier"`
}

type CloseFarm struct {
	Identifier string `json:"identifier"`
}

type CreatePosition struct {
	Identifier        *string `json:"identifier,omitempty"`
	UnlockingDuration uint64  `json:"unlocking_duration"`
	Receiver          *string `json:"receiver,omitempty"`
}

// FillPosition expands the identified position when it exists and creates it otherwise.
type FillPosition struct {
	Identifier        *string `json:"identifier,omitempty"`
	UnlockingDuration uint64  `json:"unlocking_duration"`
	Receiver          *string `json:"receiver,omitempty"`
}

type ExpandPosition struct {
	Identifier string `json:"identifier"`
}

// ClosePosition closes the whole position, or only LpAsset of it when set.
type ClosePosition struct {
	Identifier string    `json:"identifier"`
	LpAsset    *sdk.Coin `json:"lp_asset,omitempty"`
}

type WithdrawPosition struct {
	Identifier      string `json:"identifier"`
	EmergencyUnlock bool   `json:"emergency_unlock"`
}

type ClaimRewards struct{}

type UpdateParams struct {
	Update ParamsUpdate `json:"update"`
}

func (CreateFarm) Type() string       { return "create_farm" }
func (ExpandFarm) Type() string       { return "expand_farm" }
func (CloseFarm) Type() string        { return "close_farm" }
func (CreatePosition) Type() string   { return "create_position" }
func (FillPosition) Type() string     { return "fill_position" }
func (ExpandPosition) Type() string   { return "expand_position" }
func (ClosePosition) Type() string    { return "close_position" }
func (WithdrawPosition) Type() string { return "withdraw_position" }
func (ClaimRewards) Type() string     { return "claim_rewards" }
func (UpdateParams) Type() string     { return "update_params" }

func (CreateFarm) isAction()       {}
func (ExpandFarm) isAction()       {}
func (CloseFarm) isAction()        {}
func (CreatePosition) isAction()   {}
func (FillPosition) isAction()     {}
func (ExpandPosition) isAction()   {}
func (ClosePosition) isAction()    {}
func (WithdrawPosition) isAction() {}
func (ClaimRewards) isAction()     {}
func (UpdateParams) isAction()     {}

// Msg is a single externally sequenced request: who sends it, what they attach, and what to do.
type Msg struct {
	Sender string    `json:"sender"`
	Funds  sdk.Coins `json:"funds"`
	Action Action    `json:"-"`
}

type actionEnvelope struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body,omitempty"`
}

type msgJSON struct {
	Sender string         `json:"sender"`
	Funds  sdk.Coins      `json:"funds"`
	Action actionEnvelope `json:"action"`
}

// MarshalJSON encodes the action as a {"type", "body"} envelope.
func (m Msg) MarshalJSON() ([]byte, error) {
	if m.Action == nil {
		return nil, fmt.Errorf("%w: nil action", ErrUnknownAction)
	}
	body, err := json.Marshal(m.Action)
	if err != nil {
		return nil, err
	}
	return json.Marshal(msgJSON{
		Sender: m.Sender,
		Funds:  m.Funds,
		Action: actionEnvelope{Type: m.Action.Type(), Body: body},
	})
}

// UnmarshalJSON decodes the {"type", "body"} envelope into the matching variant.
func (m *Msg) UnmarshalJSON(data []byte) error {
	var raw msgJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	action, err := DecodeAction(raw.Action.Type, raw.Action.Body)
	if err != nil {
		return err
	}
	m.Sender = raw.Sender
	m.Funds = raw.Funds
	m.Action = action
	return nil
}

// DecodeAction builds the variant named by actionType from its JSON body.
func DecodeAction(actionType string, body json.RawMessage) (Action, error) {
	var action Action
	switch actionType {
	case "create_farm":
		action = &CreateFarm{}
	case "expand_farm":
		action = &ExpandFarm{}
	case "close_farm":
		action = &CloseFarm{}
	case "create_position":
		action = &CreatePosition{}
	case "fill_position":
		action = &FillPosition{}
	case "expand_position":
		action = &ExpandPosition{}
	case "close_position":
		action = &ClosePosition{}
	case "withdraw_position":
		action = &WithdrawPosition{}
	case "claim_rewards":
		return ClaimRewards{}, nil
	case "update_params":
		action = &UpdateParams{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, actionType)
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, action); err != nil {
			return nil, fmt.Errorf("%w: %s body: %w", ErrUnknownAction, actionType, err)
		}
	}
	return derefAction(action), nil
}

func derefAction(a Action) Action {
	switch v := a.(type) {
	case *CreateFarm:
		return *v
	case *ExpandFarm:
		return *v
	case *CloseFarm:
		return *v
	case *CreatePosition:
		return *v
	case *FillPosition:
		return *v
	case *ExpandPosition:
		return *v
	case *ClosePosition:
		return *v
	case *WithdrawPosition:
		return *v
	case *UpdateParams:
		return *v
	}
	return a
}
