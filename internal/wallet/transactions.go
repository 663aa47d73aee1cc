package wallet

import (
	"errors"
	"fmt"
	"sort"

	sdk "github.com/cosmos/cosmos-sdk/types"
	banktypes "github.com/cosmos/cosmos-sdk/x/bank/types"

	"github.com/elys-network/lpfarm/internal/logger"
	"github.com/elys-network/lpfarm/internal/types"
)

var (
	ErrInvalidIntent  = errors.New("transfer intent contains invalid data")
	ErrInvalidSender  = errors.New("settlement sender is invalid")
	ErrSelfTransfer   = errors.New("transfer intent pays the settlement account itself")
	ErrInvalidMessage = errors.New("bank message is invalid")
)

// IntentsToMessages turns the transfer intents of a receipt into one bank send per recipient,
// paid from the settlement account. Recipients come out sorted and each coin vector is aggregated.
func IntentsToMessages(from string, intents []types.TransferIntent) ([]*banktypes.MsgSend, error) {
	if err := types.ValidateAddress(from); err != nil {
		return nil, errors.Join(ErrInvalidSender, err)
	}

	byRecipient := make(map[string]sdk.Coins)
	for i, intent := range intents {
		if err := validateIntent(intent, i); err != nil {
			return nil, errors.Join(ErrInvalidIntent, err)
		}
		if intent.Recipient == from {
			return nil, fmt.Errorf("%w: intent %d", ErrSelfTransfer, i)
		}
		byRecipient[intent.Recipient] = byRecipient[intent.Recipient].Add(intent.Coin)
	}

	recipients := make([]string, 0, len(byRecipient))
	for r := range byRecipient {
		recipients = append(recipients, r)
	}
	sort.Strings(recipients)

	msgs := make([]*banktypes.MsgSend, 0, len(recipients))
	for _, r := range recipients {
		msg := &banktypes.MsgSend{FromAddress: from, ToAddress: r, Amount: byRecipient[r]}
		if err := validateMessage(msg); err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}

	txLogger := logger.GetForComponent("transaction_builder")
	txLogger.Debug().
		Int("intents", len(intents)).
		Int("messages", len(msgs)).
		Str("from", from).
		Msg("Built bank messages from transfer intents")
	return msgs, nil
}

// Total sums the coins of every intent.
func Total(intents []types.TransferIntent) sdk.Coins {
	total := sdk.NewCoins()
	for _, intent := range intents {
		if intent.Coin.Amount.IsNil() || !intent.Coin.Amount.IsPositive() {
			continue
		}
		total = total.Add(intent.Coin)
	}
	return total
}

func validateIntent(intent types.TransferIntent, index int) error {
	if err := types.ValidateAddress(intent.Recipient); err != nil {
		return fmt.Errorf("intent %d: %w", index, err)
	}
	return validateCoin(intent.Coin, fmt.Sprintf("intent %d", index))
}

// validateCoin validates a single coin
func validateCoin(coin sdk.Coin, context string) error {
	if coin.Amount.IsNil() {
		return fmt.Errorf("%s: amount is nil", context)
	}
	if coin.Amount.IsZero() {
		return fmt.Errorf("%s: amount cannot be zero", context)
	}
	if coin.Amount.IsNegative() {
		return fmt.Errorf("%s: amount cannot be negative", context)
	}
	if err := sdk.ValidateDenom(coin.Denom); err != nil {
		return fmt.Errorf("%s: %w", context, err)
	}
	return nil
}

// validateMessage checks the message without bech32 decoding: engine addresses are opaque strings.
func validateMessage(msg *banktypes.MsgSend) error {
	if msg.FromAddress == "" || msg.ToAddress == "" {
		return fmt.Errorf("%w: empty address", ErrInvalidMessage)
	}
	if !msg.Amount.IsValid() {
		return fmt.Errorf("%w: amount %s", ErrInvalidMessage, msg.Amount)
	}
	return nil
}
