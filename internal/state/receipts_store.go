package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/lib/pq" // PostgreSQL driver for array support
	"github.com/rs/zerolog/log"

	"github.com/elys-network/lpfarm/internal/types"
)

// SaveReceipt stores one action outcome. Failed actions carry their error in message and no receipt.
func SaveReceipt(ctx context.Context, record types.ReceiptRecord) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	attributes := []types.Attribute{}
	transfers := []types.TransferIntent{}
	if record.Receipt != nil {
		attributes = record.Receipt.Attributes
		transfers = record.Receipt.Transfers
	}

	attributesJSON, err := json.Marshal(attributes)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal attributes: %w", err)
	}
	transfersJSON, err := json.Marshal(transfers)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal transfers: %w", err)
	}

	query := `
		INSERT INTO action_receipts (
			action_timestamp, action_type, sender, epoch, success, message,
			recipients, attributes, transfers
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING receipt_id;
	`

	var receiptID int64
	err = DB.QueryRowContext(ctx, query,
		record.Timestamp, record.Action, record.Sender, record.Epoch, record.Success, record.Error,
		pq.Array(recipients(transfers)), attributesJSON, transfersJSON,
	).Scan(&receiptID)
	if err != nil {
		return 0, fmt.Errorf("failed to save action receipt: %w", err)
	}

	log.Debug().
		Int64("receipt_id", receiptID).
		Str("action", record.Action).
		Bool("success", record.Success).
		Msg("Action receipt saved to database")
	return receiptID, nil
}

func recipients(transfers []types.TransferIntent) []string {
	seen := make(map[string]struct{}, len(transfers))
	out := []string{}
	for _, t := range transfers {
		if _, ok := seen[t.Recipient]; ok {
			continue
		}
		seen[t.Recipient] = struct{}{}
		out = append(out, t.Recipient)
	}
	sort.Strings(out)
	return out
}
