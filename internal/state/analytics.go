package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/elys-network/lpfarm/internal/types"
)

// ActionSummary aggregates the journal for one action type.
type ActionSummary struct {
	Action    string    `json:"action"`
	Total     int       `json:"total"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	LastSeen  time.Time `json:"last_seen"`
}

// ReceiptFilter narrows GetRecentReceipts. Empty fields match everything.
type ReceiptFilter struct {
	Action string
	// Address matches the sender or any transfer recipient.
	Address string
}

// GetRecentReceipts retrieves the most recent journaled actions, newest first.
func GetRecentReceipts(ctx context.Context, filter ReceiptFilter, limit int) ([]types.ReceiptRecord, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	if limit <= 0 || limit > 100 {
		limit = 10 // Default limit
	}

	query := `
		SELECT action_timestamp, action_type, sender, epoch, success, message, attributes, transfers
		FROM action_receipts
		WHERE ($1::text = '' OR action_type = $1::text)
		  AND ($2::text = '' OR sender = $2::text OR $2::text = ANY(recipients))
		ORDER BY action_timestamp DESC, receipt_id DESC
		LIMIT $3
	`

	rows, err := DB.QueryContext(ctx, query, filter.Action, filter.Address, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to query recent receipts")
		return nil, fmt.Errorf("failed to query recent receipts: %w", err)
	}
	defer rows.Close()

	records := []types.ReceiptRecord{}
	for rows.Next() {
		var record types.ReceiptRecord
		var message sql.NullString
		var epoch int64
		var attributesJSON, transfersJSON []byte

		if err := rows.Scan(&record.Timestamp, &record.Action, &record.Sender, &epoch, &record.Success,
			&message, &attributesJSON, &transfersJSON); err != nil {
			log.Error().Err(err).Msg("Failed to scan receipt row")
			continue
		}
		record.Epoch = uint64(epoch)
		record.Error = message.String

		if record.Success {
			receipt := types.NewReceipt(record.Action)
			if err := unmarshalReceiptFields(receipt, attributesJSON, transfersJSON); err != nil {
				log.Error().Err(err).Str("action", record.Action).Msg("Failed to unmarshal JSON fields for receipt")
				continue
			}
			record.Receipt = receipt
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		log.Error().Err(err).Msg("Error occurred during row iteration")
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	log.Debug().Int("count", len(records)).Int("limit", limit).Msg("Retrieved recent receipts")
	return records, nil
}

func unmarshalReceiptFields(receipt *types.Receipt, attributesJSON, transfersJSON []byte) error {
	if len(attributesJSON) > 0 {
		if err := json.Unmarshal(attributesJSON, &receipt.Attributes); err != nil {
			return fmt.Errorf("failed to unmarshal attributes: %w", err)
		}
	}
	if len(transfersJSON) > 0 {
		if err := json.Unmarshal(transfersJSON, &receipt.Transfers); err != nil {
			return fmt.Errorf("failed to unmarshal transfers: %w", err)
		}
	}
	return nil
}

// GetActionSummaries counts journaled actions per action type.
func GetActionSummaries(ctx context.Context) ([]ActionSummary, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT
			action_type,
			COUNT(*) AS total,
			COUNT(CASE WHEN success THEN 1 END) AS succeeded,
			COUNT(CASE WHEN NOT success THEN 1 END) AS failed,
			MAX(action_timestamp) AS last_seen
		FROM action_receipts
		GROUP BY action_type
		ORDER BY action_type
	`

	rows, err := DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get action summaries: %w", err)
	}
	defer rows.Close()

	summaries := []ActionSummary{}
	for rows.Next() {
		var s ActionSummary
		if err := rows.Scan(&s.Action, &s.Total, &s.Succeeded, &s.Failed, &s.LastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan action summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return summaries, nil
}
