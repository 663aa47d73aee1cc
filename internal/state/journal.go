package state

import (
	"context"

	"github.com/elys-network/lpfarm/internal/types"
)

// Journal writes the engine's side records to the global DB pool. InitDB must have succeeded.
type Journal struct{}

func NewJournal() *Journal {
	return &Journal{}
}

func (j *Journal) RecordReceipt(ctx context.Context, record types.ReceiptRecord) error {
	_, err := SaveReceipt(ctx, record)
	return err
}

func (j *Journal) SaveParameters(ctx context.Context, params types.Params) error {
	_, err := SaveParameters(ctx, params)
	return err
}

func (j *Journal) SaveCheckpoint(ctx context.Context, epoch uint64) error {
	return SaveEpochCheckpoint(ctx, epoch)
}

func (j *Journal) LoadCheckpoint(ctx context.Context) (uint64, bool, error) {
	return GetEpochCheckpoint(ctx)
}

// RecentReceipts serves the receipts listing of the HTTP API.
func (j *Journal) RecentReceipts(ctx context.Context, filter ReceiptFilter, limit int) ([]types.ReceiptRecord, error) {
	return GetRecentReceipts(ctx, filter, limit)
}

// ActionSummaries serves the per-action counts of the HTTP API.
func (j *Journal) ActionSummaries(ctx context.Context) ([]ActionSummary, error) {
	return GetActionSummaries(ctx)
}
