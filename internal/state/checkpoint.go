/*

This file persists the last epoch the engine handled so a restart resumes where it stopped.

*/

package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// GetEpochCheckpoint returns the stored epoch, or found=false before the first save.
func GetEpochCheckpoint(ctx context.Context) (uint64, bool, error) {
	if DB == nil {
		return 0, false, fmt.Errorf("database not initialized")
	}

	var epoch int64
	err := DB.QueryRowContext(ctx, `SELECT epoch FROM epoch_checkpoint WHERE id = 1;`).Scan(&epoch)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get epoch checkpoint: %w", err)
	}
	if epoch < 0 {
		return 0, false, fmt.Errorf("stored epoch checkpoint is negative: %d", epoch)
	}
	return uint64(epoch), true, nil
}

// SaveEpochCheckpoint stores epoch. The checkpoint never moves backwards.
func SaveEpochCheckpoint(ctx context.Context, epoch uint64) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	upsert := `
		INSERT INTO epoch_checkpoint (id, epoch) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE
		SET epoch = GREATEST(epoch_checkpoint.epoch, EXCLUDED.epoch),
		    updated_at = CURRENT_TIMESTAMP;`

	if _, err := DB.ExecContext(ctx, upsert, int64(epoch)); err != nil {
		return fmt.Errorf("failed to save epoch checkpoint %d: %w", epoch, err)
	}
	log.Debug().Uint64("epoch", epoch).Msg("Saved epoch checkpoint")
	return nil
}

// ResetEpochCheckpoint forgets the checkpoint (for maintenance).
func ResetEpochCheckpoint(ctx context.Context) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	if _, err := DB.ExecContext(ctx, `DELETE FROM epoch_checkpoint;`); err != nil {
		return fmt.Errorf("failed to reset epoch checkpoint: %w", err)
	}
	log.Warn().Msg("Reset epoch checkpoint")
	return nil
}
