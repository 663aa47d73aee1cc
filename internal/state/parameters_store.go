// ./internal/state/parameters_store.go
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/elys-network/lpfarm/internal/types"
)

// SaveParameters stores params as a new active version. Nothing is written when they equal the
// active version; the returned version is then the active one.
func SaveParameters(ctx context.Context, params types.Params) (version int, err error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	encoded, err := json.Marshal(params)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal parameters: %w", err)
	}

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			tx.Rollback()
		}
	}()

	var activeVersion int
	var activeJSON []byte
	err = tx.QueryRowContext(ctx, `
		SELECT version, params FROM engine_parameters
		WHERE is_active = TRUE ORDER BY activated_at DESC LIMIT 1
		FOR UPDATE;`).Scan(&activeVersion, &activeJSON)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = nil
	case err != nil:
		return 0, fmt.Errorf("failed to read active parameters: %w", err)
	default:
		var active types.Params
		if err = json.Unmarshal(activeJSON, &active); err != nil {
			return 0, fmt.Errorf("failed to unmarshal active parameters: %w", err)
		}
		if sameParams(active, params) {
			err = tx.Commit()
			return activeVersion, err
		}
	}

	if _, err = tx.ExecContext(ctx, `UPDATE engine_parameters SET is_active = FALSE WHERE is_active = TRUE;`); err != nil {
		return 0, fmt.Errorf("failed to deactivate existing active parameters: %w", err)
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO engine_parameters (version, is_active, activated_at, params)
		VALUES ((SELECT COALESCE(MAX(version), 0) + 1 FROM engine_parameters), TRUE, $1, $2)
		RETURNING version;`, time.Now(), encoded).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to insert parameters: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().Int("version", version).Str("owner", params.Owner).Msg("Saved engine parameters")
	return version, nil
}

// LoadActiveParameters loads the currently active parameters and their version.
func LoadActiveParameters(ctx context.Context) (types.Params, int, error) {
	if DB == nil {
		return types.Params{}, 0, fmt.Errorf("database not initialized")
	}

	var version int
	var encoded []byte
	err := DB.QueryRowContext(ctx, `
		SELECT version, params FROM engine_parameters
		WHERE is_active = TRUE ORDER BY activated_at DESC LIMIT 1;`).Scan(&version, &encoded)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Params{}, 0, fmt.Errorf("no active engine parameters found")
		}
		return types.Params{}, 0, fmt.Errorf("failed to load active parameters: %w", err)
	}

	var params types.Params
	if err := json.Unmarshal(encoded, &params); err != nil {
		return types.Params{}, 0, fmt.Errorf("failed to unmarshal parameters version %d: %w", version, err)
	}
	log.Info().Int("version", version).Msg("Loaded active engine parameters")
	return params, version, nil
}

// CountParameterVersions returns how many parameter versions were ever stored.
func CountParameterVersions(ctx context.Context) (int, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}
	var count int
	if err := DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM engine_parameters;`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count parameter versions: %w", err)
	}
	return count, nil
}

// sameParams compares through the JSON encoding so math values compare by value.
func sameParams(a, b types.Params) bool {
	left, errA := json.Marshal(a)
	right, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(left) == string(right)
}
