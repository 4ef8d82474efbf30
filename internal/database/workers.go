package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safesite-vision/ppe-sentinel/internal/models"
)

// GetWorker returns nil, nil when no worker exists with the given id.
func (d *Database) GetWorker(ctx context.Context, id string) (*models.Worker, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, name, phone, active, strike_count
		FROM workers
		WHERE id = $1
	`, id)

	var w models.Worker
	err := row.Scan(
		&w.ID,
		&w.Name,
		&w.Phone,
		&w.Active,
		&w.StrikeCount,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get worker: %w", err)
	}

	return &w, nil
}

// UpdateWorkerStrikeCount writes the cached count. The strikes table stays
// the source of truth; this column exists for cheap registry reads.
func (d *Database) UpdateWorkerStrikeCount(ctx context.Context, workerID string, count int) error {
	_, err := d.DB.ExecContext(ctx,
		`UPDATE workers SET strike_count = $1 WHERE id = $2`,
		count,
		workerID,
	)
	return err
}
