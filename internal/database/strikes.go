package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safesite-vision/ppe-sentinel/internal/models"
)

// CreateStrike inserts one strike. The unique index on violation_id rejects
// a second strike for the same violation.
func (d *Database) CreateStrike(ctx context.Context, s *models.Strike) error {
	_, err := d.DB.ExecContext(ctx,
		`INSERT INTO strikes (id, worker_id, violation_id, sequence, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		s.ID,
		s.WorkerID,
		s.ViolationID,
		s.Sequence,
		s.CreatedAt,
	)
	return err
}

// GetStrikeByViolation returns nil, nil when the violation has no strike.
func (d *Database) GetStrikeByViolation(ctx context.Context, violationID string) (*models.Strike, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, worker_id, violation_id, sequence, created_at
		FROM strikes
		WHERE violation_id = $1
	`, violationID)

	var s models.Strike
	err := row.Scan(
		&s.ID,
		&s.WorkerID,
		&s.ViolationID,
		&s.Sequence,
		&s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get strike: %w", err)
	}

	return &s, nil
}

// WorkerStrikeCounts rebuilds per-worker counts from the strike records
// themselves, not from the cached column, so restart state always matches
// what was actually persisted.
func (d *Database) WorkerStrikeCounts(ctx context.Context) (map[string]int, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT worker_id, COUNT(*)
		FROM strikes
		GROUP BY worker_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			workerID string
			count    int
		)
		if err := rows.Scan(&workerID, &count); err != nil {
			return nil, err
		}
		counts[workerID] = count
	}

	return counts, rows.Err()
}
