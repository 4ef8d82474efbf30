package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/safesite-vision/ppe-sentinel/internal/models"
)

// CreateViolation persists a confirmed violation. The upsert keeps a retry
// after a crash from failing on the primary key.
func (d *Database) CreateViolation(ctx context.Context, v *models.Violation) error {
	missing, err := json.Marshal(v.Missing)
	if err != nil {
		return fmt.Errorf("encode missing set: %w", err)
	}

	var workerID sql.NullString
	if v.WorkerID != "" {
		workerID = sql.NullString{String: v.WorkerID, Valid: true}
	}

	_, err = d.DB.ExecContext(ctx,
		`INSERT INTO violations (id, zone_id, camera_id, occurred_at, missing_ppe, risk_level, snapshot_ref, worker_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO NOTHING`,
		v.ID,
		v.ZoneID,
		v.CameraID,
		v.OccurredAt,
		string(missing),
		v.Risk,
		v.SnapshotRef,
		workerID,
		v.Status,
		v.CreatedAt,
		v.UpdatedAt,
	)

	return err
}

// GetViolation returns nil, nil when the violation does not exist.
func (d *Database) GetViolation(ctx context.Context, id string) (*models.Violation, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, zone_id, camera_id, occurred_at, missing_ppe, risk_level, snapshot_ref, worker_id, status, created_at, updated_at
		FROM violations
		WHERE id = $1
	`, id)

	var (
		v        models.Violation
		missing  string
		workerID sql.NullString
	)
	err := row.Scan(
		&v.ID,
		&v.ZoneID,
		&v.CameraID,
		&v.OccurredAt,
		&missing,
		&v.Risk,
		&v.SnapshotRef,
		&workerID,
		&v.Status,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get violation: %w", err)
	}

	if err := json.Unmarshal([]byte(missing), &v.Missing); err != nil {
		return nil, fmt.Errorf("decode missing set: %w", err)
	}
	v.WorkerID = workerID.String

	return &v, nil
}

// BindOffender sets the offender only while it is still unset, so a
// concurrent double-bind cannot overwrite the first resolution.
func (d *Database) BindOffender(ctx context.Context, violationID, workerID string) error {
	res, err := d.DB.ExecContext(ctx,
		`UPDATE violations SET worker_id = $1, updated_at = $2 WHERE id = $3 AND worker_id IS NULL`,
		workerID,
		time.Now().UTC(),
		violationID,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("violation %s already bound or missing", violationID)
	}
	return nil
}

// MarkViolationStruck flips the status once the strike exists.
func (d *Database) MarkViolationStruck(ctx context.Context, violationID string) error {
	_, err := d.DB.ExecContext(ctx,
		`UPDATE violations SET status = $1, updated_at = $2 WHERE id = $3`,
		models.ViolationStruck,
		time.Now().UTC(),
		violationID,
	)
	return err
}

// UpdateViolationSnapshot fills in an evidence reference that was pending at
// confirmation time.
func (d *Database) UpdateViolationSnapshot(ctx context.Context, violationID, snapshotRef string) error {
	_, err := d.DB.ExecContext(ctx,
		`UPDATE violations SET snapshot_ref = $1, updated_at = $2 WHERE id = $3 AND snapshot_ref = ''`,
		snapshotRef,
		time.Now().UTC(),
		violationID,
	)
	return err
}
