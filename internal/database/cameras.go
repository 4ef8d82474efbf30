package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/safesite-vision/ppe-sentinel/internal/models"
)

// ListCameras returns the full camera registry.
func (d *Database) ListCameras(ctx context.Context) ([]models.Camera, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, zone_id, endpoint, state, last_heartbeat
		FROM cameras
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cameras []models.Camera
	for rows.Next() {
		var (
			c        models.Camera
			lastSeen sql.NullTime
		)
		if err := rows.Scan(&c.ID, &c.ZoneID, &c.Endpoint, &c.State, &lastSeen); err != nil {
			return nil, err
		}
		c.LastHeartbeat = lastSeen.Time
		cameras = append(cameras, c)
	}

	return cameras, rows.Err()
}

// ListZones returns the full zone registry.
func (d *Database) ListZones(ctx context.Context) ([]models.Zone, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, name, risk_level
		FROM zones
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var zones []models.Zone
	for rows.Next() {
		var z models.Zone
		if err := rows.Scan(&z.ID, &z.Name, &z.Risk); err != nil {
			return nil, err
		}
		zones = append(zones, z)
	}

	return zones, rows.Err()
}

// GetZone returns nil, nil when no zone exists with the given id.
func (d *Database) GetZone(ctx context.Context, id string) (*models.Zone, error) {
	row := d.DB.QueryRowContext(ctx, `
		SELECT id, name, risk_level
		FROM zones
		WHERE id = $1
	`, id)

	var z models.Zone
	err := row.Scan(&z.ID, &z.Name, &z.Risk)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get zone: %w", err)
	}

	return &z, nil
}

// UpdateCameraState records a liveness transition from the heartbeat
// monitor for the UI/reporting collaborator.
func (d *Database) UpdateCameraState(ctx context.Context, cameraID string, state models.CameraState, at time.Time) error {
	_, err := d.DB.ExecContext(ctx,
		`UPDATE cameras SET state = $1, last_heartbeat = $2 WHERE id = $3`,
		state,
		at,
		cameraID,
	)
	return err
}
