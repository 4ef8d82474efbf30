package database

import (
	"database/sql"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// Database represents the database connection and operations
type Database struct {
	DB *sql.DB
}

// New creates a new Database instance
func New(dsn string) (*Database, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	// Verify connection
	if err = db.Ping(); err != nil {
		return nil, err
	}

	return &Database{DB: db}, nil
}

// Init creates the required tables if they don't exist. The unique index on
// strikes.violation_id is what backs one-strike-per-violation at the
// storage layer.
func (d *Database) Init() error {
	createTables := `
	CREATE TABLE IF NOT EXISTS zones (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		risk_level TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS cameras (
		id TEXT PRIMARY KEY,
		zone_id TEXT NOT NULL REFERENCES zones(id),
		endpoint TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'offline',
		last_heartbeat TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS workers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		strike_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS violations (
		id TEXT PRIMARY KEY,
		zone_id TEXT NOT NULL,
		camera_id TEXT NOT NULL,
		occurred_at TIMESTAMP NOT NULL,
		missing_ppe TEXT NOT NULL,
		risk_level TEXT NOT NULL,
		snapshot_ref TEXT NOT NULL DEFAULT '',
		worker_id TEXT,
		status TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS strikes (
		id TEXT PRIMARY KEY,
		worker_id TEXT NOT NULL REFERENCES workers(id),
		violation_id TEXT NOT NULL UNIQUE REFERENCES violations(id),
		sequence INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	`

	_, err := d.DB.Exec(createTables)
	return err
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.DB.Close()
}
