package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// DB mirrors published alerts and persists metric values across restarts.
type DB struct {
	conn *sql.DB
}

func Open(dbPath string) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database dir: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	// sqlite allows a single writer
	conn.SetMaxOpenConns(1)

	createAlertsTable := `
	CREATE TABLE IF NOT EXISTS alerts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		token TEXT NOT NULL,
		amount TEXT NOT NULL,
		risk_level TEXT NOT NULL,
		reason TEXT NOT NULL,
		published_text TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);`
	if _, err := conn.Exec(createAlertsTable); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create alerts table: %w", err)
	}

	createMetricsTable := `
	CREATE TABLE IF NOT EXISTS metrics (
		metric_name TEXT NOT NULL,
		label_key TEXT NOT NULL DEFAULT '',
		label_value TEXT NOT NULL DEFAULT '',
		metric_value REAL NOT NULL,
		PRIMARY KEY (metric_name, label_key, label_value)
	);`
	if _, err := conn.Exec(createMetricsTable); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create metrics table: %w", err)
	}

	log.Infof("Database initialized at %s", dbPath)
	return &DB{conn: conn}, nil
}

func (db *DB) Close() error {
	if db != nil && db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
