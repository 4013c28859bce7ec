package database

import (
	"fmt"
	"time"

	"guardian-sentinel-bot/internal/memory"

	log "github.com/sirupsen/logrus"
)

// InsertAlert mirrors a published alert into the database
func (db *DB) InsertAlert(entry memory.AlertEntry) error {
	query := `
	INSERT INTO alerts (token, amount, risk_level, reason, published_text, created_at)
	VALUES (?, ?, ?, ?, ?, ?);`

	_, err := db.conn.Exec(query, entry.Token, entry.Amount, entry.RiskLevel, entry.Reason, entry.PublishedText, entry.Timestamp.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}

	log.Debugf("Alert mirrored: Token: %s, Amount: %s, Risk: %s", entry.Token, entry.Amount, entry.RiskLevel)
	return nil
}

// CountAlertsSince returns the number of alerts published at or after since, grouped by risk level
func (db *DB) CountAlertsSince(since time.Time) (map[string]int, error) {
	query := `SELECT risk_level, COUNT(*) FROM alerts WHERE created_at >= ? GROUP BY risk_level;`

	rows, err := db.conn.Query(query, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var level string
		var n int
		if err := rows.Scan(&level, &n); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		counts[level] = n
	}
	return counts, rows.Err()
}

// RecentAlerts fetches the latest alerts, newest first
func (db *DB) RecentAlerts(limit int) ([]memory.AlertEntry, error) {
	query := `SELECT token, amount, risk_level, reason, published_text, created_at FROM alerts ORDER BY id DESC LIMIT ?;`

	rows, err := db.conn.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []memory.AlertEntry
	for rows.Next() {
		var entry memory.AlertEntry
		var createdAt int64
		if err := rows.Scan(&entry.Token, &entry.Amount, &entry.RiskLevel, &entry.Reason, &entry.PublishedText, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		entry.Timestamp = time.Unix(createdAt, 0).UTC()
		alerts = append(alerts, entry)
	}

	return alerts, rows.Err()
}
