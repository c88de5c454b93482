package virtualfs

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/antibyte/picobasic/pkg/logger"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// InitDB opens the SQLite database that backs card volumes.
func InitDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Ensure the database is accessible
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// One connection keeps every statement on the same in-memory database
	// when dbPath is ":memory:".
	db.SetMaxOpenConns(1)
	return db, nil
}

// CreateTables ensures all required tables exist in the database.
func CreateTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS volumes (
			label TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS virtual_files (
			volume TEXT NOT NULL,
			path TEXT NOT NULL,
			content BLOB,
			is_dir INTEGER DEFAULT 0,
			mod_time INTEGER NOT NULL,
			PRIMARY KEY (volume, path)
		)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// ResolveVolume returns label when it is set, otherwise the oldest volume in
// db. A new volume with a random label is registered when none exists.
func ResolveVolume(db *sql.DB, label string) (string, error) {
	if label == "" {
		err := db.QueryRow(`SELECT label FROM volumes ORDER BY created_at, label LIMIT 1`).Scan(&label)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			label = uuid.New().String()
		case err != nil:
			return "", fmt.Errorf("failed to look up volume: %w", err)
		}
	}

	_, err := db.Exec(
		`INSERT OR IGNORE INTO volumes (label, created_at) VALUES (?, ?)`,
		label, time.Now().Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to register volume %s: %w", label, err)
	}
	logger.Info(logger.AreaDatabase, "using card volume %s", label)
	return label, nil
}
